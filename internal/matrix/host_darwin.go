// SPDX-License-Identifier: MPL-2.0

//go:build darwin

package matrix

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func macOSVersion() (OSVersion, error) {
	release, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return OSVersion{}, err
	}
	return ParseOSVersion(release)
}

// machineGOARCH reports arm64 for an amd64 binary running under Rosetta.
func machineGOARCH() string {
	if runtime.GOARCH == "amd64" {
		if translated, err := unix.SysctlUint32("sysctl.proc_translated"); err == nil && translated == 1 {
			return "arm64"
		}
	}
	return runtime.GOARCH
}
