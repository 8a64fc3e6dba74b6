// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"runtime"
)

// DetectHost describes the running machine as a build host for p.
func DetectHost(p Platform) (Host, error) {
	if err := p.Validate(); err != nil {
		return Host{}, err
	}
	h := Host{Platform: p, Machine: NativeArch(p, machineGOARCH())}
	if p == MacOS && runtime.GOOS == "darwin" {
		v, err := macOSVersion()
		if err != nil {
			return Host{}, err
		}
		h.Version = v
	}
	return h, nil
}
