// SPDX-License-Identifier: MPL-2.0

//go:build !darwin

package matrix

import "runtime"

func macOSVersion() (OSVersion, error) { return OSVersion{}, nil }

func machineGOARCH() string { return runtime.GOARCH }
