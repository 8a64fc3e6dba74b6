// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
)

const (
	// Linux builds run inside manylinux containers.
	Linux Platform = "linux"
	// MacOS builds run against interpreters installed on the host.
	MacOS Platform = "macos"
	// Windows builds run against interpreters installed on the host.
	Windows Platform = "windows"
)

// Architectures, spelled as in wheel platform tags.
const (
	X86_64     Arch = "x86_64"
	I686       Arch = "i686"
	AArch64    Arch = "aarch64"
	PPC64LE    Arch = "ppc64le"
	S390X      Arch = "s390x"
	ARM64      Arch = "arm64"
	Universal2 Arch = "universal2"
	X86        Arch = "x86"
	AMD64      Arch = "AMD64"
)

var (
	// ErrInvalidPlatform is the sentinel error wrapped by InvalidPlatformError.
	ErrInvalidPlatform = errors.New("invalid platform")

	// ErrInvalidArch is the sentinel error wrapped by InvalidArchError.
	ErrInvalidArch = errors.New("invalid architecture")

	platformArchs = map[Platform][]Arch{
		Linux:   {X86_64, I686, AArch64, PPC64LE, S390X},
		MacOS:   {X86_64, ARM64, Universal2},
		Windows: {X86, AMD64},
	}
)

type (
	// Platform is a target operating system family.
	Platform string

	// Arch is a target CPU architecture, spelled the way the platform's
	// wheel tags spell it.
	Arch string

	// OSVersion is a major.minor operating system release.
	OSVersion struct {
		Major int
		Minor int
	}

	// Host describes the machine running the build.
	Host struct {
		Platform Platform
		// Machine is the native architecture, empty when it has no
		// counterpart on Platform.
		Machine Arch
		// Version is the OS release; only macOS fills it in.
		Version OSVersion
	}

	// InvalidPlatformError is returned when a platform name is not recognized.
	InvalidPlatformError struct {
		Value string
	}

	// InvalidArchError is returned when an architecture is not valid for a platform.
	InvalidArchError struct {
		Value    string
		Platform Platform
	}
)

// Error implements the error interface.
func (e *InvalidPlatformError) Error() string {
	return fmt.Sprintf("invalid platform %q (valid: linux, macos, windows)", e.Value)
}

// Unwrap returns ErrInvalidPlatform for errors.Is() compatibility.
func (e *InvalidPlatformError) Unwrap() error { return ErrInvalidPlatform }

// Error implements the error interface.
func (e *InvalidArchError) Error() string {
	return fmt.Sprintf("invalid archs option %q: %s only supports %s",
		e.Value, e.Platform, strings.Join(archStrings(platformArchs[e.Platform]), ", "))
}

// Unwrap returns ErrInvalidArch for errors.Is() compatibility.
func (e *InvalidArchError) Unwrap() error { return ErrInvalidArch }

// String returns the platform name.
func (p Platform) String() string { return string(p) }

// Validate returns an error if p is not a known platform.
func (p Platform) Validate() error {
	if _, ok := platformArchs[p]; !ok {
		return &InvalidPlatformError{Value: string(p)}
	}
	return nil
}

// Archs returns every architecture p can build for.
func (p Platform) Archs() []Arch {
	return slices.Clone(platformArchs[p])
}

// ParsePlatform resolves a --platform value; "auto" means the running OS.
func ParsePlatform(s string) (Platform, error) {
	if s == "" || s == "auto" {
		return CurrentPlatform()
	}
	p := Platform(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// CurrentPlatform returns the platform of the running OS.
func CurrentPlatform() (Platform, error) {
	switch runtime.GOOS {
	case "linux":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	case "windows":
		return Windows, nil
	default:
		return "", &InvalidPlatformError{Value: runtime.GOOS}
	}
}

// String returns the architecture name.
func (a Arch) String() string { return string(a) }

// NativeArch maps a Go architecture name to p's spelling of it, or "".
func NativeArch(p Platform, goarch string) Arch {
	switch p {
	case Linux:
		switch goarch {
		case "amd64":
			return X86_64
		case "386":
			return I686
		case "arm64":
			return AArch64
		case "ppc64le":
			return PPC64LE
		case "s390x":
			return S390X
		}
	case MacOS:
		switch goarch {
		case "amd64":
			return X86_64
		case "arm64":
			return ARM64
		}
	case Windows:
		switch goarch {
		case "amd64":
			return AMD64
		case "386":
			return X86
		}
	}
	return ""
}

// AutoArchs returns the architectures built by default on h: the native
// one plus those the host runs without emulation.
func (h Host) AutoArchs() []Arch {
	if h.Machine == "" {
		return nil
	}
	archs := []Arch{h.Machine}
	switch {
	case h.Platform == Linux && h.Machine == X86_64:
		archs = append(archs, I686)
	case h.Platform == Windows && h.Machine == AMD64:
		archs = append(archs, X86)
	case h.Platform == MacOS && h.Machine == ARM64:
		archs = append(archs, Universal2)
	}
	return archs
}

// ParseArchs resolves an archs option: a whitespace or comma separated list
// of architecture names and the keywords auto, native and all. Duplicates are
// dropped and the result follows the platform's canonical order.
func ParseArchs(value string, h Host) ([]Arch, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		fields = []string{"auto"}
	}

	valid := platformArchs[h.Platform]
	selected := make(map[Arch]bool)
	for _, f := range fields {
		switch f {
		case "auto":
			for _, a := range h.AutoArchs() {
				selected[a] = true
			}
		case "native":
			if h.Machine != "" {
				selected[h.Machine] = true
			}
		case "all":
			for _, a := range valid {
				selected[a] = true
			}
		default:
			a := Arch(f)
			if !slices.Contains(valid, a) {
				return nil, &InvalidArchError{Value: f, Platform: h.Platform}
			}
			selected[a] = true
		}
	}

	var archs []Arch
	for _, a := range valid {
		if selected[a] {
			archs = append(archs, a)
		}
	}
	return archs, nil
}

func archStrings(archs []Arch) []string {
	out := make([]string, len(archs))
	for i, a := range archs {
		out[i] = string(a)
	}
	return out
}

// ParseOSVersion parses the leading major[.minor] of a release string such
// as "11.2.3". A missing minor is zero.
func ParseOSVersion(s string) (OSVersion, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return OSVersion{}, fmt.Errorf("invalid OS version %q: %w", s, err)
	}
	v := OSVersion{Major: major}
	if len(parts) > 1 {
		if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
			return OSVersion{}, fmt.Errorf("invalid OS version %q: %w", s, err)
		}
	}
	return v, nil
}

// AtLeast reports whether v is major.minor or later.
func (v OSVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// String returns "major.minor".
func (v OSVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
