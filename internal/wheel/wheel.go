// SPDX-License-Identifier: MPL-2.0

// Package wheel implements the wheel filename convention
// {distribution}-{version}(-{build})?-{python}-{abi}-{platform}.whl and the
// checks and renames applied to built wheels.
package wheel

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Ext is the wheel file extension.
const Ext = ".whl"

var (
	// ErrInvalidFilename is the sentinel error wrapped by InvalidFilenameError.
	ErrInvalidFilename = errors.New("invalid wheel filename")

	// ErrNonPlatformWheel is the sentinel error wrapped by NonPlatformWheelError.
	ErrNonPlatformWheel = errors.New("build produced a pure Python wheel")

	// ErrNoWheel is returned when a stage directory holds no wheel.
	ErrNoWheel = errors.New("no wheel found")

	// ErrAmbiguousWheel is returned when a stage directory holds more than one wheel.
	ErrAmbiguousWheel = errors.New("more than one wheel found")
)

type (
	// Name is a parsed wheel filename.
	Name struct {
		Distribution string
		Version      string
		Build        string
		Python       string
		ABI          string
		Platform     string
	}

	// InvalidFilenameError is returned when a filename does not follow the convention.
	InvalidFilenameError struct {
		Filename string
		Reason   string
	}

	// NonPlatformWheelError is returned when a build meant to produce a
	// platform wheel produced a *-none-any wheel instead.
	NonPlatformWheelError struct {
		Filename string
	}
)

// Error implements the error interface.
func (e *InvalidFilenameError) Error() string {
	return fmt.Sprintf("invalid wheel filename %q: %s", e.Filename, e.Reason)
}

// Unwrap returns ErrInvalidFilename for errors.Is() compatibility.
func (e *InvalidFilenameError) Unwrap() error { return ErrInvalidFilename }

// Error implements the error interface.
func (e *NonPlatformWheelError) Error() string {
	return fmt.Sprintf("build produced %s, a pure Python wheel (none-any); "+
		"cibuildwheel builds platform wheels only. If the package has no compiled "+
		"extension, build it once with 'pip wheel' instead", e.Filename)
}

// Unwrap returns ErrNonPlatformWheel for errors.Is() compatibility.
func (e *NonPlatformWheelError) Unwrap() error { return ErrNonPlatformWheel }

// Parse splits a wheel filename (or a path ending in one) into its tags.
func Parse(filename string) (Name, error) {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	stem, ok := strings.CutSuffix(base, Ext)
	if !ok {
		return Name{}, &InvalidFilenameError{Filename: base, Reason: "missing .whl extension"}
	}

	parts := strings.Split(stem, "-")
	var n Name
	switch len(parts) {
	case 5:
		n = Name{parts[0], parts[1], "", parts[2], parts[3], parts[4]}
	case 6:
		n = Name{parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]}
		if n.Build == "" || n.Build[0] < '0' || n.Build[0] > '9' {
			return Name{}, &InvalidFilenameError{Filename: base, Reason: "build tag must start with a digit"}
		}
	default:
		return Name{}, &InvalidFilenameError{Filename: base, Reason: fmt.Sprintf("expected 5 or 6 dash-separated fields, got %d", len(parts))}
	}
	for _, f := range []string{n.Distribution, n.Version, n.Python, n.ABI, n.Platform} {
		if f == "" {
			return Name{}, &InvalidFilenameError{Filename: base, Reason: "empty field"}
		}
	}
	return n, nil
}

// String reassembles the filename.
func (n Name) String() string {
	fields := []string{n.Distribution, n.Version}
	if n.Build != "" {
		fields = append(fields, n.Build)
	}
	fields = append(fields, n.Python, n.ABI, n.Platform)
	return strings.Join(fields, "-") + Ext
}

// IsPure reports whether the wheel runs on any platform.
func (n Name) IsPure() bool {
	return n.ABI == "none" && n.Platform == "any"
}

// CheckPlatform returns a *NonPlatformWheelError for a pure wheel.
func CheckPlatform(filename string) error {
	n, err := Parse(filename)
	if err != nil {
		return err
	}
	if n.IsPure() {
		return &NonPlatformWheelError{Filename: path.Base(filename)}
	}
	return nil
}

// Universal2Filename returns the name a repaired universal2 wheel is
// renamed to, and whether a rename is needed. Older installers do not accept
// a lone universal2 tag on arm64, so a macosx_11_0_universal2 tag is added:
// foo-1.0-cp39-cp39-macosx_10_9_universal2.whl becomes
// foo-1.0-cp39-cp39-macosx_10_9_universal2.macosx_11_0_universal2.whl.
func Universal2Filename(filename string) (string, bool) {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	stem, ok := strings.CutSuffix(base, Ext)
	if !ok || !strings.HasSuffix(stem, "_universal2") || strings.HasSuffix(stem, ".macosx_11_0_universal2") {
		return base, false
	}
	return stem + ".macosx_11_0_universal2" + Ext, true
}

// Single returns the only wheel among filenames.
func Single(filenames []string) (string, error) {
	var wheels []string
	for _, f := range filenames {
		if strings.HasSuffix(f, Ext) {
			wheels = append(wheels, f)
		}
	}
	switch len(wheels) {
	case 0:
		return "", ErrNoWheel
	case 1:
		return wheels[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousWheel, strings.Join(wheels, ", "))
	}
}
