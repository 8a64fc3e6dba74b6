// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// CPython is the reference interpreter.
	CPython Implementation = iota + 1
	// PyPy is the JIT-compiled alternative interpreter.
	PyPy
)

type (
	// Implementation selects how an interpreter is installed. It is fixed
	// when the catalog is built, never derived from identifier text.
	Implementation int

	// Configuration is one cell of the build matrix.
	Configuration struct {
		// Version is the Python language version, e.g. "3.8".
		Version string
		// Identifier is the selection key, e.g. "cp38-manylinux_x86_64".
		Identifier     string
		Implementation Implementation
		Arch           Arch
		// Source locates the interpreter: an install prefix inside the
		// manylinux image, a download URL, or a nuget package version.
		Source string
	}
)

// String returns the implementation name.
func (i Implementation) String() string {
	switch i {
	case CPython:
		return "CPython"
	case PyPy:
		return "PyPy"
	default:
		return fmt.Sprintf("Implementation(%d)", int(i))
	}
}

// Tag returns the two-letter prefix used in identifiers and wheel tags.
func (i Implementation) Tag() string {
	if i == PyPy {
		return "pp"
	}
	return "cp"
}

// MajorVersion returns the leading component of Version.
func (c Configuration) MajorVersion() string {
	major, _, _ := strings.Cut(c.Version, ".")
	return major
}

// DelocateArchs returns the --require-archs value for macOS repair.
func (c Configuration) DelocateArchs() string {
	switch c.Arch {
	case Universal2:
		return "x86_64,arm64"
	case ARM64:
		return "arm64"
	default:
		return "x86_64"
	}
}

// TestArchs returns the architectures a built wheel can be tested on when
// the build machine is machine, and a warning when part of the wheel has to
// go untested. Only macOS can emulate: Apple Silicon runs x86_64 through
// Rosetta, while arm64 code cannot run on Intel hosts.
func (c Configuration) TestArchs(p Platform, machine Arch) (archs []Arch, warning string) {
	if p != MacOS {
		return []Arch{c.Arch}, ""
	}
	switch machine {
	case X86_64:
		switch c.Arch {
		case ARM64:
			return nil, "While arm64 wheels can be built on x86_64, they cannot be tested."
		case Universal2:
			return []Arch{X86_64}, "While universal2 wheels can be built on x86_64, the arm64 part of them cannot be tested."
		default:
			return []Arch{X86_64}, ""
		}
	case ARM64:
		switch c.Arch {
		case X86_64:
			return []Arch{X86_64}, ""
		case Universal2:
			return []Arch{ARM64, X86_64}, ""
		default:
			return []Arch{ARM64}, ""
		}
	}
	return nil, fmt.Sprintf("Wheels cannot be tested on a %s build machine.", machine)
}

// --- catalogs ---

// Catalog returns the interpreters available for p, in build order.
func Catalog(p Platform) []Configuration {
	switch p {
	case Linux:
		return slices.Clone(linuxCatalog)
	case MacOS:
		return slices.Clone(macosCatalog)
	case Windows:
		return slices.Clone(windowsCatalog)
	default:
		return nil
	}
}

var linuxCatalog = buildLinuxCatalog()

func buildLinuxCatalog() []Configuration {
	type install struct {
		version string
		impl    Implementation
		tag     string
		prefix  string
	}
	cpython := []install{
		{"2.7", CPython, "cp27", "/opt/python/cp27-cp27m"},
		{"2.7", CPython, "cp27", "/opt/python/cp27-cp27mu"},
		{"3.5", CPython, "cp35", "/opt/python/cp35-cp35m"},
		{"3.6", CPython, "cp36", "/opt/python/cp36-cp36m"},
		{"3.7", CPython, "cp37", "/opt/python/cp37-cp37m"},
		{"3.8", CPython, "cp38", "/opt/python/cp38-cp38"},
		{"3.9", CPython, "cp39", "/opt/python/cp39-cp39"},
	}
	pypy := []install{
		{"2.7", PyPy, "pp27", "/opt/python/pp27-pypy_73"},
		{"3.6", PyPy, "pp36", "/opt/python/pp36-pypy36_pp73"},
		{"3.7", PyPy, "pp37", "/opt/python/pp37-pypy37_pp73"},
	}

	var out []Configuration
	add := func(arch Arch, installs []install) {
		for _, in := range installs {
			out = append(out, Configuration{
				Version:        in.version,
				Identifier:     in.tag + "-manylinux_" + string(arch),
				Implementation: in.impl,
				Arch:           arch,
				Source:         in.prefix,
			})
		}
	}
	add(X86_64, cpython)
	add(I686, cpython)
	add(X86_64, pypy)
	// The manylinux2014 images for these architectures start at 3.5.
	for _, arch := range []Arch{AArch64, PPC64LE, S390X} {
		add(arch, cpython[2:])
	}
	return out
}

var macosCatalog = []Configuration{
	{"2.7", "cp27-macosx_x86_64", CPython, X86_64, "https://www.python.org/ftp/python/2.7.18/python-2.7.18-macosx10.9.pkg"},
	{"3.5", "cp35-macosx_x86_64", CPython, X86_64, "https://www.python.org/ftp/python/3.5.4/python-3.5.4-macosx10.6.pkg"},
	{"3.6", "cp36-macosx_x86_64", CPython, X86_64, "https://www.python.org/ftp/python/3.6.8/python-3.6.8-macosx10.9.pkg"},
	{"3.7", "cp37-macosx_x86_64", CPython, X86_64, "https://www.python.org/ftp/python/3.7.9/python-3.7.9-macosx10.9.pkg"},
	{"3.8", "cp38-macosx_x86_64", CPython, X86_64, "https://www.python.org/ftp/python/3.8.7/python-3.8.7-macosx10.9.pkg"},
	{"3.9", "cp39-macosx_x86_64", CPython, X86_64, "https://www.python.org/ftp/python/3.9.1/python-3.9.1-macos11.0.pkg"},
	{"3.9", "cp39-macosx_universal2", CPython, Universal2, "https://www.python.org/ftp/python/3.9.1/python-3.9.1-macos11.0.pkg"},
	{"3.9", "cp39-macosx_arm64", CPython, ARM64, "https://www.python.org/ftp/python/3.9.1/python-3.9.1-macos11.0.pkg"},
	{"2.7", "pp27-macosx_x86_64", PyPy, X86_64, "https://downloads.python.org/pypy/pypy2.7-v7.3.3-osx64.tar.bz2"},
	{"3.6", "pp36-macosx_x86_64", PyPy, X86_64, "https://downloads.python.org/pypy/pypy3.6-v7.3.3-osx64.tar.bz2"},
	{"3.7", "pp37-macosx_x86_64", PyPy, X86_64, "https://downloads.python.org/pypy/pypy3.7-v7.3.3-osx64.tar.bz2"},
}

var windowsCatalog = []Configuration{
	{"2.7", "cp27-win32", CPython, X86, "2.7.18"},
	{"2.7", "cp27-win_amd64", CPython, AMD64, "2.7.18"},
	{"3.5", "cp35-win32", CPython, X86, "3.5.4"},
	{"3.5", "cp35-win_amd64", CPython, AMD64, "3.5.4"},
	{"3.6", "cp36-win32", CPython, X86, "3.6.8"},
	{"3.6", "cp36-win_amd64", CPython, AMD64, "3.6.8"},
	{"3.7", "cp37-win32", CPython, X86, "3.7.9"},
	{"3.7", "cp37-win_amd64", CPython, AMD64, "3.7.9"},
	{"3.8", "cp38-win32", CPython, X86, "3.8.7"},
	{"3.8", "cp38-win_amd64", CPython, AMD64, "3.8.7"},
	{"3.9", "cp39-win32", CPython, X86, "3.9.1"},
	{"3.9", "cp39-win_amd64", CPython, AMD64, "3.9.1"},
	{"2.7", "pp27-win32", PyPy, X86, "https://downloads.python.org/pypy/pypy2.7-v7.3.3-win32.zip"},
	{"3.6", "pp36-win32", PyPy, X86, "https://downloads.python.org/pypy/pypy3.6-v7.3.3-win32.zip"},
	{"3.7", "pp37-win32", PyPy, X86, "https://downloads.python.org/pypy/pypy3.7-v7.3.3-win32.zip"},
}
