// SPDX-License-Identifier: MPL-2.0

// Package installer provides the Python interpreters that host builds run
// against. Downloads are cached under the XDG cache directory.
//
// The package is organized into three concerns:
//   - download.go: cached HTTP downloads and archive extraction
//   - installer.go: per-platform interpreter installation (python.org
//     packages, nuget packages, PyPy archives)
//   - link.go: the per-session bin directory that puts the selected
//     interpreter first on PATH
package installer
