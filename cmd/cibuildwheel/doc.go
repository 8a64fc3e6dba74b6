// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the cibuildwheel command line.
//
// The root command enumerates the build matrix for the selected platform,
// then builds, repairs and tests one wheel per build identifier and
// collects them in the output directory.
package cmd
