// SPDX-License-Identifier: MPL-2.0

// Package matrix enumerates build configurations: the static per-platform
// interpreter catalogs, architecture selection, build/skip selectors and the
// rules that prune combinations the build host cannot support.
package matrix
