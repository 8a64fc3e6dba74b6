// SPDX-License-Identifier: MPL-2.0

// Package issue holds the user-facing error catalog and the ActionableError
// type the CLI renders when a build fails.
package issue
