// SPDX-License-Identifier: MPL-2.0

// Package logger prints build progress: one header per build identifier,
// timed steps inside it, and warnings or errors in between.
package logger
