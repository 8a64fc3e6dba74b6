// SPDX-License-Identifier: MPL-2.0

// Package types holds small value types shared by the command line and
// its tests.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// signalBase is added to a signal number to form the shell's exit status
// for a process killed by that signal.
const signalBase = 128

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode is a process exit status in the range 0-255.
	ExitCode int

	// InvalidExitCodeError is returned for a status outside 0-255.
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode for errors.Is() compatibility.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// SignalExitCode returns the status of a process ended by signal sig,
// e.g. 130 for SIGINT.
func SignalExitCode(sig int) ExitCode { return ExitCode(signalBase + sig) }

// Validate returns an error if c is outside 0-255.
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess reports whether c is zero.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// Signal returns the signal that ended the process, or 0 when c is an
// ordinary status.
func (c ExitCode) Signal() int {
	if c > signalBase && c <= 255 {
		return int(c - signalBase)
	}
	return 0
}

// String returns the decimal representation.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
