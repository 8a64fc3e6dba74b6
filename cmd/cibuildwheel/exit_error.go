// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klinikumxd/cibuildwheel/internal/config"
	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
	"github.com/Klinikumxd/cibuildwheel/internal/template"
	"github.com/Klinikumxd/cibuildwheel/pkg/types"
)

// Process exit codes.
const (
	ExitOK          types.ExitCode = 0
	ExitBuildFailed types.ExitCode = 1
	// ExitUsage covers configuration and provisioning failures.
	ExitUsage       types.ExitCode = 2
	ExitInterrupted types.ExitCode = 130
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// classifyExitCode maps a failed run to its exit code. Anything that is
// not a configuration, provisioning or interrupt failure is a build failure.
func classifyExitCode(err error) types.ExitCode {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, session.ErrProvisioning),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrInvalidOption),
		errors.Is(err, environment.ErrParse),
		errors.Is(err, template.ErrTemplate),
		errors.Is(err, matrix.ErrInvalidPlatform),
		errors.Is(err, matrix.ErrInvalidArch):
		return ExitUsage
	default:
		return ExitBuildFailed
	}
}
