// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"
)

const (
	// Pending is the state of a configuration that has not started.
	Pending State = iota
	// EnvironmentPrepared means the interpreter is active and the user
	// environment has been evaluated.
	EnvironmentPrepared
	// BeforeBuildRun means the before-build hook finished or was skipped.
	BeforeBuildRun
	// WheelBuilt means exactly one platform wheel was built.
	WheelBuilt
	// WheelRepaired means exactly one repaired wheel is ready.
	WheelRepaired
	// Tested means the tests passed or there was nothing to test.
	Tested
	// ArtifactMoved means the wheel is in the output directory.
	ArtifactMoved
	// Done is the final state of a successful configuration.
	Done
	// Failed is entered from any state when a step fails.
	Failed
)

// ErrBuildFailed is the sentinel error wrapped by Error.
var ErrBuildFailed = errors.New("build failed")

type (
	// State is the progress of one configuration.
	State int

	// Error reports the configuration and step a run stopped at.
	Error struct {
		Identifier string
		// State is the last state the configuration reached.
		State State
		Step  string
		Err   error
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case EnvironmentPrepared:
		return "EnvironmentPrepared"
	case BeforeBuildRun:
		return "BeforeBuildRun"
	case WheelBuilt:
		return "WheelBuilt"
	case WheelRepaired:
		return "WheelRepaired"
	case Tested:
		return "Tested"
	case ArtifactMoved:
		return "ArtifactMoved"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("building %s: %s (after %s): %v", e.Identifier, e.Step, e.State, e.Err)
}

// Unwrap returns ErrBuildFailed and the underlying cause.
func (e *Error) Unwrap() []error { return []error{ErrBuildFailed, e.Err} }
