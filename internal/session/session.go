// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
)

const (
	// StateCreated is the initial state before Start is called.
	StateCreated State = iota
	// StateStarting means Start is provisioning the runtime.
	StateStarting
	// StateStarted means the session accepts calls.
	StateStarted
	// StateStopped is terminal; the runtime has been released.
	StateStopped
	// StateFailed means Start did not finish or the runtime broke; only Stop is allowed.
	StateFailed
)

var (
	// ErrProvisioning is the sentinel error wrapped by ProvisioningError.
	ErrProvisioning = errors.New("session provisioning failed")

	// ErrCommandFailed is the sentinel error wrapped by CommandError.
	ErrCommandFailed = errors.New("command failed")

	// ErrNULByte is returned when an argument, environment entry or path
	// contains a NUL byte, which no process environment can carry.
	ErrNULByte = errors.New("NUL byte is not allowed")

	// ErrNotRunning is returned when a session is used outside the started state.
	ErrNotRunning = errors.New("session is not running")

	// ErrEmptyCommand is returned for a call with no arguments.
	ErrEmptyCommand = errors.New("empty command")
)

type (
	// Session is an isolated execution environment.
	Session interface {
		// Start provisions the runtime. It may be called once.
		Start(ctx context.Context) error
		// Stop releases the runtime. It is safe to call in any state and
		// more than once; only the first call does any work.
		Stop(ctx context.Context) error
		// Call runs argv and returns its output when opts.Capture is set.
		// A non-zero exit status is reported as *CommandError.
		Call(ctx context.Context, argv []string, opts CallOptions) (string, error)
		// CopyInto copies a host file or directory to sessionPath.
		CopyInto(ctx context.Context, hostPath, sessionPath string) error
		// CopyOut copies a session file or directory to hostPath.
		CopyOut(ctx context.Context, sessionPath, hostPath string) error
		// Glob returns the sorted paths matching pattern; none is not an error.
		Glob(ctx context.Context, pattern string) ([]string, error)
		// Environ returns the environment commands run with by default.
		Environ(ctx context.Context) (map[string]string, error)
	}

	// CallOptions controls a single Call.
	CallOptions struct {
		// Env is overlaid on the session's base environment.
		Env map[string]string
		// Capture returns stdout instead of streaming it.
		Capture bool
		// Cwd is the working directory; empty keeps the session default.
		Cwd string
	}

	// State represents the lifecycle state of a session.
	State int32

	// ProvisioningError is returned when a session cannot be started.
	ProvisioningError struct {
		Backend string
		Err     error
	}

	// CommandError is returned when a command exits with a non-zero status.
	CommandError struct {
		Argv     []string
		ExitCode int
		// Output holds captured stdout when the call captured it.
		Output string
	}

	// NULByteError identifies the input that contained a NUL byte.
	NULByteError struct {
		Field string
	}

	// lifecycle holds the atomic state shared by session implementations.
	lifecycle struct {
		state atomic.Int32
	}
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Error implements the error interface.
func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision %s session: %v", e.Backend, e.Err)
}

// Unwrap returns the sentinel and the underlying cause.
func (e *ProvisioningError) Unwrap() []error { return []error{ErrProvisioning, e.Err} }

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s exited with status %d", strings.Join(e.Argv, " "), e.ExitCode)
}

// Unwrap returns ErrCommandFailed for errors.Is() compatibility.
func (e *CommandError) Unwrap() error { return ErrCommandFailed }

// Error implements the error interface.
func (e *NULByteError) Error() string {
	return fmt.Sprintf("%s: NUL byte is not allowed", e.Field)
}

// Unwrap returns ErrNULByte for errors.Is() compatibility.
func (e *NULByteError) Unwrap() error { return ErrNULByte }

// With starts s, runs fn, and stops s on every exit path, including
// panics and context cancellation. Stop runs with a context that is
// detached from ctx's cancellation.
func With(ctx context.Context, s Session, fn func(Session) error) (err error) {
	stopCtx := context.WithoutCancel(ctx)

	if err := s.Start(ctx); err != nil {
		return errors.Join(err, s.Stop(stopCtx))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = s.Stop(stopCtx)
			panic(r)
		}
		err = errors.Join(err, s.Stop(stopCtx))
	}()

	return fn(s)
}

// ValidateCall rejects empty commands and NUL bytes before anything runs.
func ValidateCall(argv []string, opts CallOptions) error {
	if len(argv) == 0 {
		return ErrEmptyCommand
	}
	for i, a := range argv {
		if strings.IndexByte(a, 0) >= 0 {
			return &NULByteError{Field: fmt.Sprintf("argument %d", i)}
		}
	}
	for k, v := range opts.Env {
		if strings.IndexByte(k, 0) >= 0 {
			return &NULByteError{Field: "environment variable name"}
		}
		if strings.IndexByte(v, 0) >= 0 {
			return &NULByteError{Field: "environment variable " + k}
		}
	}
	if strings.IndexByte(opts.Cwd, 0) >= 0 {
		return &NULByteError{Field: "working directory"}
	}
	return nil
}

// --- lifecycle ---

func (l *lifecycle) current() State {
	return State(l.state.Load())
}

// begin moves Created to Starting.
func (l *lifecycle) begin() error {
	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start session in state %s", l.current())
	}
	return nil
}

// started moves Starting to Started. It fails when Stop won the race.
func (l *lifecycle) started() bool {
	return l.state.CompareAndSwap(int32(StateStarting), int32(StateStarted))
}

// fail moves any non-terminal state to Failed.
func (l *lifecycle) fail() {
	for {
		cur := l.state.Load()
		if State(cur) == StateStopped || State(cur) == StateFailed {
			return
		}
		if l.state.CompareAndSwap(cur, int32(StateFailed)) {
			return
		}
	}
}

// stop moves to Stopped and reports the previous state. ok is false when
// the session was already stopped.
func (l *lifecycle) stop() (prev State, ok bool) {
	for {
		cur := l.state.Load()
		if State(cur) == StateStopped {
			return StateStopped, false
		}
		if l.state.CompareAndSwap(cur, int32(StateStopped)) {
			return State(cur), true
		}
	}
}

// ready returns an error unless the session is started.
func (l *lifecycle) ready() error {
	if cur := l.current(); cur != StateStarted {
		return fmt.Errorf("%w (state %s)", ErrNotRunning, cur)
	}
	return nil
}

// shellOwned reports whether the shell maintains name itself. Values taken
// from Environ describe the directory Environ ran in, not the call's.
func shellOwned(name string) bool {
	return name == "PWD" || name == "OLDPWD"
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overlay))
	maps.Copy(out, base)
	maps.Copy(out, overlay)
	return out
}
