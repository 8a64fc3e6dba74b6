// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "repair wheel"},
			want: "failed to repair wheel",
		},
		{
			name: "operation with resource",
			err:  &ActionableError{Operation: "read configuration", Resource: "pyproject.toml"},
			want: "failed to read configuration: pyproject.toml",
		},
		{
			name: "operation with cause",
			err:  &ActionableError{Operation: "pull image", Cause: errors.New("manifest unknown")},
			want: "failed to pull image: manifest unknown",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "build",
				Resource:  "cp38-manylinux_x86_64",
				Cause:     errors.New("exit status 1"),
			},
			want: "failed to build: cp38-manylinux_x86_64: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("no space left on device")
	err := fmt.Errorf("outer: %w", &ActionableError{Operation: "copy wheel", Cause: cause})
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the cause")
	}

	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Operation != "copy wheel" {
		t.Errorf("errors.As() = %v", ae)
	}

	if (&ActionableError{Operation: "x"}).Unwrap() != nil {
		t.Error("Unwrap() without a cause should be nil")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name: "suggestions",
			err: &ActionableError{
				Operation:   "start build container",
				Suggestions: []string{"Is docker running?", "Check the image name"},
			},
			contains: []string{"failed to start build container\n\n  • Is docker running?\n  • Check the image name"},
		},
		{
			name:     "chain hidden when not verbose",
			err:      &ActionableError{Operation: "parse environment", Cause: errors.New("unterminated quote")},
			contains: []string{"failed to parse environment: unterminated quote"},
			excludes: []string{"Error chain:"},
		},
		{
			name: "nested chain in verbose mode",
			err: &ActionableError{
				Operation: "build",
				Cause: &ActionableError{
					Operation: "run before-build",
					Cause:     errors.New("exit status 2"),
				},
			},
			verbose: true,
			contains: []string{
				"Error chain:",
				"1. failed to run before-build: exit status 2",
				"2. exit status 2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.err.Format(tt.verbose)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Format() missing %q\ngot:\n%s", s, got)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("Format() contains %q\ngot:\n%s", s, got)
				}
			}
		})
	}
}

func TestErrorContext_BuildError(t *testing.T) {
	t.Parallel()

	if err := NewErrorContext().WithResource("x").BuildError(); err != nil {
		t.Errorf("BuildError() without an operation = %#v, want untyped nil", err)
	}

	cause := errors.New("boom")
	ctx := NewErrorContext().
		WithOperation("download").
		WithResource("python-3.9.1-macosx10.9.pkg").
		WithSuggestion("check the network").
		WithSuggestion("clear the cache").
		WithIssue(DownloadFailedId).
		Wrap(cause)
	err := ctx.BuildError()

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("BuildError() = %T", err)
	}
	if ae.Operation != "download" || ae.Resource != "python-3.9.1-macosx10.9.pkg" {
		t.Errorf("BuildError() = %+v", ae)
	}
	if len(ae.Suggestions) != 2 || ae.Suggestions[1] != "clear the cache" {
		t.Errorf("Suggestions = %v", ae.Suggestions)
	}
	if !errors.Is(err, cause) {
		t.Error("BuildError() lost the cause")
	}

	ctx.WithSuggestion("later")
	if len(ae.Suggestions) != 2 {
		t.Errorf("built error shares suggestions with its context: %v", ae.Suggestions)
	}
}

func TestWrapHelpers(t *testing.T) {
	t.Parallel()

	if WrapWithOperation(nil, "x") != nil || WrapWithContext(nil, "x", "y") != nil {
		t.Error("wrapping nil should return nil")
	}
	cause := errors.New("denied")
	if got := WrapWithContext(cause, "write", "wheelhouse").Error(); got != "failed to write: wheelhouse: denied" {
		t.Errorf("WrapWithContext() = %q", got)
	}
	if got := WrapWithOperation(cause, "chown").Error(); got != "failed to chown: denied" {
		t.Errorf("WrapWithOperation() = %q", got)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	inner := NewErrorContext().WithOperation("pull image").WithIssue(ProvisioningFailedId).BuildError()
	outer := NewErrorContext().WithOperation("build").Wrap(fmt.Errorf("ctx: %w", inner)).BuildError()

	if iss := Find(outer); iss == nil || iss.Id() != ProvisioningFailedId {
		t.Errorf("Find() = %v, want provisioning issue", iss)
	}
	if Find(errors.New("plain")) != nil {
		t.Error("Find() on a plain error should be nil")
	}
	if Find(nil) != nil {
		t.Error("Find(nil) should be nil")
	}
}
