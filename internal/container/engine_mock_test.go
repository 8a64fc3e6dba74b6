// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"testing"
)

// commandRecorder stands in for the engine binary. Every command it builds
// re-runs the test binary as TestHelperProcess, which prints the canned
// output and exits with the canned status.
type commandRecorder struct {
	mu    sync.Mutex
	calls [][]string

	stdout   string
	stderr   string
	exitCode int
	// failOn makes the subcommand with this name exit 1.
	failOn string
}

func (r *commandRecorder) command(t *testing.T) ExecCommandFunc {
	t.Helper()
	return func(_ context.Context, _ string, args ...string) *exec.Cmd {
		r.mu.Lock()
		r.calls = append(r.calls, slices.Clone(args))
		r.mu.Unlock()

		code := r.exitCode
		if r.failOn != "" && len(args) > 0 && args[0] == r.failOn {
			code = 1
		}
		//nolint:gosec,noctx // re-executes the test binary
		cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", code),
			"GO_HELPER_STDOUT=" + r.stdout,
			"GO_HELPER_STDERR=" + r.stderr,
		}
		return cmd
	}
}

func (r *commandRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func (r *commandRecorder) expectArgs(t *testing.T, want ...string) {
	t.Helper()
	if got := r.last(); !slices.Equal(got, want) {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func (r *commandRecorder) expectArgsContain(t *testing.T, want string) {
	t.Helper()
	if got := r.last(); !strings.Contains(strings.Join(got, " "), want) {
		t.Errorf("args %q do not contain %q", got, want)
	}
}

func (r *commandRecorder) expectCalls(t *testing.T, want int) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) != want {
		t.Errorf("engine ran %d times, want %d", len(r.calls), want)
	}
}

// TestHelperProcess is the fake engine binary run by commandRecorder.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("GO_HELPER_STDOUT"))
	fmt.Fprint(os.Stderr, os.Getenv("GO_HELPER_STDERR"))
	code := 0
	fmt.Sscanf(os.Getenv("GO_HELPER_EXIT_CODE"), "%d", &code)
	os.Exit(code)
}

func newRecordedDocker(t *testing.T, r *commandRecorder) *CLIEngine {
	t.Helper()
	return NewDockerEngine(WithBinaryPath("/usr/bin/docker"), WithExecCommand(r.command(t)))
}
