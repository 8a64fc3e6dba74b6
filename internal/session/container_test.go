// SPDX-License-Identifier: MPL-2.0

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/testutil"
)

// localEngine is a container.Engine whose "containers" are the test host
// itself: exec runs the command locally. It exercises the whole session
// protocol without a container runtime.
type localEngine struct {
	mu        sync.Mutex
	createErr error
	startErr  error
	created   []container.CreateOptions
	started   []container.ContainerID
	removed   []container.ContainerID
}

func (e *localEngine) Name() string                           { return "local" }
func (e *localEngine) Available() bool                        { return true }
func (e *localEngine) Version(context.Context) (string, error) { return "0", nil }

func (e *localEngine) Create(_ context.Context, opts container.CreateOptions) (container.ContainerID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return "", e.createErr
	}
	e.created = append(e.created, opts)
	return container.ContainerID(opts.Name), nil
}

func (e *localEngine) Start(_ context.Context, id container.ContainerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, id)
	return e.startErr
}

func (e *localEngine) ExecCommand(ctx context.Context, _ container.ContainerID, command []string, _ container.ExecOptions) *exec.Cmd {
	return exec.CommandContext(ctx, command[0], command[1:]...)
}

func (e *localEngine) Remove(_ context.Context, id container.ContainerID, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, id)
	return nil
}

func (e *localEngine) List(context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for _, c := range e.created {
		if !slices.Contains(e.removed, container.ContainerID(c.Name)) {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

func requireLocalShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping: container shell protocol needs a POSIX host")
	}
	for _, tool := range []string{"/bin/bash", "tar", "sh"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("skipping: %s not available", tool)
		}
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// startLocalSession starts a ContainerSession on a localEngine and stops it
// when the test ends.
func startLocalSession(t *testing.T, opts ...Option) (*ContainerSession, *localEngine) {
	t.Helper()
	requireLocalShell(t)

	engine := &localEngine{}
	opts = append([]Option{WithLogger(quietLogger()), WithStdout(io.Discard)}, opts...)
	s := NewContainerSession(engine, "quay.io/pypa/manylinux2014_x86_64", opts...)
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	testutil.StopOnCleanup(t, s)
	return s, engine
}

func TestContainerSession_StartCreatesContainer(t *testing.T) {
	t.Parallel()

	s, engine := startLocalSession(t)

	if len(engine.created) != 1 {
		t.Fatalf("created %d containers, want 1", len(engine.created))
	}
	opts := engine.created[0]
	if !strings.HasPrefix(opts.Name, "cibuildwheel-") {
		t.Errorf("container name = %q, want cibuildwheel- prefix", opts.Name)
	}
	if s.Name() != opts.Name {
		t.Errorf("Name() = %q, want %q", s.Name(), opts.Name)
	}
	wantVolumes := []container.VolumeMount{{HostPath: "/", ContainerPath: "/host"}}
	if diff := cmp.Diff(wantVolumes, opts.Volumes); diff != "" {
		t.Errorf("volumes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"CIBUILDWHEEL"}, opts.EnvPassthrough); diff != "" {
		t.Errorf("env passthrough mismatch (-want +got):\n%s", diff)
	}
	if !opts.Interactive {
		t.Error("container not created interactive")
	}
	if s.State() != StateStarted {
		t.Errorf("State() = %s, want started", s.State())
	}
}

func TestContainerSession_CallCapture(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "echo", argv: []string{"echo", "hello"}, want: "hello\n"},
		{name: "no trailing newline", argv: []string{"printf", "hello"}, want: "hello"},
		{name: "empty", argv: []string{"true"}, want: ""},
		{name: "quoted argument", argv: []string{"printf", "%s", `it's "quoted" $HOME`}, want: `it's "quoted" $HOME`},
	}

	for _, tt := range tests {
		got, err := s.Call(t.Context(), tt.argv, CallOptions{Capture: true})
		if err != nil {
			t.Errorf("%s: Call() = %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: Call() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestContainerSession_Streams(t *testing.T) {
	t.Parallel()

	var stdout, echo bytes.Buffer
	s, _ := startLocalSession(t, WithStdout(&stdout), WithEcho(&echo))

	out, err := s.Call(t.Context(), []string{"echo", "hello world"}, CallOptions{})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if out != "" {
		t.Errorf("Call() returned %q without Capture", out)
	}
	if stdout.String() != "hello world\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "hello world\n")
	}
	if echo.String() != "+ echo 'hello world'\n" {
		t.Errorf("echo = %q", echo.String())
	}
}

func TestContainerSession_Environment(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	out, err := s.Call(t.Context(),
		[]string{"bash", "-c", `printf %s "$TEST_VAR"`},
		CallOptions{Env: map[string]string{"TEST_VAR": "1234"}, Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if out != "1234" {
		t.Errorf("TEST_VAR = %q, want 1234", out)
	}

	// Variables do not leak into later calls.
	out, err = s.Call(t.Context(), []string{"bash", "-c", `printf %s "${TEST_VAR-unset}"`}, CallOptions{Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if out != "unset" {
		t.Errorf("TEST_VAR leaked into a later call: %q", out)
	}
}

func TestContainerSession_LargeEnvironment(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	env := make(map[string]string)
	for _, k := range []string{"A", "B", "C", "D"} {
		env[k] = strings.Repeat(k, 127*1024)
	}
	out, err := s.Call(t.Context(),
		[]string{"bash", "-c", `printf '%s %s %s %s' ${#A} ${#B} ${#C} ${#D}`},
		CallOptions{Env: env, Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	n := 127 * 1024
	if want := fmt.Sprintf("%d %d %d %d", n, n, n, n); out != want {
		t.Errorf("lengths = %q, want %q", out, want)
	}
}

func TestContainerSession_EnvironmentBytes(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)
	value := rawBytes()

	out, err := s.Call(t.Context(),
		[]string{"bash", "-c", `printf %s "$TEST_VAR"`},
		CallOptions{Env: map[string]string{"TEST_VAR": value}, Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if out != value {
		t.Errorf("round-tripped env value differs:\n got %q\nwant %q", out, value)
	}

	out, err = s.Call(t.Context(),
		[]string{"bash", "-c", `printf %s "$1"`, "bash", value},
		CallOptions{Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if out != value {
		t.Errorf("round-tripped argument differs:\n got %q\nwant %q", out, value)
	}
}

func TestContainerSession_BinaryOutput(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	data := make([]byte, 0, 512)
	for range 2 {
		for i := range 256 {
			data = append(data, byte(i))
		}
	}
	path := filepath.Join(t.TempDir(), "binary")
	testutil.MustWriteFile(t, path, data, 0o644)

	out, err := s.Call(t.Context(), []string{"cat", path}, CallOptions{Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if !bytes.Equal([]byte(out), data) {
		t.Errorf("binary output differs: got %d bytes, want %d", len(out), len(data))
	}
}

func TestContainerSession_NULRejected(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	_, err := s.Call(t.Context(), []string{"true"}, CallOptions{Env: map[string]string{"V": "a\x00b"}})
	if !errors.Is(err, ErrNULByte) {
		t.Errorf("Call() = %v, want ErrNULByte", err)
	}

	if _, err := s.Call(t.Context(), []string{"true"}, CallOptions{}); err != nil {
		t.Errorf("session unusable after rejected call: %v", err)
	}
}

func TestContainerSession_ExitStatus(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	out, err := s.Call(t.Context(), []string{"bash", "-c", "echo partial; exit 3"}, CallOptions{Capture: true})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Call() = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if cmdErr.Output != "partial\n" {
		t.Errorf("Output = %q, want %q", cmdErr.Output, "partial\n")
	}
	if out != "" {
		t.Errorf("Call() output = %q on failure", out)
	}

	if _, err := s.Call(t.Context(), []string{"true"}, CallOptions{}); err != nil {
		t.Errorf("session unusable after failed call: %v", err)
	}
}

func TestContainerSession_Cwd(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	out, err := s.Call(t.Context(), []string{"pwd", "-P"}, CallOptions{Cwd: dir, Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if strings.TrimSpace(out) != dir {
		t.Errorf("pwd = %q, want %q", out, dir)
	}

	env := map[string]string{"PWD": "/stale", "OLDPWD": "/older"}
	out, err = s.Call(t.Context(), []string{"sh", "-c", `printf %s "$PWD"`}, CallOptions{Cwd: dir, Env: env, Capture: true})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if out != dir {
		t.Errorf("PWD = %q, want %q", out, dir)
	}

	_, err = s.Call(t.Context(), []string{"true"}, CallOptions{Cwd: filepath.Join(dir, "missing")})
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Call() in missing cwd = %v, want ErrCommandFailed", err)
	}
}

func TestContainerSession_CopyRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)
	ctx := t.Context()

	src := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(src, "pkg", "setup.py"), []byte("print('hi')\n"), 0o644)
	testutil.MustWriteFile(t, filepath.Join(src, "pkg", "bin", "run.sh"), []byte("#!/bin/sh\n"), 0o755)

	inside := filepath.Join(t.TempDir(), "project", "copied")
	if err := s.CopyInto(ctx, filepath.Join(src, "pkg"), inside); err != nil {
		t.Fatalf("CopyInto() = %v", err)
	}
	if got := string(testutil.MustReadFile(t, filepath.Join(inside, "setup.py"))); got != "print('hi')\n" {
		t.Errorf("copied setup.py = %q", got)
	}

	back := filepath.Join(t.TempDir(), "out", "pkg")
	if err := s.CopyOut(ctx, inside, back); err != nil {
		t.Fatalf("CopyOut() = %v", err)
	}
	info, err := os.Stat(filepath.Join(back, "bin", "run.sh"))
	if err != nil {
		t.Fatalf("round-tripped file missing: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}

	// A single file into a directory that does not exist yet.
	single := filepath.Join(t.TempDir(), "new", "dir", "setup.py")
	if err := s.CopyOut(ctx, filepath.Join(inside, "setup.py"), single); err != nil {
		t.Fatalf("CopyOut(file) = %v", err)
	}
	if got := string(testutil.MustReadFile(t, single)); got != "print('hi')\n" {
		t.Errorf("copied file = %q", got)
	}
}

func TestContainerSession_Glob(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)
	dir := t.TempDir()
	for _, name := range []string{"b.whl", "a.whl", "with space.whl", "c.txt"} {
		testutil.MustWriteFile(t, filepath.Join(dir, name), nil, 0o644)
	}

	got, err := s.Glob(t.Context(), filepath.Join(dir, "*.whl"))
	if err != nil {
		t.Fatalf("Glob() = %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.whl"),
		filepath.Join(dir, "b.whl"),
		filepath.Join(dir, "with space.whl"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Glob() mismatch (-want +got):\n%s", diff)
	}

	none, err := s.Glob(t.Context(), filepath.Join(dir, "*.tar.gz"))
	if err != nil {
		t.Fatalf("Glob() = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Glob() with no matches = %#v, want empty slice", none)
	}
}

func TestContainerSession_Environ(t *testing.T) {
	t.Setenv("CIBW_SESSION_PROBE", "probe value")

	s, _ := startLocalSession(t)
	env, err := s.Environ(t.Context())
	if err != nil {
		t.Fatalf("Environ() = %v", err)
	}
	if env["CIBW_SESSION_PROBE"] != "probe value" {
		t.Errorf("CIBW_SESSION_PROBE = %q", env["CIBW_SESSION_PROBE"])
	}
}

func TestContainerSession_StopOnce(t *testing.T) {
	t.Parallel()
	requireLocalShell(t)

	engine := &localEngine{}
	s := NewContainerSession(engine, "image", WithLogger(quietLogger()))
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	name := s.Name()

	for range 3 {
		if err := s.Stop(t.Context()); err != nil {
			t.Fatalf("Stop() = %v", err)
		}
	}
	if diff := cmp.Diff([]container.ContainerID{container.ContainerID(name)}, engine.removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	names, _ := engine.List(t.Context())
	if slices.Contains(names, name) {
		t.Errorf("container %s still listed after Stop", name)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", s.State())
	}

	if _, err := s.Call(t.Context(), []string{"true"}, CallOptions{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Call() after Stop = %v, want ErrNotRunning", err)
	}
}

func TestContainerSession_ProvisioningFailure(t *testing.T) {
	t.Parallel()

	t.Run("create fails", func(t *testing.T) {
		t.Parallel()

		engine := &localEngine{createErr: errors.New("no such image")}
		s := NewContainerSession(engine, "missing:latest", WithLogger(quietLogger()))

		err := s.Start(t.Context())
		var provErr *ProvisioningError
		if !errors.As(err, &provErr) || !errors.Is(err, ErrProvisioning) {
			t.Fatalf("Start() = %v, want *ProvisioningError", err)
		}
		if provErr.Backend != "local" {
			t.Errorf("Backend = %q, want local", provErr.Backend)
		}
		if s.State() != StateFailed {
			t.Errorf("State() = %s, want failed", s.State())
		}
		if err := s.Stop(t.Context()); err != nil {
			t.Errorf("Stop() = %v", err)
		}
		if len(engine.removed) != 0 {
			t.Errorf("removed %v, but nothing was created", engine.removed)
		}
	})

	t.Run("start fails after create", func(t *testing.T) {
		t.Parallel()

		engine := &localEngine{startErr: errors.New("cannot start")}
		s := NewContainerSession(engine, "image", WithLogger(quietLogger()))

		if err := s.Start(t.Context()); !errors.Is(err, ErrProvisioning) {
			t.Fatalf("Start() = %v, want ErrProvisioning", err)
		}
		if err := s.Stop(t.Context()); err != nil {
			t.Errorf("Stop() = %v", err)
		}
		if len(engine.removed) != 1 {
			t.Errorf("removed %d containers after partial start, want 1", len(engine.removed))
		}
	})
}

func TestContainerSession_Cancel(t *testing.T) {
	t.Parallel()

	s, _ := startLocalSession(t)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Call(ctx, []string{"sleep", "30"}, CallOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Call() took %v after cancellation", elapsed)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %s, want failed", s.State())
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
