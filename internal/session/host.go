// SPDX-License-Identifier: MPL-2.0

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/moby/go-archive"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// hostWaitDelay bounds how long Call waits for output pipes after the
// process group has been killed.
const hostWaitDelay = 5 * time.Second

// HostSession runs commands directly on the build machine with a private
// temporary working directory.
type HostSession struct {
	options
	lifecycle

	mu      sync.Mutex
	workDir string
	env     map[string]string
}

// NewHostSession returns a host session; nothing is created until Start.
func NewHostSession(opts ...Option) *HostSession {
	return &HostSession{options: newOptions("host", opts)}
}

// WorkDir returns the per-session temporary directory, empty before Start.
func (s *HostSession) WorkDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workDir
}

// State returns the current lifecycle state.
func (s *HostSession) State() State { return s.current() }

// Start creates the working directory and snapshots the host environment.
func (s *HostSession) Start(_ context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "cibuildwheel-")
	if err != nil {
		s.fail()
		return &ProvisioningError{Backend: "host", Err: err}
	}

	s.mu.Lock()
	s.workDir = dir
	s.env = hostEnviron()
	s.mu.Unlock()

	if !s.started() {
		return &ProvisioningError{Backend: "host", Err: ErrNotRunning}
	}
	s.logger.Debug("host session started", "workdir", dir)
	return nil
}

// Stop removes the working directory once.
func (s *HostSession) Stop(_ context.Context) error {
	if _, ok := s.stop(); !ok {
		return nil
	}
	s.mu.Lock()
	dir := s.workDir
	s.mu.Unlock()
	if dir == "" {
		return nil
	}
	s.logger.Debug("removing host session directory", "workdir", dir)
	return os.RemoveAll(dir)
}

// Call runs argv as a direct child process in its own process group.
func (s *HostSession) Call(ctx context.Context, argv []string, opts CallOptions) (string, error) {
	if err := ValidateCall(argv, opts); err != nil {
		return "", err
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	s.echoCommand(argv)

	env := mergeEnv(s.env, opts.Env)
	cwd := opts.Cwd
	if cwd == "" {
		var err error
		if cwd, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	maps.DeleteFunc(env, func(k, _ string) bool { return shellOwned(k) })
	if abs, err := filepath.Abs(cwd); err == nil {
		env["PWD"] = abs
	}
	pairs := envPairs(env)
	// Resolve against the call's PATH rather than this process's.
	bin, err := interp.LookPathDir(cwd, expand.ListEnviron(pairs...), argv[0])
	if err != nil {
		return "", fmt.Errorf("command %s: %w", argv[0], err)
	}

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Args[0] = argv[0]
	cancelProcessGroup(cmd)
	cmd.WaitDelay = hostWaitDelay
	cmd.Env = pairs
	cmd.Dir = opts.Cwd
	cmd.Stderr = s.stderr

	var captured bytes.Buffer
	if opts.Capture {
		cmd.Stdout = &captured
	} else {
		cmd.Stdout = s.stdout
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{Argv: argv, ExitCode: exitErr.ExitCode(), Output: captured.String()}
		}
		return "", fmt.Errorf("command %s failed: %w", argv[0], err)
	}
	return captured.String(), nil
}

// CopyInto copies hostPath to sessionPath on the same machine.
func (s *HostSession) CopyInto(_ context.Context, hostPath, sessionPath string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return copyTree(hostPath, sessionPath)
}

// CopyOut copies sessionPath to hostPath on the same machine.
func (s *HostSession) CopyOut(_ context.Context, sessionPath, hostPath string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return copyTree(sessionPath, hostPath)
}

// Glob returns the sorted matches of pattern.
func (s *HostSession) Glob(_ context.Context, pattern string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		return []string{}, nil
	}
	slices.Sort(matches)
	return matches, nil
}

// Environ returns a copy of the environment commands start with.
func (s *HostSession) Environ(_ context.Context) (map[string]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return maps.Clone(s.env), nil
}

// hostEnviron snapshots os.Environ. __PYVENV_LAUNCHER__ is dropped since
// it makes macOS framework Pythons report the wrong executable.
func hostEnviron() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || k == "__PYVENV_LAUNCHER__" {
			continue
		}
		env[k] = v
	}
	return env
}

func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

// --- local copies ---

var localArchiver = &archive.Archiver{Untar: untarNoChown}

func untarNoChown(r io.Reader, dest string, opts *archive.TarOptions) error {
	if opts == nil {
		opts = &archive.TarOptions{}
	}
	opts.NoLchown = true
	return archive.Untar(r, dest, opts)
}

// copyTree copies a file or directory, replacing dst and creating its parents.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() && !info.IsDir() {
		return fmt.Errorf("copying %s to %s: destination is a directory", src, dst)
	}
	if err := localArchiver.CopyWithTar(src, dst); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}
