// SPDX-License-Identifier: MPL-2.0

package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moby/go-archive"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/template"
)

const (
	// HostMount is where the host root filesystem is visible inside build containers.
	HostMount = "/host"

	containerShell   = "/bin/bash"
	shellExitTimeout = 10 * time.Second

	globScript = `IFS=; shopt -s nullglob; for f in $1; do printf '%s\0' "$f"; done`
)

// ContainerSession runs commands through one long-lived bash process
// inside a build container.
type ContainerSession struct {
	options
	lifecycle

	engine container.Engine
	image  container.ImageTag
	id     container.ContainerID

	// mu serializes use of the shared shell.
	mu       sync.Mutex
	shell    *exec.Cmd
	shellIn  io.WriteCloser
	shellOut *bufio.Reader
}

// NewContainerSession returns a session for image; nothing runs until Start.
func NewContainerSession(engine container.Engine, image container.ImageTag, opts ...Option) *ContainerSession {
	return &ContainerSession{
		options: newOptions("container", opts),
		engine:  engine,
		image:   image,
	}
}

// Name returns the container name, empty before Start.
func (s *ContainerSession) Name() string { return string(s.id) }

// State returns the current lifecycle state.
func (s *ContainerSession) State() State { return s.current() }

// Start creates and starts the container and attaches the shell.
func (s *ContainerSession) Start(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	if err := s.provision(ctx); err != nil {
		s.fail()
		return &ProvisioningError{Backend: s.engine.Name(), Err: err}
	}
	if !s.started() {
		return &ProvisioningError{Backend: s.engine.Name(), Err: ErrNotRunning}
	}
	s.logger.Debug("container started", "name", s.id, "image", s.image)
	return nil
}

func (s *ContainerSession) provision(ctx context.Context) error {
	id, err := s.engine.Create(ctx, container.CreateOptions{
		Image:          s.image,
		Name:           "cibuildwheel-" + uuid.NewString(),
		Command:        []string{containerShell},
		EnvPassthrough: []string{"CIBUILDWHEEL"},
		Volumes:        []container.VolumeMount{{HostPath: "/", ContainerPath: HostMount}},
		Interactive:    true,
	})
	if err != nil {
		return err
	}
	s.id = id

	if err := s.engine.Start(ctx, id); err != nil {
		return err
	}

	// The shell outlives ctx; it is torn down by Stop.
	shell := s.engine.ExecCommand(context.Background(), id, []string{containerShell}, container.ExecOptions{Interactive: true})
	setProcessGroup(shell)
	shell.Stderr = s.stderr

	in, err := shell.StdinPipe()
	if err != nil {
		return err
	}
	out, err := shell.StdoutPipe()
	if err != nil {
		return err
	}
	if err := shell.Start(); err != nil {
		return fmt.Errorf("attaching shell to %s: %w", id, err)
	}

	s.shell = shell
	s.shellIn = in
	s.shellOut = bufio.NewReaderSize(out, 64*1024)
	return nil
}

// Stop detaches the shell and removes the container. Only the first call
// does any work.
func (s *ContainerSession) Stop(ctx context.Context) error {
	if _, ok := s.stop(); !ok {
		return nil
	}

	if s.shell != nil {
		_ = s.shellIn.Close()
		done := make(chan struct{})
		go func() {
			_ = s.shell.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shellExitTimeout):
			_ = killProcessGroup(s.shell)
			<-done
		}
	}

	if s.id == "" {
		return nil
	}
	s.logger.Debug("removing container", "name", s.id)
	if err := s.engine.Remove(ctx, s.id, true); err != nil {
		return fmt.Errorf("removing container %s: %w", s.id, err)
	}
	return nil
}

// Call runs argv in a subshell of the container shell.
func (s *ContainerSession) Call(ctx context.Context, argv []string, opts CallOptions) (string, error) {
	s.echoCommand(argv)
	return s.call(ctx, argv, opts)
}

func (s *ContainerSession) call(ctx context.Context, argv []string, opts CallOptions) (string, error) {
	if err := ValidateCall(argv, opts); err != nil {
		return "", err
	}
	marker := "cibuildwheel-end-" + uuid.NewString()
	script, err := callScript(argv, opts, marker)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return "", err
	}

	stop := context.AfterFunc(ctx, func() {
		s.fail()
		_ = killProcessGroup(s.shell)
	})
	defer stop()

	if _, err := io.WriteString(s.shellIn, script); err != nil {
		return "", s.broken(ctx, err)
	}

	var captured bytes.Buffer
	out := s.stdout
	if opts.Capture {
		out = &captured
	}
	code, err := readUntilMarker(s.shellOut, marker, out)
	if err != nil {
		return "", s.broken(ctx, err)
	}
	if code != 0 {
		return "", &CommandError{Argv: argv, ExitCode: code, Output: captured.String()}
	}
	return captured.String(), nil
}

func (s *ContainerSession) broken(ctx context.Context, err error) error {
	s.fail()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("container shell in %s terminated: %w", s.id, err)
}

// CopyInto streams a tar of hostPath into the container.
func (s *ContainerSession) CopyInto(ctx context.Context, hostPath, sessionPath string) error {
	if err := s.ready(); err != nil {
		return err
	}
	src, err := filepath.Abs(hostPath)
	if err != nil {
		return err
	}
	content, err := archive.TarResourceRebase(src, path.Base(sessionPath))
	if err != nil {
		return fmt.Errorf("archiving %s: %w", hostPath, err)
	}
	defer content.Close()

	cmd := s.engine.ExecCommand(ctx, s.id,
		[]string{"sh", "-c", `mkdir -p -- "$1" && tar -xf - -C "$1"`, "sh", path.Dir(sessionPath)},
		container.ExecOptions{Interactive: true})
	cmd.Stdin = content
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying %s into %s:%s: %w%s", hostPath, s.id, sessionPath, err, stderrSuffix(&stderr))
	}
	return nil
}

// CopyOut streams a tar of sessionPath out of the container and unpacks it
// at hostPath, creating missing parent directories.
func (s *ContainerSession) CopyOut(ctx context.Context, sessionPath, hostPath string) error {
	if err := s.ready(); err != nil {
		return err
	}
	dst, err := filepath.Abs(hostPath)
	if err != nil {
		return err
	}
	destDir := filepath.Dir(dst)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	cmd := s.engine.ExecCommand(ctx, s.id,
		[]string{"tar", "-cf", "-", "-C", path.Dir(sessionPath), path.Base(sessionPath)},
		container.ExecOptions{})
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	pr, pw := io.Pipe()
	cmd.Stdout = pw

	var g errgroup.Group
	g.Go(func() error {
		err := cmd.Run()
		pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("archiving %s:%s: %w%s", s.id, sessionPath, err, stderrSuffix(&stderr))
		}
		return nil
	})
	g.Go(func() error {
		rebased := archive.RebaseArchiveEntries(pr, path.Base(sessionPath), filepath.Base(dst))
		err := archive.Untar(rebased, destDir, &archive.TarOptions{NoLchown: true})
		_ = rebased.Close()
		// tar pads its output past the end-of-archive marker.
		_, _ = io.Copy(io.Discard, pr)
		if err != nil {
			return fmt.Errorf("unpacking into %s: %w", destDir, err)
		}
		return nil
	})
	return g.Wait()
}

// Glob expands pattern with bash pathname expansion inside the container.
func (s *ContainerSession) Glob(ctx context.Context, pattern string) ([]string, error) {
	out, err := s.call(ctx, []string{"bash", "-c", globScript, "bash", pattern}, CallOptions{Capture: true})
	if err != nil {
		return nil, err
	}
	matches := splitNUL(out)
	slices.Sort(matches)
	return matches, nil
}

// Environ returns the container shell's environment.
func (s *ContainerSession) Environ(ctx context.Context) (map[string]string, error) {
	out, err := s.call(ctx, []string{"env", "-0"}, CallOptions{Capture: true})
	if err != nil {
		return nil, err
	}
	env := make(map[string]string)
	for _, kv := range splitNUL(out) {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

// callScript renders one call as a subshell followed by a status footer.
// Every word is quoted so that bash reproduces its bytes exactly. The shell
// owns PWD and OLDPWD, so the cd comes after the exports.
func callScript(argv []string, opts CallOptions, marker string) (string, error) {
	var b strings.Builder
	b.WriteString("(\n")

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		if shellOwned(k) {
			continue
		}
		if !syntax.ValidName(k) {
			return "", fmt.Errorf("invalid environment variable name %q", k)
		}
		v, err := template.Quote(opts.Env[k])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "export %s=%s\n", k, v)
	}

	if opts.Cwd != "" {
		cwd, err := template.Quote(opts.Cwd)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "cd -- %s || exit $?\n", cwd)
	}

	command, err := template.QuoteArgs(argv)
	if err != nil {
		return "", err
	}
	b.WriteString(command)
	b.WriteString(" </dev/null\n)\n")
	fmt.Fprintf(&b, "printf '%%04d%%s\\n' $? %s\n", marker)
	return b.String(), nil
}

// readUntilMarker copies output to w until the footer line, which carries
// a four-digit exit status followed by marker. Output that does not end in
// a newline shares its last line with the footer.
func readUntilMarker(r *bufio.Reader, marker string, w io.Writer) (int, error) {
	suffix := []byte(marker + "\n")
	for {
		line, err := r.ReadBytes('\n')
		if code, n, ok := parseFooter(line, suffix); ok {
			if _, werr := w.Write(line[:n]); werr != nil {
				return 0, werr
			}
			return code, nil
		}
		if len(line) > 0 {
			if _, werr := w.Write(line); werr != nil {
				return 0, werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
}

// parseFooter reports whether line ends with a status footer, returning the
// status and the length of the output that precedes it.
func parseFooter(line, suffix []byte) (code, n int, ok bool) {
	if !bytes.HasSuffix(line, suffix) {
		return 0, 0, false
	}
	n = len(line) - len(suffix) - 4
	if n < 0 {
		return 0, 0, false
	}
	for _, c := range line[n : n+4] {
		if c < '0' || c > '9' {
			return 0, 0, false
		}
	}
	code, _ = strconv.Atoi(string(line[n : n+4]))
	return code, n, true
}

func splitNUL(s string) []string {
	s = strings.TrimSuffix(s, "\x00")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\x00")
}

func stderrSuffix(b *bytes.Buffer) string {
	if msg := strings.TrimSpace(b.String()); msg != "" {
		return ": " + msg
	}
	return ""
}
