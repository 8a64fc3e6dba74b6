// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
	"github.com/Klinikumxd/cibuildwheel/internal/template"
)

type (
	// toolchain holds what differs between a container build and a host
	// build.
	toolchain interface {
		open(ctx context.Context, f SessionFactory, t target) (session.Session, error)
		// setup runs once after the session starts.
		setup(ctx context.Context, s session.Session, opts Options) (layout, error)
		// prepare activates the interpreter of r's configuration.
		prepare(ctx context.Context, r *run) (buildEnv, error)
		// reset replaces dir with an empty directory.
		reset(ctx context.Context, s session.Session, dir string) error
		move(ctx context.Context, s session.Session, src, dst string) error
		// deliver puts a finished wheel at dest on the host.
		deliver(ctx context.Context, s session.Session, l layout, wheelPath, dest string) error

		shell(cmd string) []string
		// quote reports whether placeholder values are shell-quoted.
		quote() bool
		executor(s session.Session, l layout) environment.Executor
		// emulate returns the argv prefix that runs a command as arch.
		emulate(arch, machine matrix.Arch) []string
		venvBin(venv string) string
		pathListSep() string
		which(name string) []string
		home(env map[string]string) string
	}

	// layout locates the directories of a session.
	layout struct {
		project string
		pkg     string
		// work holds the per-configuration scratch directories.
		work  string
		posix bool
	}

	// buildEnv is the environment a configuration's commands run with.
	buildEnv struct {
		env map[string]string
		// constraints are the pip flags pinning build dependencies.
		constraints []string
	}
)

func (l layout) join(elem ...string) string {
	if l.posix {
		return path.Join(elem...)
	}
	return filepath.Join(elem...)
}

func (l layout) base(p string) string {
	if l.posix {
		return path.Base(p)
	}
	return filepath.Base(p)
}

func (l layout) builtDir() string    { return l.join(l.work, "built_wheel") }
func (l layout) repairedDir() string { return l.join(l.work, "repaired_wheel") }

func (l layout) values() template.Values {
	return template.Values{template.Project: l.project, template.Package: l.pkg}
}

// packageRel returns the package directory relative to the project.
func packageRel(opts Options) (string, error) {
	rel, err := filepath.Rel(opts.ProjectDir, opts.PackageDir)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("package directory %s is outside the project %s", opts.PackageDir, opts.ProjectDir)
	}
	return rel, nil
}

// checkWhich verifies that name resolves to want on the PATH of env.
func checkWhich(ctx context.Context, s session.Session, tc toolchain, env map[string]string, name, want string) error {
	out, err := s.Call(ctx, tc.which(name), session.CallOptions{Env: env, Capture: true})
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(out); got != want {
		return fmt.Errorf("%w: %s resolves to %q instead of %q", ErrPythonNotOnPath, name, got, want)
	}
	return nil
}

func prependPath(env map[string]string, dirs []string, sep string) {
	key := pathKey(env)
	parts := append([]string(nil), dirs...)
	if env[key] != "" {
		parts = append(parts, env[key])
	}
	env[key] = strings.Join(parts, sep)
}
