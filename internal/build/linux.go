// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"maps"
	"path"
	"path/filepath"

	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
)

const (
	containerProject     = "/project"
	containerWork        = "/tmp/cibuildwheel"
	containerOutput      = "/output"
	containerConstraints = "/constraints.txt"

	resetScript = `rm -rf -- "$1" && mkdir -p -- "$1"`
)

// linuxToolchain builds inside a manylinux container, using the
// interpreters the image ships under /opt/python.
type linuxToolchain struct {
	engine   container.EngineType
	uid, gid int
}

func (tc *linuxToolchain) open(ctx context.Context, f SessionFactory, t target) (session.Session, error) {
	return f.Container(ctx, tc.engine, t.image)
}

func (tc *linuxToolchain) setup(ctx context.Context, s session.Session, opts Options) (layout, error) {
	rel, err := packageRel(opts)
	if err != nil {
		return layout{}, err
	}
	l := layout{
		project: containerProject,
		pkg:     path.Join(containerProject, filepath.ToSlash(rel)),
		work:    containerWork,
		posix:   true,
	}
	if err := tc.reset(ctx, s, l.work); err != nil {
		return layout{}, err
	}
	if err := s.CopyInto(ctx, opts.ProjectDir, containerProject); err != nil {
		return layout{}, fmt.Errorf("copying project into container: %w", err)
	}
	return l, nil
}

func (tc *linuxToolchain) prepare(ctx context.Context, r *run) (buildEnv, error) {
	r.d.log.Step("Setting up build environment...")
	inst, err := r.d.installer.Install(ctx, r.s, matrix.Linux, r.p.cfg)
	if err != nil {
		return buildEnv{}, err
	}
	base, err := r.s.Environ(ctx)
	if err != nil {
		return buildEnv{}, err
	}
	env := maps.Clone(base)
	prependPath(env, inst.PathDirs, ":")

	env, err = environment.Evaluate(ctx, r.p.opts.Environment, env, tc.executor(r.s, r.l))
	if err != nil {
		return buildEnv{}, err
	}
	if err := checkWhich(ctx, r.s, tc, env, "python", path.Join(inst.BinDir, inst.Python)); err != nil {
		return buildEnv{}, err
	}
	if err := checkWhich(ctx, r.s, tc, env, "pip", path.Join(inst.BinDir, inst.Pip)); err != nil {
		return buildEnv{}, err
	}

	be := buildEnv{env: env}
	if c := r.p.opts.DependencyConstraints; c != "" {
		if err := r.s.CopyInto(ctx, c, containerConstraints); err != nil {
			return buildEnv{}, err
		}
		be.constraints = []string{"-c", containerConstraints}
	}
	return be, nil
}

func (tc *linuxToolchain) reset(ctx context.Context, s session.Session, dir string) error {
	_, err := s.Call(ctx, []string{"sh", "-c", resetScript, "sh", dir}, session.CallOptions{})
	return err
}

func (tc *linuxToolchain) move(ctx context.Context, s session.Session, src, dst string) error {
	_, err := s.Call(ctx, []string{"mv", src, dst}, session.CallOptions{})
	return err
}

// deliver moves the wheel to /output, hands it to the invoking user and
// copies it to the host.
func (tc *linuxToolchain) deliver(ctx context.Context, s session.Session, l layout, wheelPath, dest string) error {
	out := path.Join(containerOutput, l.base(wheelPath))
	if _, err := s.Call(ctx, []string{"mkdir", "-p", containerOutput}, session.CallOptions{}); err != nil {
		return err
	}
	if err := tc.move(ctx, s, wheelPath, out); err != nil {
		return err
	}
	owner := fmt.Sprintf("%d:%d", tc.uid, tc.gid)
	if _, err := s.Call(ctx, []string{"chown", owner, out}, session.CallOptions{}); err != nil {
		return err
	}
	return s.CopyOut(ctx, out, dest)
}

func (tc *linuxToolchain) shell(cmd string) []string { return []string{"sh", "-c", cmd} }
func (tc *linuxToolchain) quote() bool               { return true }

func (tc *linuxToolchain) executor(s session.Session, _ layout) environment.Executor {
	return environment.SessionExecutor{Session: s}
}

func (tc *linuxToolchain) emulate(_, _ matrix.Arch) []string { return nil }
func (tc *linuxToolchain) venvBin(venv string) string        { return path.Join(venv, "bin") }
func (tc *linuxToolchain) pathListSep() string               { return ":" }
func (tc *linuxToolchain) which(name string) []string        { return []string{"which", name} }
func (tc *linuxToolchain) home(env map[string]string) string { return env["HOME"] }
