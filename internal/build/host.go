// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/installer"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
)

// hostToolchain builds on the machine itself with interpreters from
// python.org, nuget or PyPy archives.
type hostToolchain struct {
	platform matrix.Platform
}

func (tc *hostToolchain) open(ctx context.Context, f SessionFactory, _ target) (session.Session, error) {
	return f.Host(ctx)
}

func (tc *hostToolchain) setup(_ context.Context, s session.Session, opts Options) (layout, error) {
	if _, err := packageRel(opts); err != nil {
		return layout{}, err
	}
	var work string
	if wd, ok := s.(interface{ WorkDir() string }); ok {
		work = wd.WorkDir()
	}
	if work == "" {
		return layout{}, fmt.Errorf("host session has no working directory")
	}
	return layout{project: opts.ProjectDir, pkg: opts.PackageDir, work: work}, nil
}

func (tc *hostToolchain) prepare(ctx context.Context, r *run) (buildEnv, error) {
	cfg, opts := r.p.cfg, r.p.opts
	tag, _, _ := strings.Cut(cfg.Identifier, "-")
	r.d.log.Step(fmt.Sprintf("Installing Python %s...", tag))
	inst, err := r.d.installer.Install(ctx, r.s, tc.platform, cfg)
	if err != nil {
		return buildEnv{}, err
	}

	r.d.log.Step("Setting up build environment...")
	base, err := r.s.Environ(ctx)
	if err != nil {
		return buildEnv{}, err
	}
	dirs := inst.PathDirs
	var linked string
	if tc.platform == matrix.MacOS {
		if linked, err = installer.Link(r.l.work, inst); err != nil {
			return buildEnv{}, err
		}
		dirs = append([]string{linked}, dirs...)
	}
	env := maps.Clone(base)
	prependPath(env, dirs, tc.pathListSep())

	env, err = environment.Evaluate(ctx, opts.Environment, env, tc.executor(r.s, r.l))
	if err != nil {
		return buildEnv{}, err
	}

	be := buildEnv{env: env}
	if c := opts.DependencyConstraints; c != "" {
		be.constraints = []string{"-c", c}
	}

	call := func(argv ...string) error {
		_, err := r.s.Call(ctx, argv, session.CallOptions{Env: env, Cwd: r.l.work})
		return err
	}
	if linked != "" {
		if err := checkWhich(ctx, r.s, tc, env, "python", filepath.Join(linked, "python")); err != nil {
			return buildEnv{}, err
		}
	}
	if err := call("python", "--version"); err != nil {
		return buildEnv{}, err
	}
	if err := call("python", "-m", "ensurepip", "--upgrade"); err != nil {
		return buildEnv{}, err
	}
	if linked != "" {
		if err := checkWhich(ctx, r.s, tc, env, "pip", filepath.Join(linked, "pip")); err != nil {
			return buildEnv{}, err
		}
	}
	if err := call(append([]string{"python", "-m", "pip", "install", "--upgrade", "pip"}, be.constraints...)...); err != nil {
		return buildEnv{}, err
	}

	if tc.platform == matrix.MacOS {
		macOSDefaults(env, cfg)
	}

	r.d.log.Step("Installing build tools...")
	tools := []string{"pip", "install", "--upgrade", "setuptools", "wheel"}
	if tc.platform == matrix.MacOS {
		tools = append(tools, "delocate")
	}
	if err := call(append(tools, be.constraints...)...); err != nil {
		return buildEnv{}, err
	}
	return be, nil
}

// macOSDefaults pins the deployment target and, for interpreters that ship
// multi-architecture builds, the architecture being compiled. Values the
// user set are kept.
func macOSDefaults(env map[string]string, cfg matrix.Configuration) {
	setDefault := func(k, v string) {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}
	setDefault("MACOSX_DEPLOYMENT_TARGET", "10.9")

	switch {
	case cfg.Version == "3.5", cfg.Version == "3.9" && cfg.Arch == matrix.X86_64:
		setDefault("_PYTHON_HOST_PLATFORM", "macosx-10.9-x86_64")
		setDefault("ARCHFLAGS", "-arch x86_64")
	case cfg.Version == "3.9" && cfg.Arch == matrix.ARM64:
		setDefault("_PYTHON_HOST_PLATFORM", "macosx-11.0-arm64")
		setDefault("ARCHFLAGS", "-arch arm64")
	}
}

func (tc *hostToolchain) reset(_ context.Context, _ session.Session, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (tc *hostToolchain) move(_ context.Context, _ session.Session, src, dst string) error {
	return os.Rename(src, dst)
}

func (tc *hostToolchain) deliver(ctx context.Context, s session.Session, _ layout, wheelPath, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return s.CopyOut(ctx, wheelPath, dest)
}

func (tc *hostToolchain) shell(cmd string) []string {
	if tc.platform == matrix.Windows {
		return []string{"cmd", "/C", cmd}
	}
	return []string{"sh", "-c", cmd}
}

// quote is off on Windows, where cmd.exe does not understand POSIX quoting.
func (tc *hostToolchain) quote() bool { return tc.platform != matrix.Windows }

func (tc *hostToolchain) executor(s session.Session, l layout) environment.Executor {
	if tc.platform == matrix.Windows {
		return environment.LocalExecutor{Dir: l.project}
	}
	return environment.SessionExecutor{Session: s}
}

// emulate runs x86_64 tests through Rosetta on Apple Silicon.
func (tc *hostToolchain) emulate(arch, machine matrix.Arch) []string {
	if tc.platform == matrix.MacOS && machine == matrix.ARM64 && arch == matrix.X86_64 {
		return []string{"arch", "-x86_64"}
	}
	return nil
}

func (tc *hostToolchain) venvBin(venv string) string {
	if tc.platform == matrix.Windows {
		return filepath.Join(venv, "Scripts")
	}
	return filepath.Join(venv, "bin")
}

func (tc *hostToolchain) pathListSep() string {
	if tc.platform == matrix.Windows {
		return ";"
	}
	return ":"
}

func (tc *hostToolchain) which(name string) []string {
	if tc.platform == matrix.Windows {
		return []string{"where", name}
	}
	return []string{"which", name}
}

func (tc *hostToolchain) home(env map[string]string) string {
	if tc.platform == matrix.Windows {
		return env["USERPROFILE"]
	}
	return env["HOME"]
}
