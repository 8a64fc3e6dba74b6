// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klinikumxd/cibuildwheel/internal/config"
	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/installer"
	"github.com/Klinikumxd/cibuildwheel/internal/logger"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
	"github.com/Klinikumxd/cibuildwheel/internal/template"
	"github.com/Klinikumxd/cibuildwheel/internal/wheel"
)

// ErrPythonNotOnPath is returned when the user environment hides the
// selected interpreter behind another python or pip on PATH.
var ErrPythonNotOnPath = errors.New("selected interpreter is not first on PATH")

type (
	// SessionFactory creates the sessions configurations are built in.
	SessionFactory interface {
		Container(ctx context.Context, engine container.EngineType, image container.ImageTag) (session.Session, error)
		Host(ctx context.Context) (session.Session, error)
	}

	// Options are the inputs of a run.
	Options struct {
		Config *config.Config
		Host   matrix.Host
		// ProjectDir is the directory copied into build containers.
		ProjectDir string
		// PackageDir is the Python package to build, inside ProjectDir.
		PackageDir string
		// OutputDir receives the finished wheels.
		OutputDir string
	}

	// Driver builds configurations one after another.
	Driver struct {
		opts      Options
		platform  matrix.Platform
		log       *logger.Logger
		sessions  SessionFactory
		installer *installer.Installer
		uid, gid  int
	}

	// DriverOption configures a Driver.
	DriverOption func(*Driver)

	// Result is a wheel delivered to the output directory.
	Result struct {
		Identifier string
		Wheel      string
	}

	// plan pairs a configuration with its resolved options.
	plan struct {
		cfg  matrix.Configuration
		opts *config.Options
	}

	// target is a group of plans sharing one session.
	target struct {
		tc    toolchain
		image container.ImageTag
		plans []plan
	}

	// run is the state of one configuration.
	run struct {
		d     *Driver
		s     session.Session
		tc    toolchain
		l     layout
		p     plan
		state State
		step  string
	}

	// defaultSessions creates real container and host sessions.
	defaultSessions struct {
		opts []session.Option
	}
)

// WithLogger sets the build log.
func WithLogger(l *logger.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

// WithSessions replaces the session factory.
func WithSessions(f SessionFactory) DriverOption {
	return func(d *Driver) { d.sessions = f }
}

// WithInstaller sets the interpreter installer used by host builds.
func WithInstaller(i *installer.Installer) DriverOption {
	return func(d *Driver) { d.installer = i }
}

// WithOwner sets the uid and gid container output is handed to.
func WithOwner(uid, gid int) DriverOption {
	return func(d *Driver) { d.uid, d.gid = uid, gid }
}

// NewSessionFactory returns the factory that starts real sessions with opts.
func NewSessionFactory(opts ...session.Option) SessionFactory {
	return defaultSessions{opts: opts}
}

func (f defaultSessions) Container(_ context.Context, engineType container.EngineType, image container.ImageTag) (session.Session, error) {
	engine, err := container.NewEngine(engineType)
	if err != nil {
		return nil, &session.ProvisioningError{Backend: string(engineType), Err: err}
	}
	return session.NewContainerSession(engine, image, f.opts...), nil
}

func (f defaultSessions) Host(context.Context) (session.Session, error) {
	return session.NewHostSession(f.opts...), nil
}

// New returns a Driver for the platform of opts.Config.
func New(opts Options, dopts ...DriverOption) *Driver {
	d := &Driver{
		opts:     opts,
		platform: opts.Config.Platform(),
		uid:      os.Getuid(),
		gid:      os.Getgid(),
	}
	for _, opt := range dopts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Default()
	}
	if d.sessions == nil {
		d.sessions = NewSessionFactory()
	}
	if d.installer == nil {
		d.installer = installer.New(installer.NewDownloader())
	}
	return d
}

// Run builds configs in order and stops at the first failure. The wheels
// delivered before a failure are returned with the error.
func (d *Driver) Run(ctx context.Context, configs []matrix.Configuration) ([]Result, error) {
	plans, err := d.prepare(configs)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, t := range d.targets(plans) {
		s, err := t.tc.open(ctx, d.sessions, t)
		if err != nil {
			return results, &Error{Identifier: t.plans[0].cfg.Identifier, State: Pending, Step: "start session", Err: err}
		}
		err = session.With(ctx, s, func(s session.Session) error {
			delivered, err := d.runTarget(ctx, s, t)
			results = append(results, delivered...)
			return err
		})
		if err != nil {
			var be *Error
			if !errors.As(err, &be) {
				err = &Error{Identifier: t.plans[0].cfg.Identifier, State: Pending, Step: "start session", Err: err}
			}
			return results, err
		}
	}
	return results, nil
}

// prepare resolves the options of every configuration and checks every
// user command before any session starts.
func (d *Driver) prepare(configs []matrix.Configuration) ([]plan, error) {
	plans := make([]plan, 0, len(configs))
	for _, cfg := range configs {
		opts, err := d.opts.Config.For(cfg.Identifier)
		if err != nil {
			return nil, &Error{Identifier: cfg.Identifier, State: Pending, Step: "resolve options", Err: err}
		}
		for _, step := range stepsOf(opts) {
			if err := step.Check(); err != nil {
				return nil, &Error{Identifier: cfg.Identifier, State: Pending, Step: step.Name, Err: err}
			}
		}
		plans = append(plans, plan{cfg: cfg, opts: opts})
	}
	return plans, nil
}

func stepsOf(o *config.Options) []Step {
	return []Step{
		BeforeAllStep(o.BeforeAll),
		BeforeBuildStep(o.BeforeBuild),
		RepairStep(o.RepairWheelCommand),
		BeforeTestStep(o.BeforeTest),
		TestStep(o.TestCommand),
	}
}

// targets groups plans by session. Linux plans share a container per
// image; host plans share one host session.
func (d *Driver) targets(plans []plan) []target {
	if len(plans) == 0 {
		return nil
	}
	if d.platform != matrix.Linux {
		return []target{{tc: &hostToolchain{platform: d.platform}, plans: plans}}
	}

	type key struct {
		engine container.EngineType
		image  container.ImageTag
	}
	var (
		order  []key
		groups = map[key][]plan{}
	)
	for _, p := range plans {
		k := key{engine: p.opts.ContainerEngine, image: p.opts.ManylinuxImages[p.cfg.Arch]}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	out := make([]target, 0, len(order))
	for _, k := range order {
		out = append(out, target{
			tc:    &linuxToolchain{engine: k.engine, uid: d.uid, gid: d.gid},
			image: k.image,
			plans: groups[k],
		})
	}
	return out
}

func (d *Driver) runTarget(ctx context.Context, s session.Session, t target) ([]Result, error) {
	first := t.plans[0]
	l, err := t.tc.setup(ctx, s, d.opts)
	if err != nil {
		return nil, &Error{Identifier: first.cfg.Identifier, State: Pending, Step: "setup", Err: err}
	}
	if err := d.beforeAll(ctx, s, t.tc, l, first.opts); err != nil {
		d.log.StepEndWithError(err.Error())
		return nil, &Error{Identifier: first.cfg.Identifier, State: Pending, Step: "before_all", Err: err}
	}

	var results []Result
	for _, p := range t.plans {
		r := &run{d: d, s: s, tc: t.tc, l: l, p: p, state: Pending}
		res, err := r.execute(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// beforeAll runs the before-all hook with the user environment but
// without any interpreter selected.
func (d *Driver) beforeAll(ctx context.Context, s session.Session, tc toolchain, l layout, opts *config.Options) error {
	cmd, ok, err := BeforeAllStep(opts.BeforeAll).Render(l.values(), tc.quote())
	if err != nil || !ok {
		return err
	}
	d.log.Step("Running before_all...")
	base, err := s.Environ(ctx)
	if err != nil {
		return err
	}
	env, err := environment.Evaluate(ctx, opts.Environment, base, tc.executor(s, l))
	if err != nil {
		return err
	}
	if _, err := s.Call(ctx, tc.shell(cmd), session.CallOptions{Env: env, Cwd: l.project}); err != nil {
		return err
	}
	d.log.StepEnd()
	return nil
}

// --- per configuration ---

func (r *run) execute(ctx context.Context) (Result, error) {
	id := r.p.cfg.Identifier
	r.d.log.BuildStart(id)
	r.d.logSummary(r.p)

	delivered, err := r.walk(ctx)
	if err != nil {
		r.d.log.StepEndWithError(err.Error())
		return Result{}, &Error{Identifier: id, State: r.state, Step: r.step, Err: err}
	}
	r.d.log.BuildEnd()
	return Result{Identifier: id, Wheel: delivered}, nil
}

func (r *run) advance(s State) { r.state = s }

func (r *run) walk(ctx context.Context) (string, error) {
	opts := r.p.opts

	r.step = "prepare environment"
	be, err := r.tc.prepare(ctx, r)
	if err != nil {
		return "", err
	}
	r.advance(EnvironmentPrepared)

	r.step = "before_build"
	if err := r.hook(ctx, BeforeBuildStep(opts.BeforeBuild), "Running before_build...", be.env, nil, r.l.project); err != nil {
		return "", err
	}
	r.advance(BeforeBuildRun)

	r.step = "build wheel"
	built, err := r.build(ctx, be)
	if err != nil {
		return "", err
	}
	r.advance(WheelBuilt)

	r.step = "repair wheel"
	repaired, err := r.repair(ctx, be, built)
	if err != nil {
		return "", err
	}
	r.d.log.StepEnd()
	r.advance(WheelRepaired)

	r.step = "test wheel"
	if err := r.test(ctx, be, repaired); err != nil {
		return "", err
	}
	r.advance(Tested)

	r.step = "move wheel"
	dest := filepath.Join(r.d.opts.OutputDir, r.l.base(repaired))
	if err := r.tc.deliver(ctx, r.s, r.l, repaired, dest); err != nil {
		return "", err
	}
	r.advance(ArtifactMoved)
	r.advance(Done)
	return dest, nil
}

func (r *run) build(ctx context.Context, be buildEnv) (string, error) {
	r.d.log.Step("Building wheel...")
	dir := r.l.builtDir()
	if err := r.tc.reset(ctx, r.s, dir); err != nil {
		return "", err
	}
	argv := append([]string{"pip", "wheel", r.l.pkg, "-w", dir, "--no-deps"}, pipVerbosity(r.p.opts.BuildVerbosity)...)
	if _, err := r.s.Call(ctx, argv, session.CallOptions{Env: be.env, Cwd: r.l.project}); err != nil {
		return "", err
	}
	built, err := r.single(ctx, dir)
	if err != nil {
		return "", err
	}
	return built, wheel.CheckPlatform(built)
}

func (r *run) repair(ctx context.Context, be buildEnv, built string) (string, error) {
	dir := r.l.repairedDir()
	if err := r.tc.reset(ctx, r.s, dir); err != nil {
		return "", err
	}

	values := template.Values{
		template.Wheel:         built,
		template.DestDir:       dir,
		template.DelocateArchs: r.p.cfg.DelocateArchs(),
	}
	cmd, ok, err := RepairStep(r.p.opts.RepairWheelCommand).Render(values, r.tc.quote())
	if err != nil {
		return "", err
	}
	if ok {
		r.d.log.Step("Repairing wheel...")
		if _, err := r.s.Call(ctx, r.tc.shell(cmd), session.CallOptions{Env: be.env, Cwd: r.l.project}); err != nil {
			return "", err
		}
	} else if err := r.tc.move(ctx, r.s, built, r.l.join(dir, r.l.base(built))); err != nil {
		return "", err
	}

	repaired, err := r.single(ctx, dir)
	if err != nil {
		return "", err
	}
	if name, rename := wheel.Universal2Filename(repaired); rename {
		renamed := r.l.join(dir, name)
		if err := r.tc.move(ctx, r.s, repaired, renamed); err != nil {
			return "", err
		}
		repaired = renamed
	}
	return repaired, nil
}

func (r *run) test(ctx context.Context, be buildEnv, repaired string) error {
	if TestStep(r.p.opts.TestCommand).Empty() {
		return nil
	}
	machine := r.d.opts.Host.Machine
	archs, warning := r.p.cfg.TestArchs(r.d.platform, machine)
	if warning != "" {
		r.d.log.Warning(warning)
	}
	for _, arch := range archs {
		if err := r.testOn(ctx, be, repaired, arch); err != nil {
			return err
		}
	}
	return nil
}

// testOn installs the wheel into a fresh virtualenv and runs the tests,
// under emulation when arch differs from the build machine.
func (r *run) testOn(ctx context.Context, be buildEnv, repaired string, arch matrix.Arch) error {
	opts := r.p.opts
	prefix := r.tc.emulate(arch, r.d.opts.Host.Machine)
	if prefix == nil {
		r.d.log.Step("Testing wheel...")
	} else {
		r.d.log.Step(fmt.Sprintf("Testing wheel on %s...", arch))
	}

	call := func(argv []string, env map[string]string, cwd string) error {
		_, err := r.s.Call(ctx, append(append([]string(nil), prefix...), argv...), session.CallOptions{Env: env, Cwd: cwd})
		return err
	}

	if err := call(append([]string{"pip", "install", "virtualenv"}, be.constraints...), be.env, ""); err != nil {
		return err
	}
	venv := r.l.join(r.l.work, "venv")
	if err := r.tc.reset(ctx, r.s, venv); err != nil {
		return err
	}
	if err := call([]string{"python", "-m", "virtualenv", "--no-download", venv}, be.env, ""); err != nil {
		return err
	}

	venvEnv := maps.Clone(be.env)
	key := pathKey(venvEnv)
	venvEnv[key] = r.tc.venvBin(venv) + r.tc.pathListSep() + venvEnv[key]
	venvEnv["VIRTUAL_ENV"] = venv
	if err := call(r.tc.which("python"), venvEnv, ""); err != nil {
		return err
	}

	r.step = "before_test"
	if err := r.hook(ctx, BeforeTestStep(opts.BeforeTest), "", venvEnv, prefix, r.l.project); err != nil {
		return err
	}

	r.step = "test wheel"
	if err := call([]string{"pip", "install", repaired + opts.TestExtras}, venvEnv, ""); err != nil {
		return err
	}
	if len(opts.TestRequires) > 0 {
		if err := call(append([]string{"pip", "install"}, opts.TestRequires...), venvEnv, ""); err != nil {
			return err
		}
	}

	// Tests run from the home directory so the installed wheel is imported
	// instead of the project sources.
	cmd, _, err := TestStep(opts.TestCommand).Render(r.l.values(), r.tc.quote())
	if err != nil {
		return err
	}
	if err := call(r.tc.shell(cmd), venvEnv, r.tc.home(venvEnv)); err != nil {
		return err
	}
	r.d.log.StepEnd()
	return nil
}

// hook runs a user command step. An empty title keeps the current log step.
func (r *run) hook(ctx context.Context, step Step, title string, env map[string]string, prefix []string, cwd string) error {
	cmd, ok, err := step.Render(r.l.values(), r.tc.quote())
	if err != nil || !ok {
		return err
	}
	if title != "" {
		r.d.log.Step(title)
	}
	argv := append(append([]string(nil), prefix...), r.tc.shell(cmd)...)
	_, err = r.s.Call(ctx, argv, session.CallOptions{Env: env, Cwd: cwd})
	return err
}

func (r *run) single(ctx context.Context, dir string) (string, error) {
	matches, err := r.s.Glob(ctx, r.l.join(dir, "*"+wheel.Ext))
	if err != nil {
		return "", err
	}
	found, err := wheel.Single(matches)
	if err != nil {
		return "", fmt.Errorf("%s: %w", dir, err)
	}
	return found, nil
}

// pathKey returns the name PATH is stored under, which differs in case on
// Windows.
func pathKey(env map[string]string) string {
	for k := range env {
		if strings.EqualFold(k, "PATH") {
			return k
		}
	}
	return "PATH"
}
