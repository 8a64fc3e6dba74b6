// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Klinikumxd/cibuildwheel/internal/build"
	"github.com/Klinikumxd/cibuildwheel/internal/config"
	"github.com/Klinikumxd/cibuildwheel/internal/issue"
	"github.com/Klinikumxd/cibuildwheel/internal/logger"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
)

var errNoIdentifiers = errors.New("no build identifiers selected")

type (
	// buildParams are the inputs of a run, separated from cobra for tests.
	buildParams struct {
		stdout     io.Writer
		stderr     io.Writer
		flags      *rootFlags
		packageDir string
		// cfgFlags are option values given on the command line.
		cfgFlags map[string]any
		// configs loads the configuration; nil means config.NewProvider.
		configs config.Provider
		// sessions replaces the real session factory when set.
		sessions build.SessionFactory
	}

	// buildPlan is the validated matrix and options of a run.
	buildPlan struct {
		cfg        *config.Config
		host       matrix.Host
		configs    []matrix.Configuration
		projectDir string
		packageDir string
		outputDir  string
	}
)

func runBuild(cmd *cobra.Command, flags *rootFlags, packageDir string) error {
	p := buildParams{
		stdout:     cmd.OutOrStdout(),
		stderr:     cmd.ErrOrStderr(),
		flags:      flags,
		packageDir: packageDir,
		cfgFlags:   map[string]any{},
	}
	if cmd.Flags().Changed("archs") {
		p.cfgFlags["archs"] = flags.archs
	}
	if cmd.Flags().Changed("output-dir") {
		p.cfgFlags["output-dir"] = flags.outputDir
	}

	if err := run(cmd.Context(), p); err != nil {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return err
	}
	return nil
}

// run plans the matrix and, unless only identifiers are printed, builds it.
// The returned error is an *ExitError that has already been reported.
func run(ctx context.Context, p buildParams) error {
	log := logger.New(p.stderr, logger.WithVerbose(p.flags.verbose))

	plan, err := planBuild(ctx, p, log)
	if err != nil {
		renderError(p.stderr, log, err, p.flags.verbose)
		return &ExitError{Code: ExitUsage, Err: err}
	}

	if p.flags.printIdentifiers {
		for _, id := range matrix.Identifiers(plan.configs) {
			fmt.Fprintln(p.stdout, id)
		}
		return nil
	}

	if err := os.MkdirAll(plan.outputDir, 0o755); err != nil {
		err = issue.WrapWithContext(err, "create output directory", plan.outputDir)
		renderError(p.stderr, log, err, p.flags.verbose)
		return &ExitError{Code: ExitUsage, Err: err}
	}

	sessions := p.sessions
	if sessions == nil {
		sessions = build.NewSessionFactory(
			session.WithStdout(p.stdout),
			session.WithStderr(p.stderr),
			session.WithEcho(p.stdout),
			session.WithLogger(log.Charm()),
		)
	}
	driver := build.New(build.Options{
		Config:     plan.cfg,
		Host:       plan.host,
		ProjectDir: plan.projectDir,
		PackageDir: plan.packageDir,
		OutputDir:  plan.outputDir,
	}, build.WithLogger(log), build.WithSessions(sessions))

	results, err := driver.Run(ctx, plan.configs)
	printResults(p.stdout, plan.outputDir, results)
	if err != nil {
		renderError(p.stderr, log, err, p.flags.verbose)
		return &ExitError{Code: classifyExitCode(err), Err: err}
	}
	return nil
}

// planBuild resolves the platform, options and matrix without starting
// anything.
func planBuild(ctx context.Context, p buildParams, log *logger.Logger) (*buildPlan, error) {
	platformName := p.flags.platform
	if platformName == "" {
		platformName = os.Getenv("CIBW_PLATFORM")
	}
	platform, err := matrix.ParsePlatform(platformName)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("select platform").
			WithResource(platformName).
			WithSuggestion("Use --platform linux, macos or windows").
			WithIssue(issue.UnsupportedHostId).
			Wrap(err).
			BuildError()
	}
	host, err := matrix.DetectHost(platform)
	if err != nil {
		return nil, issue.WrapWithOperation(err, "detect build host")
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	packageDir, err := filepath.Abs(p.packageDir)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(packageDir)
	if err == nil && !st.IsDir() {
		err = fmt.Errorf("%s is not a directory", packageDir)
	}
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("find package directory").
			WithResource(packageDir).
			WithSuggestion("Pass the directory that holds setup.py or pyproject.toml").
			Wrap(err).
			BuildError()
	}

	provider := p.configs
	if provider == nil {
		provider = config.NewProvider()
	}
	cfg, err := provider.Load(ctx, config.LoadOptions{
		PackageDir: packageDir,
		ConfigFile: p.flags.configFile,
		Platform:   platform,
		Flags:      p.cfgFlags,
	})
	if err != nil {
		return nil, err
	}
	global, err := cfg.Global()
	if err != nil {
		return nil, err
	}

	selector, err := matrix.NewSelector(global.Build, global.Skip)
	if err != nil {
		return nil, issue.WrapWithContext(err, "parse build selector", global.Build+" / "+global.Skip)
	}
	archs, err := matrix.ParseArchs(global.Archs, host)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse archs").
			WithResource(global.Archs).
			WithSuggestion(fmt.Sprintf("Valid archs for %s: %v, or auto, native, all", platform, platform.Archs())).
			WithIssue(issue.InvalidArchsId).
			Wrap(err).
			BuildError()
	}

	configs, warnings := matrix.Enumerate(host, archs, selector)
	for _, w := range warnings {
		log.Warning(w.Error())
	}
	if len(configs) == 0 && !p.flags.printIdentifiers {
		return nil, issue.NewErrorContext().
			WithOperation("select builds").
			WithResource(fmt.Sprintf("build=%q skip=%q archs=%q", global.Build, global.Skip, global.Archs)).
			WithSuggestion("Run with --print-build-identifiers to see what the options select").
			WithIssue(issue.NoBuildIdentifiersId).
			Wrap(errNoIdentifiers).
			BuildError()
	}

	outputDir, err := filepath.Abs(global.OutputDir)
	if err != nil {
		return nil, err
	}
	return &buildPlan{
		cfg:        cfg,
		host:       host,
		configs:    configs,
		projectDir: projectDir,
		packageDir: packageDir,
		outputDir:  outputDir,
	}, nil
}

func printResults(w io.Writer, outputDir string, results []build.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d wheels produced in %s\n", len(results), pathStyle.Render(outputDir))
	for _, r := range results {
		fmt.Fprintf(w, "  %s %s\n", successStyle.Render("✓"), filepath.Base(r.Wheel))
	}
}
