// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Klinikumxd/cibuildwheel/internal/issue"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
)

const (
	// PyprojectFile is read from the package directory unless another
	// config file is given.
	PyprojectFile = "pyproject.toml"

	envPrefix = "CIBW"
)

var (
	// ErrInvalidConfig is wrapped by every configuration file error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidOption is the sentinel error wrapped by OptionError.
	ErrInvalidOption = errors.New("invalid option")
)

type (
	// LoadOptions are the inputs of Load.
	LoadOptions struct {
		// PackageDir holds the default pyproject.toml.
		PackageDir string
		// ConfigFile replaces PackageDir/pyproject.toml; it must exist.
		ConfigFile string
		// Platform selects the platform table and CIBW_*_<PLATFORM> variables.
		Platform matrix.Platform
		// Flags are command-line values keyed by option name.
		Flags map[string]any
	}

	// Config holds the decoded configuration layers. Options are resolved
	// per build identifier with For.
	Config struct {
		path     string
		platform matrix.Platform
		file     *fileLayers
		flags    map[string]any
	}

	// OptionError reports an option whose value cannot be used.
	OptionError struct {
		Option string
		Value  string
		Err    error
	}
)

// Error implements the error interface.
func (e *OptionError) Error() string {
	return fmt.Sprintf("option %s=%q: %v", e.Option, e.Value, e.Err)
}

// Unwrap returns the sentinel and the underlying cause.
func (e *OptionError) Unwrap() []error { return []error{ErrInvalidOption, e.Err} }

// Load reads and validates the configuration file. A missing default
// pyproject.toml is not an error.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load config canceled: %w", err)
	}
	if err := opts.Platform.Validate(); err != nil {
		return nil, err
	}

	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = filepath.Join(opts.PackageDir, PyprojectFile)
	}

	cfg := &Config{
		path:     path,
		platform: opts.Platform,
		file:     &fileLayers{global: layer{}, platforms: map[matrix.Platform]layer{}},
		flags:    maps.Clone(opts.Flags),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg.file, err = decodePyproject(path, data); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check the option names in [tool.cibuildwheel]").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cfg.path = ""
	default:
		return nil, issue.NewErrorContext().
			WithOperation("read configuration file").
			WithResource(path).
			WithSuggestion("Verify the --config-file path is correct").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	return cfg, nil
}

// Path returns the configuration file in use, or "" when there is none.
func (c *Config) Path() string { return c.path }

// Platform returns the platform the options are resolved for.
func (c *Config) Platform() matrix.Platform { return c.platform }

// Global resolves the options that do not depend on a build identifier.
// Overrides are not applied.
func (c *Config) Global() (*Options, error) {
	return c.resolve("")
}

// For resolves the options of one build identifier, applying every
// override whose select patterns match it.
func (c *Config) For(identifier string) (*Options, error) {
	return c.resolve(identifier)
}

func (c *Config) resolve(identifier string) (*Options, error) {
	v := c.viper(identifier)
	opts, err := decodeOptions(v, c.platform)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("resolve build options").
			WithResource(identifierOrGlobal(identifier)).
			WithIssue(issueFor(err)).
			Wrap(err).
			BuildError()
	}
	opts.Identifier = identifier
	return opts, nil
}

// viper layers the configuration for one identifier. Config-file layers are
// merged in precedence order; environment variables and flags rank above
// any file value.
func (c *Config) viper(identifier string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults(c.platform) {
		v.SetDefault(key, value)
	}

	merge := func(l layer) {
		if len(l) > 0 {
			// Keys are flat and already lower case, so the merge cannot fail.
			_ = v.MergeConfigMap(maps.Clone(l))
		}
	}
	merge(c.file.global)
	merge(c.file.platforms[c.platform])
	if identifier != "" {
		for _, ov := range c.file.overrides {
			if matchesAny(ov.selectors, identifier) {
				merge(ov.options)
			}
		}
	}

	for _, key := range optionNames {
		// The first variable that is set wins.
		_ = v.BindEnv(key, envName(key, c.platform), envName(key, ""))
	}
	for key, value := range c.flags {
		v.Set(key, value)
	}
	return v
}

// envName returns CIBW_<OPTION> or CIBW_<OPTION>_<PLATFORM>.
func envName(option string, p matrix.Platform) string {
	name := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(option, "-", "_"))
	if p != "" {
		name += "_" + strings.ToUpper(string(p))
	}
	return name
}

func identifierOrGlobal(identifier string) string {
	if identifier == "" {
		return "global options"
	}
	return identifier
}

func matchesAny(patterns []string, identifier string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matrix.Selector{Build: patterns}.Match(identifier)
}
