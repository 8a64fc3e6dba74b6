// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/issue"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
)

// LatestDependencies leaves build tool versions unconstrained.
const LatestDependencies = "latest"

// Default repair commands per platform.
const (
	LinuxRepairCommand = "auditwheel repair -w {dest_dir} {wheel}"
	MacOSRepairCommand = "delocate-listdeps {wheel} && delocate-wheel --require-archs {delocate_archs} -w {dest_dir} {wheel}"
)

// manylinuxArchs are the architectures with a manylinux-<arch>-image option.
var manylinuxArchs = []matrix.Arch{matrix.X86_64, matrix.I686, matrix.AArch64, matrix.PPC64LE, matrix.S390X}

// optionNames lists every option in documentation order.
var optionNames = []string{
	"build",
	"skip",
	"archs",
	"environment",
	"environment-pass",
	"before-all",
	"before-build",
	"repair-wheel-command",
	"test-command",
	"before-test",
	"test-requires",
	"test-extras",
	"build-verbosity",
	"dependency-versions",
	"container-engine",
	"output-dir",
	"manylinux-x86_64-image",
	"manylinux-i686-image",
	"manylinux-aarch64-image",
	"manylinux-ppc64le-image",
	"manylinux-s390x-image",
}

// Options are the resolved settings of one build identifier.
type Options struct {
	// Identifier is empty for global options.
	Identifier string
	Platform   matrix.Platform

	Build string
	Skip  string
	Archs string

	// Environment holds environment-pass variables first, then the
	// environment option.
	Environment environment.Assignments

	BeforeAll          string
	BeforeBuild        string
	RepairWheelCommand string
	TestCommand        string
	BeforeTest         string
	TestRequires       []string
	// TestExtras is a pip extras suffix such as "[test,speedups]".
	TestExtras string

	BuildVerbosity int
	// DependencyConstraints is an absolute constraints file path, or ""
	// when versions are not pinned.
	DependencyConstraints string

	ContainerEngine container.EngineType
	ManylinuxImages map[matrix.Arch]container.ImageTag
	OutputDir       string
}

// Selector returns the build/skip selector.
func (o *Options) Selector() (matrix.Selector, error) {
	sel, err := matrix.NewSelector(o.Build, o.Skip)
	if err != nil {
		return matrix.Selector{}, &OptionError{Option: "build", Value: o.Build + " / " + o.Skip, Err: err}
	}
	return sel, nil
}

func defaults(p matrix.Platform) map[string]any {
	d := map[string]any{
		"build":                   "*",
		"skip":                    "",
		"archs":                   "auto",
		"environment":             "",
		"environment-pass":        "",
		"before-all":              "",
		"before-build":            "",
		"repair-wheel-command":    "",
		"test-command":            "",
		"before-test":             "",
		"test-requires":           "",
		"test-extras":             "",
		"build-verbosity":         0,
		"dependency-versions":     LatestDependencies,
		"container-engine":        string(container.EngineTypeDocker),
		"output-dir":              "wheelhouse",
		"manylinux-x86_64-image":  "manylinux2010",
		"manylinux-i686-image":    "manylinux2010",
		"manylinux-aarch64-image": "manylinux2014",
		"manylinux-ppc64le-image": "manylinux2014",
		"manylinux-s390x-image":   "manylinux2014",
	}
	switch p {
	case matrix.Linux:
		d["repair-wheel-command"] = LinuxRepairCommand
	case matrix.MacOS:
		d["repair-wheel-command"] = MacOSRepairCommand
	}
	return d
}

func decodeOptions(v *viper.Viper, p matrix.Platform) (*Options, error) {
	o := &Options{
		Platform:           p,
		Build:              v.GetString("build"),
		Skip:               v.GetString("skip"),
		Archs:              v.GetString("archs"),
		BeforeAll:          v.GetString("before-all"),
		BeforeBuild:        v.GetString("before-build"),
		RepairWheelCommand: v.GetString("repair-wheel-command"),
		TestCommand:        v.GetString("test-command"),
		BeforeTest:         v.GetString("before-test"),
		TestRequires:       strings.Fields(v.GetString("test-requires")),
		OutputDir:          v.GetString("output-dir"),
		ManylinuxImages:    make(map[matrix.Arch]container.ImageTag, len(manylinuxArchs)),
	}

	if extras := strings.TrimSpace(v.GetString("test-extras")); extras != "" {
		o.TestExtras = "[" + extras + "]"
	}

	var err error
	if o.Environment, err = environmentOption(v, p); err != nil {
		return nil, err
	}

	verbosity := v.Get("build-verbosity")
	if o.BuildVerbosity, err = cast.ToIntE(verbosity); err != nil || o.BuildVerbosity < -3 || o.BuildVerbosity > 3 {
		return nil, &OptionError{
			Option: "build-verbosity",
			Value:  cast.ToString(verbosity),
			Err:    errors.New("must be an integer from -3 to 3"),
		}
	}

	if deps := v.GetString("dependency-versions"); deps != LatestDependencies {
		abs, err := filepath.Abs(deps)
		if err == nil {
			_, err = os.Stat(abs)
		}
		if err != nil {
			return nil, &OptionError{Option: "dependency-versions", Value: deps, Err: err}
		}
		o.DependencyConstraints = abs
	}

	engine := container.EngineType(v.GetString("container-engine"))
	if err := engine.Validate(); err != nil {
		return nil, &OptionError{Option: "container-engine", Value: string(engine), Err: err}
	}
	o.ContainerEngine = engine

	for _, arch := range manylinuxArchs {
		key := "manylinux-" + string(arch) + "-image"
		image := ManylinuxImage(arch, v.GetString(key))
		if err := image.Validate(); err != nil {
			return nil, &OptionError{Option: key, Value: string(image), Err: err}
		}
		o.ManylinuxImages[arch] = image
	}
	return o, nil
}

// environmentOption parses environment (a string or an ordered table) and
// prepends environment-pass variables that are set on the host. Passing
// through only applies to Linux, where builds run in a container.
func environmentOption(v *viper.Viper, p matrix.Platform) (environment.Assignments, error) {
	var (
		parsed environment.Assignments
		err    error
	)
	raw := v.Get("environment")
	if env, ok := raw.(environmentValue); ok && env.IsTable {
		names := make([]string, len(env.Table))
		values := make([]string, len(env.Table))
		for i, e := range env.Table {
			names[i], values[i] = e.Name, e.Value
		}
		if parsed, err = environment.Table(names, values); err != nil {
			return nil, &OptionError{Option: "environment", Value: fmt.Sprint(env.Table), Err: err}
		}
	} else {
		text := cast.ToString(raw)
		if ok {
			text = env.Text
		}
		if parsed, err = environment.Parse(text); err != nil {
			return nil, &OptionError{Option: "environment", Value: text, Err: err}
		}
	}

	if p != matrix.Linux {
		return parsed, nil
	}
	var out environment.Assignments
	for _, name := range strings.Fields(v.GetString("environment-pass")) {
		if value, ok := os.LookupEnv(name); ok {
			out = append(out, environment.Passthrough(name, value))
		}
	}
	return append(out, parsed...), nil
}

// ManylinuxImage expands the manylinux1, manylinux2010 and manylinux2014
// shorthands to their quay.io images; other values are image names.
func ManylinuxImage(arch matrix.Arch, value string) container.ImageTag {
	switch value {
	case "manylinux1", "manylinux2010", "manylinux2014":
		return container.ImageTag("quay.io/pypa/" + value + "_" + string(arch))
	default:
		return container.ImageTag(value)
	}
}

func issueFor(err error) issue.Id {
	if errors.Is(err, environment.ErrParse) {
		return issue.EnvironmentParseErrorId
	}
	return issue.ConfigLoadFailedId
}
