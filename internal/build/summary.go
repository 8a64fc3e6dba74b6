// SPDX-License-Identifier: MPL-2.0

package build

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
)

// optionsSummary is the debug view of a configuration's options.
type optionsSummary struct {
	Identifier         string            `toml:"identifier"`
	Build              string            `toml:"build"`
	Skip               string            `toml:"skip,omitempty"`
	Archs              string            `toml:"archs"`
	Environment        string            `toml:"environment,omitempty"`
	BeforeAll          string            `toml:"before-all,omitempty"`
	BeforeBuild        string            `toml:"before-build,omitempty"`
	RepairWheelCommand string            `toml:"repair-wheel-command,omitempty"`
	BeforeTest         string            `toml:"before-test,omitempty"`
	TestCommand        string            `toml:"test-command,omitempty"`
	TestRequires       []string          `toml:"test-requires,omitempty"`
	TestExtras         string            `toml:"test-extras,omitempty"`
	BuildVerbosity     int               `toml:"build-verbosity"`
	DependencyVersions string            `toml:"dependency-versions,omitempty"`
	ContainerEngine    string            `toml:"container-engine,omitempty"`
	Images             map[string]string `toml:"manylinux-images,omitempty"`
	OutputDir          string            `toml:"output-dir"`
}

func summarize(p plan) optionsSummary {
	o := p.opts
	s := optionsSummary{
		Identifier:         p.cfg.Identifier,
		Build:              o.Build,
		Skip:               o.Skip,
		Archs:              o.Archs,
		Environment:        o.Environment.String(),
		BeforeAll:          o.BeforeAll,
		BeforeBuild:        o.BeforeBuild,
		RepairWheelCommand: o.RepairWheelCommand,
		BeforeTest:         o.BeforeTest,
		TestCommand:        o.TestCommand,
		TestRequires:       o.TestRequires,
		TestExtras:         o.TestExtras,
		BuildVerbosity:     o.BuildVerbosity,
		DependencyVersions: o.DependencyConstraints,
		OutputDir:          o.OutputDir,
	}
	if o.Platform == matrix.Linux {
		s.ContainerEngine = string(o.ContainerEngine)
		if image, ok := o.ManylinuxImages[p.cfg.Arch]; ok {
			s.Images = map[string]string{string(p.cfg.Arch): string(image)}
		}
	}
	return s
}

// logSummary prints the options of a configuration at debug level.
func (d *Driver) logSummary(p plan) {
	out, err := toml.Marshal(summarize(p))
	if err != nil {
		d.log.Debug("cannot summarize options", "identifier", p.cfg.Identifier, "err", err)
		return
	}
	d.log.Debug("resolved options\n" + string(out))
}
