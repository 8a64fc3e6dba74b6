// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the values of the root command's flags.
type rootFlags struct {
	platform         string
	archs            string
	outputDir        string
	configFile       string
	printIdentifiers bool
	verbose          bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "cibuildwheel [package_dir]",
		Short: "Build Python wheels for all the platforms on CI",
		Long: titleStyle.Render("cibuildwheel") + subtitleStyle.Render(" - Build Python wheels for all the platforms on CI") + `

cibuildwheel builds, repairs and tests one wheel per interpreter and
architecture of the selected platform. Linux wheels are built inside
manylinux containers; macOS and Windows wheels are built on the host
with interpreters installed on demand.

Options are read from [tool.cibuildwheel] in pyproject.toml and from
CIBW_* environment variables.

` + subtitleStyle.Render("Examples:") + `
  cibuildwheel --platform linux              Build every Linux wheel
  cibuildwheel --print-build-identifiers     List what would be built
  CIBW_BUILD="cp39-*" cibuildwheel src/pkg   Build one version of src/pkg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packageDir := "."
			if len(args) > 0 {
				packageDir = args[0]
			}
			return runBuild(cmd, flags, packageDir)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.platform, "platform", "",
		"platform to build for: auto, linux, macos or windows (default $CIBW_PLATFORM or auto)")
	f.StringVar(&flags.archs, "archs", "",
		"comma separated architectures to build, or auto, native, all (overrides CIBW_ARCHS)")
	f.StringVar(&flags.outputDir, "output-dir", "",
		"destination folder for the wheels (default $CIBW_OUTPUT_DIR or wheelhouse)")
	f.StringVar(&flags.configFile, "config-file", "",
		"TOML file with the options (default {package_dir}/pyproject.toml)")
	f.BoolVar(&flags.printIdentifiers, "print-build-identifiers", false,
		"print the build identifiers that match the options and exit")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	return cmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command and exits with its status.
func Execute() {
	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		// Flag and argument errors from cobra.
		os.Exit(int(ExitUsage))
	}
}
