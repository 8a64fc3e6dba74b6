// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
)

const (
	// NugetURL is where the nuget command line client is downloaded from.
	NugetURL = "https://dist.nuget.org/win-x86-commandline/latest/nuget.exe"

	nugetFeed        = "https://api.nuget.org/v3/index.json"
	frameworkRoot    = "/Library/Frameworks/Python.framework/Versions"
	frameworkPackage = "org.python.Python.PythonFramework-"
)

// ErrUnsupported is returned for a configuration no installer handles.
var ErrUnsupported = errors.New("no installer for configuration")

type (
	// Installation locates an installed interpreter.
	Installation struct {
		// BinDir holds the interpreter executables.
		BinDir string
		// Python and Pip are the executable names inside BinDir.
		Python string
		Pip    string
		// PathDirs are prepended to PATH, in order.
		PathDirs []string
	}

	// Installer provides the interpreter of a configuration.
	Installer struct {
		downloader *Downloader
	}
)

// New returns an Installer that fetches through d.
func New(d *Downloader) *Installer {
	return &Installer{downloader: d}
}

// Install makes the interpreter of cfg available and returns where it is.
// Commands that need the build machine, such as the macOS package installer,
// run through s.
func (i *Installer) Install(ctx context.Context, s session.Session, p matrix.Platform, cfg matrix.Configuration) (Installation, error) {
	switch {
	case p == matrix.Linux:
		return linuxInstallation(cfg), nil
	case p == matrix.MacOS && cfg.Implementation == matrix.CPython:
		return i.installMacOSCPython(ctx, s, cfg)
	case p == matrix.MacOS && cfg.Implementation == matrix.PyPy:
		return i.installPyPy(ctx, cfg, "bin")
	case p == matrix.Windows && cfg.Implementation == matrix.CPython:
		return i.installNuget(ctx, s, cfg)
	case p == matrix.Windows && cfg.Implementation == matrix.PyPy:
		return i.installPyPy(ctx, cfg, "")
	default:
		return Installation{}, fmt.Errorf("%w: %s on %s", ErrUnsupported, cfg.Identifier, p)
	}
}

// linuxInstallation points at the interpreter shipped in the manylinux image.
func linuxInstallation(cfg matrix.Configuration) Installation {
	bin := cfg.Source + "/bin"
	return Installation{BinDir: bin, Python: "python", Pip: "pip", PathDirs: []string{bin}}
}

func (i *Installer) installMacOSCPython(ctx context.Context, s session.Session, cfg matrix.Configuration) (Installation, error) {
	pkgs, err := s.Call(ctx, []string{"pkgutil", "--pkgs"}, session.CallOptions{Capture: true})
	if err != nil {
		return Installation{}, err
	}
	if !slices.Contains(strings.Split(pkgs, "\n"), frameworkPackage+cfg.Version) {
		pkg, err := i.downloader.Fetch(ctx, cfg.Source)
		if err != nil {
			return Installation{}, err
		}
		if _, err := s.Call(ctx, []string{"sudo", "installer", "-pkg", pkg, "-target", "/"}, session.CallOptions{}); err != nil {
			return Installation{}, err
		}
	}

	bin := frameworkRoot + "/" + cfg.Version + "/bin"
	return Installation{
		BinDir:   bin,
		Python:   versioned("python", cfg),
		Pip:      versioned("pip", cfg),
		PathDirs: []string{bin},
	}, nil
}

// installPyPy unpacks a PyPy release archive. binSubdir is where the
// executables live inside the archive.
func (i *Installer) installPyPy(ctx context.Context, cfg matrix.Configuration, binSubdir string) (Installation, error) {
	dir, err := i.downloader.Extract(ctx, cfg.Source)
	if err != nil {
		return Installation{}, err
	}
	bin := dir
	if binSubdir != "" {
		bin = filepath.Join(dir, binSubdir)
	}

	inst := Installation{
		BinDir:   bin,
		Python:   versioned("pypy", cfg),
		Pip:      versioned("pip", cfg),
		PathDirs: []string{bin},
	}
	if binSubdir == "" {
		inst.Python += ".exe"
		inst.PathDirs = append(inst.PathDirs, filepath.Join(dir, "Scripts"))
	}
	return inst, nil
}

func (i *Installer) installNuget(ctx context.Context, s session.Session, cfg matrix.Configuration) (Installation, error) {
	nuget, err := i.downloader.Fetch(ctx, NugetURL)
	if err != nil {
		return Installation{}, err
	}

	pkg := "python"
	if cfg.Arch == matrix.X86 {
		pkg = "pythonx86"
	}
	out := filepath.Join(i.downloader.CacheDir(), "nuget")
	argv := []string{nuget, "install", pkg, "-Version", cfg.Source, "-FallbackSource", nugetFeed, "-OutputDirectory", out}
	if _, err := s.Call(ctx, argv, session.CallOptions{}); err != nil {
		return Installation{}, err
	}

	tools := filepath.Join(out, pkg+"."+cfg.Source, "tools")
	return Installation{
		BinDir:   tools,
		Python:   "python.exe",
		Pip:      "pip.exe",
		PathDirs: []string{tools, filepath.Join(tools, "Scripts")},
	}, nil
}

// versioned returns name, with a "3" suffix for Python 3 interpreters.
func versioned(name string, cfg matrix.Configuration) string {
	if cfg.MajorVersion() == "3" {
		return name + "3"
	}
	return name
}
