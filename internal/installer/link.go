// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"fmt"
	"os"
	"path/filepath"
)

// LinkDirName is the name of the bin directory created by Link.
const LinkDirName = "cibw_bin"

// Link creates a bin directory under workDir with python, python-config and
// pip entries pointing into inst, so the installation answers to the
// unversioned names. An existing directory is replaced. It returns the
// directory to put first on PATH.
func Link(workDir string, inst Installation) (string, error) {
	dir := filepath.Join(workDir, LinkDirName)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	python := filepath.Join(inst.BinDir, inst.Python)
	if _, err := os.Stat(python); err != nil {
		return "", fmt.Errorf("interpreter not installed: %w", err)
	}

	links := map[string]string{
		"python":        python,
		"python-config": python + "-config",
		"pip":           filepath.Join(inst.BinDir, inst.Pip),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(dir, name)); err != nil {
			return "", err
		}
	}
	return dir, nil
}
