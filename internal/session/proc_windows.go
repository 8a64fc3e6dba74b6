// SPDX-License-Identifier: MPL-2.0

//go:build windows

package session

import (
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

// cancelProcessGroup keeps the default cancellation, which kills the child.
func cancelProcessGroup(_ *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
