// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Klinikumxd/cibuildwheel/internal/session"
)

type (
	// LocalExecutor interprets substitutions in-process with the mvdan.cc/sh
	// runner. External programs are still started as host processes.
	LocalExecutor struct {
		// Dir is the working directory; empty means the current directory.
		Dir string
	}

	// SessionExecutor runs substitutions with bash inside a live session.
	SessionExecutor struct {
		Session session.Session
	}
)

// Substitute implements Executor.
func (e LocalExecutor) Substitute(ctx context.Context, command string, env map[string]string) (string, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", command, err)
	}

	var stdout strings.Builder
	runner, err := interp.New(
		interp.Dir(e.Dir),
		interp.Env(expand.ListEnviron(pairs(env)...)),
		interp.StdIO(nil, &stdout, os.Stderr),
	)
	if err != nil {
		return "", err
	}
	if err := runner.Run(ctx, file); err != nil {
		return "", fmt.Errorf("command %q failed: %w", command, err)
	}
	return stdout.String(), nil
}

// Substitute implements Executor.
func (e SessionExecutor) Substitute(ctx context.Context, command string, env map[string]string) (string, error) {
	return e.Session.Call(ctx, []string{"bash", "-c", command}, session.CallOptions{
		Env:     env,
		Capture: true,
	})
}
