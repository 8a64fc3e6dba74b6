// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type (
	// ExecCommandFunc builds the *exec.Cmd for an engine invocation. Tests
	// replace it to record arguments.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc renders a volume mount as the -v argument.
	VolumeFormatFunc func(volume VolumeMount) string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine runs container lifecycle subcommands through an engine
	// binary. It covers everything except Name, Available and Version.
	BaseCLIEngine struct {
		name            string
		binaryPath      string
		execCommand     ExecCommandFunc
		volumeFormatter VolumeFormatFunc
	}
)

// WithExecCommand replaces how engine commands are built.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.execCommand = fn }
}

// WithBinaryPath overrides the engine binary resolved from PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.binaryPath = path }
}

// WithVolumeFormatter replaces how volume mounts are rendered.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.volumeFormatter = fn }
}

// NewBaseCLIEngine returns an engine running binaryPath.
func NewBaseCLIEngine(name, binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:            name,
		binaryPath:      binaryPath,
		execCommand:     exec.CommandContext,
		volumeFormatter: VolumeMount.String,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the engine binary, or "" when none was found.
func (e *BaseCLIEngine) BinaryPath() string { return e.binaryPath }

// CreateArgs returns the arguments of
// "create [--env NAME]... [--name N] [-i] [-v MOUNT]... IMAGE [CMD...]".
func (e *BaseCLIEngine) CreateArgs(opts CreateOptions) []string {
	args := []string{"create"}
	for _, name := range opts.EnvPassthrough {
		args = append(args, "--env", name)
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Interactive {
		args = append(args, "-i")
	}
	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v))
	}
	return append(append(args, string(opts.Image)), opts.Command...)
}

// ExecArgs returns the arguments of "exec [-i] [-w DIR] ID CMD...".
func (e *BaseCLIEngine) ExecArgs(id ContainerID, command []string, opts ExecOptions) []string {
	args := []string{"exec"}
	if opts.Interactive {
		args = append(args, "-i")
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	return append(append(args, string(id)), command...)
}

// RemoveArgs returns the arguments of "rm [--force] -v ID". Anonymous
// volumes go with the container.
func (e *BaseCLIEngine) RemoveArgs(id ContainerID, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "--force")
	}
	return append(args, "-v", string(id))
}

// CreateCommand returns the unstarted command for args.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus runs args, discarding stdout.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	_, err := e.run(ctx, args, false)
	return err
}

// RunCommandWithOutput runs args and returns stdout.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	return e.run(ctx, args, true)
}

// run executes args. A failure carries the engine's stderr, which is
// where docker and podman explain themselves.
func (e *BaseCLIEngine) run(ctx context.Context, args []string, capture bool) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	if capture {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s %s: %w: %s", e.name, strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("%s %s: %w", e.name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// Create creates a container. It returns the requested name, or the ID
// the engine printed when no name was given.
func (e *BaseCLIEngine) Create(ctx context.Context, opts CreateOptions) (ContainerID, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	out, err := e.RunCommandWithOutput(ctx, e.CreateArgs(opts)...)
	if err != nil {
		return "", fmt.Errorf("creating container from %s: %w", opts.Image, err)
	}
	if opts.Name != "" {
		return ContainerID(opts.Name), nil
	}
	return ContainerID(strings.TrimSpace(out)), nil
}

// Start starts a created container.
func (e *BaseCLIEngine) Start(ctx context.Context, id ContainerID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, "start", string(id))
}

// ExecCommand returns the unstarted exec of command in container id.
func (e *BaseCLIEngine) ExecCommand(ctx context.Context, id ContainerID, command []string, opts ExecOptions) *exec.Cmd {
	return e.CreateCommand(ctx, e.ExecArgs(id, command, opts)...)
}

// Remove removes a container and its anonymous volumes.
func (e *BaseCLIEngine) Remove(ctx context.Context, id ContainerID, force bool) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, e.RemoveArgs(id, force)...)
}

// List returns the names of all containers, running or stopped.
func (e *BaseCLIEngine) List(ctx context.Context) ([]string, error) {
	out, err := e.RunCommandWithOutput(ctx, "ps", "-a", "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	var names []string
	for line := range strings.Lines(out) {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
