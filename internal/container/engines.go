// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// probeTimeout bounds the version call Available makes.
const probeTimeout = 10 * time.Second

// CLIEngine is a docker-compatible engine command line. Docker and Podman
// differ only in their binary, the template their version subcommand takes,
// and how volumes are labeled.
type CLIEngine struct {
	*BaseCLIEngine
	engineType EngineType
	// versionFormat is the --format template printing the version that
	// matters for builds: the daemon's for Docker, the client's for Podman.
	versionFormat string
}

// NewDockerEngine returns the engine driving the docker CLI.
func NewDockerEngine(opts ...BaseCLIEngineOption) *CLIEngine {
	return newCLIEngine(EngineTypeDocker, "{{.Server.Version}}", opts)
}

// NewPodmanEngine returns the engine driving the podman CLI. When SELinux
// is enforcing, volume mounts get the shared :z label.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *CLIEngine {
	opts = append([]BaseCLIEngineOption{WithVolumeFormatter(selinuxVolumeFormatter(isSELinuxEnabled))}, opts...)
	return newCLIEngine(EngineTypePodman, "{{.Version}}", opts)
}

func newCLIEngine(t EngineType, versionFormat string, opts []BaseCLIEngineOption) *CLIEngine {
	binary, _ := exec.LookPath(string(t))
	return &CLIEngine{
		BaseCLIEngine: NewBaseCLIEngine(string(t), binary, opts...),
		engineType:    t,
		versionFormat: versionFormat,
	}
}

// Name returns docker or podman.
func (e *CLIEngine) Name() string { return string(e.engineType) }

// Available reports whether the binary exists and answers a version query,
// which for Docker also proves the daemon is reachable.
func (e *CLIEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	_, err := e.Version(ctx)
	return err == nil
}

// Version returns the version reported by the engine.
func (e *CLIEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", e.versionFormat)
	if err != nil {
		return "", fmt.Errorf("querying %s version: %w", e.engineType, err)
	}
	return strings.TrimSpace(out), nil
}

func isSELinuxEnabled() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	return err == nil && strings.TrimSpace(string(data)) == "1"
}

// selinuxVolumeFormatter labels mounts :z when enabled reports true. The
// host root is mounted for copying files in and out and is never relabeled.
func selinuxVolumeFormatter(enabled func() bool) VolumeFormatFunc {
	return func(v VolumeMount) string {
		s := v.String()
		switch {
		case v.HostPath == "/" || !enabled():
			return s
		case v.ReadOnly:
			return s + ",z"
		default:
			return s + ":z"
		}
	}
}
