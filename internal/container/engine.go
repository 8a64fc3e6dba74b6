// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const (
	// EngineTypePodman selects the podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the docker CLI.
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrInvalidEngineType is the sentinel error wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")

	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")

	// ErrInvalidContainerID is the sentinel error wrapped by InvalidContainerIDError.
	ErrInvalidContainerID = errors.New("invalid container ID")
)

type (
	// Engine defines the interface for container operations.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is available on the system.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Create creates a stopped container and returns its name.
		Create(ctx context.Context, opts CreateOptions) (ContainerID, error)
		// Start starts a created container.
		Start(ctx context.Context, id ContainerID) error
		// ExecCommand prepares (but does not start) an exec into a running container.
		// The caller wires stdin/stdout and owns the process.
		ExecCommand(ctx context.Context, id ContainerID, command []string, opts ExecOptions) *exec.Cmd
		// Remove removes a container together with its anonymous volumes.
		Remove(ctx context.Context, id ContainerID, force bool) error
		// List returns the names of all containers, running or not.
		List(ctx context.Context) ([]string, error)
	}

	// EngineType identifies the container engine type.
	EngineType string

	// InvalidEngineTypeError is returned when an EngineType is not recognized.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// ContainerID is a container name or ID.
	ContainerID string

	// InvalidContainerIDError is returned when a ContainerID is empty.
	InvalidContainerIDError struct {
		Value ContainerID
	}

	// ImageTag is a container image reference such as quay.io/pypa/manylinux2010_x86_64.
	ImageTag string

	// InvalidImageTagError is returned when an ImageTag is empty or contains whitespace.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// VolumeMount is a bind mount in "host:container[:ro]" form.
	VolumeMount struct {
		HostPath      string
		ContainerPath string
		ReadOnly      bool
	}

	// CreateOptions contains options for creating a container.
	CreateOptions struct {
		Image ImageTag
		// Name is the container name; the engine picks one when empty.
		Name string
		// Command is run as the container's main process.
		Command []string
		// EnvPassthrough lists host variable names forwarded by name.
		EnvPassthrough []string
		Volumes        []VolumeMount
		// Interactive keeps stdin open so the main process does not exit.
		Interactive bool
	}

	// ExecOptions contains options for exec commands.
	ExecOptions struct {
		Interactive bool
		WorkDir     string
	}

	// EngineNotAvailableError is returned when a container engine is not available.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// String returns the string representation of the EngineType.
func (t EngineType) String() string { return string(t) }

// Validate returns an error if the EngineType is not docker or podman.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman:
		return nil
	default:
		return &InvalidEngineTypeError{Value: t}
	}
}

// Error implements the error interface.
func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: docker, podman)", e.Value)
}

// Unwrap returns ErrInvalidEngineType for errors.Is() compatibility.
func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

// String returns the string representation of the ContainerID.
func (id ContainerID) String() string { return string(id) }

// Validate returns an error if the ContainerID is empty.
func (id ContainerID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return &InvalidContainerIDError{Value: id}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidContainerIDError) Error() string {
	return fmt.Sprintf("invalid container ID %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidContainerID for errors.Is() compatibility.
func (e *InvalidContainerIDError) Unwrap() error { return ErrInvalidContainerID }

// String returns the string representation of the ImageTag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the ImageTag is empty or contains whitespace.
func (t ImageTag) Validate() error {
	if t == "" || strings.ContainsAny(string(t), " \t\r\n") {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q", e.Value)
}

// Unwrap returns ErrInvalidImageTag for errors.Is() compatibility.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// String returns the mount in "host:container[:ro]" format.
func (v VolumeMount) String() string {
	s := v.HostPath + ":" + v.ContainerPath
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// Validate checks the image and volume fields.
func (o CreateOptions) Validate() error {
	var errs []error
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, v := range o.Volumes {
		if v.HostPath == "" || v.ContainerPath == "" {
			errs = append(errs, fmt.Errorf("invalid volume mount %q: both paths are required", v.String()))
		}
	}
	return errors.Join(errs...)
}

// NewEngine creates a new container engine based on preference, falling
// back to the other engine when the preferred one is not available.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if err := preferredType.Validate(); err != nil {
		return nil, err
	}

	var preferred, fallback Engine
	switch preferredType {
	case EngineTypePodman:
		preferred, fallback = NewPodmanEngine(opts...), NewDockerEngine(opts...)
	default:
		preferred, fallback = NewDockerEngine(opts...), NewPodmanEngine(opts...)
	}

	if preferred.Available() {
		return preferred, nil
	}
	if fallback.Available() {
		return fallback, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: preferred.Name(),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available",
			preferred.Name(), fallback.Name()),
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	docker := NewDockerEngine(opts...)
	if docker.Available() {
		return docker, nil
	}

	podman := NewPodmanEngine(opts...)
	if podman.Available() {
		return podman, nil
	}

	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
