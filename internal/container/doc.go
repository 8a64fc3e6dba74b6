// SPDX-License-Identifier: MPL-2.0

// Package container provides a thin abstraction over container engine CLIs (Docker/Podman).
//
// The Engine interface covers the lifecycle a build container goes through: Create, Start,
// ExecCommand for the long-lived shell and file transfers, Remove, and List for checking
// that nothing is left behind. Both CLIs are driven by CLIEngine, which embeds BaseCLIEngine for
// shared argument construction and command execution.
//
// Engine selection uses NewEngine(EngineType) with automatic fallback if the preferred engine
// is unavailable, or AutoDetectEngine() for preference-less detection (Docker is tried first).
//
// Only Linux containers are supported; the build images are manylinux images.
package container
