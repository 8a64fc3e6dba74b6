// SPDX-License-Identifier: MPL-2.0

// Package build drives the build matrix. Each configuration walks a fixed
// sequence of states inside an execution session:
//
//	Pending → EnvironmentPrepared → BeforeBuildRun → WheelBuilt →
//	WheelRepaired → Tested → ArtifactMoved → Done
//
// Any failure moves the configuration to Failed and stops the run. Wheels
// delivered by earlier configurations stay in the output directory.
//
// User commands are described by Step values and rendered through the
// template package, so a hook can only use the placeholders of its phase.
// All templates are checked before the first session starts.
package build
