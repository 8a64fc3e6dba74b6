// SPDX-License-Identifier: MPL-2.0

// Package testutil holds helpers shared by package tests: fatal-on-error
// file helpers, session cleanup, a FakeClock for timing output and gating
// for tests that need a container engine.
package testutil
