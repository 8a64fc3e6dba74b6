// SPDX-License-Identifier: MPL-2.0

// Package environment parses and evaluates the user-supplied build
// environment.
//
// The string form ("A=1 B=$A:x") is split into shell words and every word
// must start with a literal NAME= prefix. Table form entries and
// passthrough variables are handled with their own, more literal rules.
// Evaluation is ordered: each assignment sees the ones before it, and an
// unresolved variable expands to the empty string. Command substitutions
// are delegated to an Executor, so the same expander runs whether the
// commands execute on the host or inside a build container.
package environment
