// SPDX-License-Identifier: MPL-2.0

// Package config resolves build options from pyproject.toml, CIBW_*
// environment variables and command-line flags.
//
// The [tool.cibuildwheel] table is decoded with CUE's TOML decoder and
// validated against an embedded schema (schema.cue). Layers are merged with
// Viper, lowest precedence first:
//
//	defaults
//	[tool.cibuildwheel]
//	[tool.cibuildwheel.<platform>]
//	[[tool.cibuildwheel.overrides]] whose select matches the identifier
//	CIBW_<OPTION>
//	CIBW_<OPTION>_<PLATFORM>
//	command-line flags
package config
