// SPDX-License-Identifier: MPL-2.0

// Package template fills named placeholders such as {wheel} or {dest_dir}
// into user-provided hook commands.
//
// A template is parsed once and then executed against a value set for the
// phase it belongs to. Placeholders without a value are reported as a
// TemplateError instead of being left in the command. Values substituted
// into a shell string are quoted so that the shell reproduces them byte for
// byte; values substituted into an argument vector are inserted verbatim.
//
// Syntax:
//
//	{name}      placeholder, name matches [A-Za-z_][A-Za-z0-9_]*
//	{{ and }}   literal braces
//	${...}      shell parameter expansion, copied through untouched
//
// Any other brace is literal text, so shell brace expansion such as
// {a,b} keeps working.
package template
