// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupported is the sentinel error wrapped by UnsupportedWarning.
var ErrUnsupported = errors.New("configuration unsupported on this host")

// UnsupportedWarning reports configurations dropped from the matrix because
// the build host cannot build them. It is not fatal.
type UnsupportedWarning struct {
	Reason      string
	Identifiers []string
	// Hint tells the user how to deselect the configurations explicitly.
	Hint string
}

// Error implements the error interface.
func (w *UnsupportedWarning) Error() string {
	return fmt.Sprintf("%s; skipping %s. %s", w.Reason, strings.Join(w.Identifiers, ", "), w.Hint)
}

// Unwrap returns ErrUnsupported for errors.Is() compatibility.
func (w *UnsupportedWarning) Unwrap() error { return ErrUnsupported }

// pruneRule removes configurations a host cannot build.
type pruneRule struct {
	applies func(Host) bool
	drops   func(Configuration) bool
	reason  string
	hint    string
}

func macOS11(h Host) bool { return h.Platform == MacOS && h.Version.AtLeast(11, 0) }

var pruneRules = []pruneRule{
	{
		applies: macOS11,
		drops:   func(c Configuration) bool { return c.Implementation == PyPy },
		reason:  "PyPy is currently unsupported when building on macOS 11",
		hint:    `To build PyPy wheels, build on macOS 10.15 or older; to silence this warning, add "pp*-macosx*" to the skip option.`,
	},
	{
		applies: macOS11,
		drops:   func(c Configuration) bool { return c.Implementation == CPython && c.Version == "3.5" },
		reason:  "CPython 3.5 is unsupported when building on macOS 11",
		hint:    `To build CPython 3.5 wheels, build on macOS 10.15 or older; to silence this warning, add "cp35-macosx_x86_64" to the skip option.`,
	},
}

// Enumerate returns the configurations of h.Platform's catalog whose
// architecture is in archs and whose identifier sel selects, in catalog
// order. Configurations the host cannot build are removed, with one warning
// per rule that removed something.
func Enumerate(h Host, archs []Arch, sel Selector) ([]Configuration, []*UnsupportedWarning) {
	var configs []Configuration
	for _, c := range Catalog(h.Platform) {
		if slices.Contains(archs, c.Arch) && sel.Match(c.Identifier) {
			configs = append(configs, c)
		}
	}

	var warnings []*UnsupportedWarning
	for _, rule := range pruneRules {
		if !rule.applies(h) {
			continue
		}
		var dropped []string
		configs = slices.DeleteFunc(configs, func(c Configuration) bool {
			if rule.drops(c) {
				dropped = append(dropped, c.Identifier)
				return true
			}
			return false
		})
		if len(dropped) > 0 {
			warnings = append(warnings, &UnsupportedWarning{
				Reason:      rule.reason,
				Identifiers: slices.Compact(dropped),
				Hint:        rule.hint,
			})
		}
	}
	return configs, warnings
}

// Identifiers returns the distinct identifiers of configs in order.
func Identifiers(configs []Configuration) []string {
	ids := make([]string, 0, len(configs))
	for _, c := range configs {
		if !slices.Contains(ids, c.Identifier) {
			ids = append(ids, c.Identifier)
		}
	}
	return ids
}
