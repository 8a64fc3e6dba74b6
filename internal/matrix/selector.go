// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"fmt"
	"path"
	"strings"
)

// Selector filters identifiers with shell-style patterns. An identifier is
// selected when it matches any Build pattern and no Skip pattern; an empty
// Build list selects everything.
type Selector struct {
	Build []string
	Skip  []string
}

// NewSelector splits whitespace-separated build and skip option values and
// checks every pattern is well formed.
func NewSelector(build, skip string) (Selector, error) {
	s := Selector{Build: strings.Fields(build), Skip: strings.Fields(skip)}
	for _, p := range append(s.Build[:len(s.Build):len(s.Build)], s.Skip...) {
		if _, err := path.Match(pathPattern(p), ""); err != nil {
			return Selector{}, fmt.Errorf("invalid selector pattern %q: %w", p, err)
		}
	}
	return s, nil
}

// Match reports whether identifier is selected.
func (s Selector) Match(identifier string) bool {
	if len(s.Build) > 0 && !matchAny(s.Build, identifier) {
		return false
	}
	return !matchAny(s.Skip, identifier)
}

func matchAny(patterns []string, identifier string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(pathPattern(p), identifier); ok {
			return true
		}
	}
	return false
}

// pathPattern rewrites the fnmatch class negation "[!...]" to the "[^...]"
// spelling path.Match understands.
func pathPattern(p string) string {
	if !strings.Contains(p, "[!") {
		return p
	}
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch {
		case p[i] == '\\' && i+1 < len(p):
			b.WriteString(p[i : i+2])
			i++
		case p[i] == '[' && i+1 < len(p) && p[i+1] == '!':
			b.WriteString("[^")
			i++
		default:
			b.WriteByte(p[i])
		}
	}
	return b.String()
}
