// SPDX-License-Identifier: MPL-2.0

package template

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// Project is the project root directory.
	Project = "project"
	// Package is the directory of the Python package being built.
	Package = "package"
	// Wheel is the path of the wheel produced by the previous stage.
	Wheel = "wheel"
	// DestDir is the directory a repair command must write into.
	DestDir = "dest_dir"
	// DelocateArchs is the comma-separated architecture list for delocate.
	DelocateArchs = "delocate_archs"
)

var (
	// ErrTemplate is the sentinel error wrapped by TemplateError.
	ErrTemplate = errors.New("template error")

	// ErrUnquotable is returned when a value cannot be represented in a shell word.
	ErrUnquotable = errors.New("value cannot be shell-quoted")
)

type (
	// Template is a parsed command template.
	Template struct {
		source   string
		segments []segment
	}

	// TemplateError is returned when a template references a placeholder
	// that has no value, or when a template cannot be parsed.
	TemplateError struct {
		Template    string
		Placeholder string
		Reason      string
	}

	segment struct {
		text        string
		placeholder string
	}

	// Values maps placeholder names to their concrete values.
	Values map[string]string
)

// Error implements the error interface.
func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template %q: placeholder {%s}: %s", e.Template, e.Placeholder, e.Reason)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

// Unwrap returns ErrTemplate for errors.Is() compatibility.
func (e *TemplateError) Unwrap() error { return ErrTemplate }

// Parse splits s into literal text and placeholders.
func Parse(s string) (*Template, error) {
	t := &Template{source: s}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, &TemplateError{Template: s, Reason: "unterminated ${ expansion"}
			}
			lit.WriteString(s[i : i+end+1])
			i += end + 1
		case c == '{':
			name, ok := placeholderAt(s[i:])
			if !ok {
				lit.WriteByte(c)
				i++
				continue
			}
			flush()
			t.segments = append(t.segments, segment{placeholder: name})
			i += len(name) + 2
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()

	return t, nil
}

// placeholderAt reports the placeholder name if s starts with "{name}".
func placeholderAt(s string) (string, bool) {
	end := strings.IndexByte(s, '}')
	if end < 2 {
		return "", false
	}
	name := s[1:end]
	if !isName(name) {
		return "", false
	}
	return name, true
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// String returns the template source.
func (t *Template) String() string { return t.source }

// Placeholders returns the distinct placeholder names in order of first use.
func (t *Template) Placeholders() []string {
	var names []string
	for _, seg := range t.segments {
		if seg.placeholder != "" && !slices.Contains(names, seg.placeholder) {
			names = append(names, seg.placeholder)
		}
	}
	return names
}

// Execute substitutes every placeholder with its shell-quoted value.
// The result is meant to be passed as a single "sh -c" argument.
func (t *Template) Execute(values Values) (string, error) {
	return t.render(values, func(name, v string) (string, error) {
		q, err := Quote(v)
		if err != nil {
			return "", &TemplateError{Template: t.source, Placeholder: name, Reason: err.Error()}
		}
		return q, nil
	})
}

// ExecuteRaw substitutes placeholders without quoting.
func (t *Template) ExecuteRaw(values Values) (string, error) {
	return t.render(values, func(_, v string) (string, error) { return v, nil })
}

func (t *Template) render(values Values, conv func(name, v string) (string, error)) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.placeholder == "" {
			b.WriteString(seg.text)
			continue
		}
		v, ok := values[seg.placeholder]
		if !ok {
			return "", &TemplateError{
				Template:    t.source,
				Placeholder: seg.placeholder,
				Reason:      "no value is available in this phase",
			}
		}
		s, err := conv(seg.placeholder, v)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Format parses s and executes it with shell quoting.
func Format(s string, values Values) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.Execute(values)
}

// FormatArgs substitutes placeholders in each element of argv. No quoting
// is applied since no shell interprets the result.
func FormatArgs(argv []string, values Values) ([]string, error) {
	out := make([]string, 0, len(argv))
	for _, arg := range argv {
		t, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		s, err := t.ExecuteRaw(values)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
