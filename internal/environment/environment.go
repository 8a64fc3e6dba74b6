// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

const (
	// KindExpression is a shell word evaluated with assignment semantics.
	KindExpression Kind = iota
	// KindDocument is evaluated like a here-document body: parameters and
	// command substitutions expand, quotes stay literal.
	KindDocument
	// KindRaw is never parsed or evaluated.
	KindRaw
)

var (
	// ErrParse is the sentinel error wrapped by ParseError.
	ErrParse = errors.New("invalid environment assignment")

	// ErrInvalidName is returned for variable names that are not shell identifiers.
	ErrInvalidName = errors.New("invalid environment variable name")
)

type (
	// Kind selects how an assignment's text is interpreted.
	Kind int

	// Assignment is one NAME=value entry.
	Assignment struct {
		Name string
		Kind Kind
		// Text is the value source as the user wrote it.
		Text string

		word *syntax.Word
	}

	// Assignments is an ordered list; later entries see earlier ones.
	Assignments []Assignment

	// ParseError reports an entry that is not a NAME=word assignment.
	ParseError struct {
		// Index is the zero-based position of the entry, -1 when unknown.
		Index int
		Entry string
		Err   error
	}
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindExpression:
		return "expression"
	case KindDocument:
		return "document"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("invalid environment assignment")
	if e.Index >= 0 {
		fmt.Fprintf(&b, " #%d", e.Index+1)
	}
	if e.Entry != "" {
		fmt.Fprintf(&b, " %q", e.Entry)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns ErrParse for errors.Is() compatibility.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// String formats the assignment as NAME=text.
func (a Assignment) String() string {
	return a.Name + "=" + a.Text
}

// Names returns the assigned variable names in order.
func (as Assignments) Names() []string {
	names := make([]string, len(as))
	for i, a := range as {
		names[i] = a.Name
	}
	return names
}

// String joins the assignments with spaces.
func (as Assignments) String() string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// Parse splits a space-separated list of NAME=word assignments. Words
// follow shell quoting, so an unterminated quote is a ParseError here; use
// Table or Passthrough for values that must keep stray quotes literally.
func Parse(text string) (Assignments, error) {
	var out Assignments
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	i := 0
	for word, err := range parser.WordsSeq(strings.NewReader(text)) {
		if err != nil {
			return nil, &ParseError{Index: i, Err: err}
		}
		a, err := fromWord(word)
		if err != nil {
			err.Index = i
			return nil, err
		}
		out = append(out, a)
		i++
	}
	return out, nil
}

// ParseEntry parses a single NAME=word entry.
func ParseEntry(entry string) (Assignment, error) {
	as, err := Parse(entry)
	if err != nil {
		return Assignment{}, err
	}
	if len(as) != 1 {
		return Assignment{}, &ParseError{
			Index: -1,
			Entry: entry,
			Err:   fmt.Errorf("expected exactly one assignment, found %d", len(as)),
		}
	}
	return as[0], nil
}

// Table builds assignments from table entries. Each value is a
// here-document body, so quotes and a trailing backslash are literal.
func Table(names, values []string) (Assignments, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("environment table: %d names but %d values", len(names), len(values))
	}
	out := make(Assignments, 0, len(names))
	for i, name := range names {
		if !syntax.ValidName(name) {
			return nil, &ParseError{Index: i, Entry: name + "=" + values[i], Err: ErrInvalidName}
		}
		word, err := parseDocument(values[i])
		if err != nil {
			return nil, &ParseError{Index: i, Entry: name + "=" + values[i], Err: err}
		}
		out = append(out, Assignment{Name: name, Kind: KindDocument, Text: values[i], word: word})
	}
	return out, nil
}

// Passthrough returns an assignment whose value is copied verbatim.
func Passthrough(name, value string) Assignment {
	return Assignment{Name: name, Kind: KindRaw, Text: value}
}

func fromWord(word *syntax.Word) (Assignment, *ParseError) {
	src := printWord(word)
	if len(word.Parts) == 0 {
		return Assignment{}, &ParseError{Entry: src}
	}
	lit, ok := word.Parts[0].(*syntax.Lit)
	if !ok {
		return Assignment{}, &ParseError{Entry: src, Err: errors.New("must start with NAME=")}
	}
	name, rest, found := strings.Cut(lit.Value, "=")
	if !found {
		return Assignment{}, &ParseError{Entry: src, Err: errors.New("missing '='")}
	}
	if !syntax.ValidName(name) {
		return Assignment{}, &ParseError{Entry: src, Err: ErrInvalidName}
	}

	parts := word.Parts[1:]
	if rest != "" {
		head := &syntax.Lit{ValuePos: lit.ValuePos, ValueEnd: lit.ValueEnd, Value: rest}
		parts = append([]syntax.WordPart{head}, parts...)
	}
	value := &syntax.Word{Parts: parts}

	return Assignment{
		Name: name,
		Kind: KindExpression,
		Text: printWord(value),
		word: value,
	}, nil
}

// parseDocument parses s as a here-document body. A lone trailing
// backslash would escape the end of input, so it is kept as a literal.
func parseDocument(s string) (*syntax.Word, error) {
	trailing := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		trailing++
	}
	body := s
	if trailing%2 == 1 {
		body = s[:len(s)-1]
	}

	word, err := syntax.NewParser().Document(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	if trailing%2 == 1 {
		if word == nil {
			word = &syntax.Word{}
		}
		word.Parts = append(word.Parts, &syntax.SglQuoted{Value: `\`})
	}
	return word, nil
}

// printWord returns the source of w. The printer cannot position a word
// without parts, which is what "NAME=" leaves as the value.
func printWord(w *syntax.Word) string {
	if w == nil || len(w.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	if err := syntax.NewPrinter().Print(&b, w); err != nil {
		return ""
	}
	return b.String()
}
