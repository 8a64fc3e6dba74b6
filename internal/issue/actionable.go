// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is a failed operation with the resource it touched
	// and hints the user can act on. Build one with NewErrorContext:
	//
	//	return issue.NewErrorContext().
	//		WithOperation("read pyproject.toml").
	//		WithResource(path).
	//		WithIssue(issue.ConfigLoadFailedId).
	//		Wrap(err).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "repair wheel".
		Operation string
		// Resource is the file, identifier or image involved, if any.
		Resource    string
		Suggestions []string
		// Issue is the catalog entry explaining this failure, if any.
		Issue Id
		Cause error
	}

	// ErrorContext accumulates the fields of an ActionableError.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext starts an empty ActionableError.
func NewErrorContext() *ErrorContext { return &ErrorContext{} }

// WrapWithOperation attaches an operation to err. It returns nil for a nil err.
func WrapWithOperation(err error, operation string) error {
	return WrapWithContext(err, operation, "")
}

// WrapWithContext attaches an operation and resource to err. It returns nil
// for a nil err.
func WrapWithContext(err error, operation, resource string) error {
	if err == nil {
		return nil
	}
	return &ActionableError{Operation: operation, Resource: resource, Cause: err}
}

// Error joins "failed to <operation>", the resource and the cause with ": ".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error { return e.Cause }

// Format renders the message followed by one bullet per suggestion. In
// verbose mode every wrapped error is listed as well, outermost first.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())
	if len(e.Suggestions) > 0 {
		b.WriteString("\n")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • " + s)
		}
	}
	if !verbose || e.Cause == nil {
		return b.String()
	}
	b.WriteString("\n\nError chain:")
	for n, err := 1, e.Cause; err != nil; n, err = n+1, errors.Unwrap(err) {
		fmt.Fprintf(&b, "\n  %d. %s", n, err)
	}
	return b.String()
}

// Find returns the first catalog entry linked by an ActionableError in
// err's chain, or nil.
func Find(err error) *Issue {
	var ae *ActionableError
	for errors.As(err, &ae) {
		if ae.Issue != 0 {
			return Get(ae.Issue)
		}
		err = ae.Cause
	}
	return nil
}

func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithSuggestion appends a hint.
func (c *ErrorContext) WithSuggestion(s string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, s)
	return c
}

func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// BuildError returns the accumulated error, or an untyped nil when no
// operation was set.
func (c *ErrorContext) BuildError() error {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	ae.Suggestions = append([]string(nil), c.err.Suggestions...)
	return &ae
}
