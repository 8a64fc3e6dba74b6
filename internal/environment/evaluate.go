// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ErrEvaluation is the sentinel error wrapped by EvaluationError.
var ErrEvaluation = errors.New("environment evaluation failed")

type (
	// Executor runs the body of a command substitution and returns its
	// standard output.
	Executor interface {
		Substitute(ctx context.Context, command string, env map[string]string) (string, error)
	}

	// EvaluationError reports an assignment whose value could not be expanded.
	EvaluationError struct {
		Name string
		Text string
		Err  error
	}
)

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s=%s: %v", e.Name, e.Text, e.Err)
}

// Unwrap returns the sentinel and the underlying cause.
func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluation, e.Err}
}

// Evaluate applies the assignments in order on top of base and returns the
// resulting environment. base is not modified. exec may be nil when no
// assignment uses command substitution.
func Evaluate(ctx context.Context, assignments Assignments, base map[string]string, exec Executor) (map[string]string, error) {
	env := maps.Clone(base)
	if env == nil {
		env = make(map[string]string, len(assignments))
	}

	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := evaluateOne(ctx, a, env, exec)
		if err != nil {
			return nil, &EvaluationError{Name: a.Name, Text: a.Text, Err: err}
		}
		env[a.Name] = value
	}
	return env, nil
}

// Values returns the evaluated value of each assignment in order, without
// the base environment.
func Values(ctx context.Context, assignments Assignments, base map[string]string, exec Executor) (map[string]string, error) {
	env, err := Evaluate(ctx, assignments, base, exec)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(assignments))
	for _, a := range assignments {
		out[a.Name] = env[a.Name]
	}
	return out, nil
}

func evaluateOne(ctx context.Context, a Assignment, env map[string]string, exec Executor) (string, error) {
	if a.Kind == KindRaw {
		return a.Text, nil
	}
	if a.word == nil || len(a.word.Parts) == 0 {
		return "", nil
	}

	cfg := &expand.Config{
		Env: expand.ListEnviron(pairs(env)...),
		CmdSubst: func(w io.Writer, cs *syntax.CmdSubst) error {
			if exec == nil {
				return expand.UnexpectedCommandError{Node: cs}
			}
			body, err := printStmts(cs)
			if err != nil {
				return err
			}
			out, err := exec.Substitute(ctx, body, env)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, out)
			return err
		},
	}

	switch a.Kind {
	case KindDocument:
		return expand.Document(cfg, a.word)
	default:
		return expand.Literal(cfg, a.word)
	}
}

func pairs(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func printStmts(cs *syntax.CmdSubst) (string, error) {
	var b strings.Builder
	printer := syntax.NewPrinter()
	if err := printer.Print(&b, &syntax.File{Stmts: cs.Stmts}); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
