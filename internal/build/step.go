// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Klinikumxd/cibuildwheel/internal/template"
)

const (
	// Required steps must have a command.
	Required Policy = iota
	// SkipIfEmpty steps are skipped when their command is blank.
	SkipIfEmpty
)

// ErrEmptyStep is returned when a Required step has no command.
var ErrEmptyStep = errors.New("step has no command")

var (
	hookPlaceholders   = []string{template.Project, template.Package}
	repairPlaceholders = []string{template.Wheel, template.DestDir, template.DelocateArchs}
)

type (
	// Policy decides what happens to a step with a blank command.
	Policy int

	// Step is one user command of a build phase.
	Step struct {
		Name     string
		Template string
		// Placeholders lists the names the template may reference.
		Placeholders []string
		Policy       Policy
	}
)

// BeforeAllStep runs once per session before any configuration.
func BeforeAllStep(cmd string) Step {
	return Step{Name: "before_all", Template: cmd, Placeholders: hookPlaceholders, Policy: SkipIfEmpty}
}

// BeforeBuildStep runs before each wheel is built.
func BeforeBuildStep(cmd string) Step {
	return Step{Name: "before_build", Template: cmd, Placeholders: hookPlaceholders, Policy: SkipIfEmpty}
}

// RepairStep rewrites the built wheel into the repaired wheel directory.
// Without a command the built wheel is used as is.
func RepairStep(cmd string) Step {
	return Step{Name: "repair_wheel", Template: cmd, Placeholders: repairPlaceholders, Policy: SkipIfEmpty}
}

// BeforeTestStep runs in each test virtualenv before the wheel is installed.
func BeforeTestStep(cmd string) Step {
	return Step{Name: "before_test", Template: cmd, Placeholders: hookPlaceholders, Policy: SkipIfEmpty}
}

// TestStep runs the test command from the home directory.
func TestStep(cmd string) Step {
	return Step{Name: "test", Template: cmd, Placeholders: hookPlaceholders, Policy: SkipIfEmpty}
}

// Empty reports whether the step has no command.
func (s Step) Empty() bool { return strings.TrimSpace(s.Template) == "" }

// Check parses the template and rejects placeholders outside the step's set.
func (s Step) Check() error {
	if s.Empty() {
		if s.Policy == Required {
			return fmt.Errorf("%s: %w", s.Name, ErrEmptyStep)
		}
		return nil
	}
	t, err := template.Parse(s.Template)
	if err != nil {
		return err
	}
	for _, name := range t.Placeholders() {
		if !slices.Contains(s.Placeholders, name) {
			return &template.TemplateError{
				Template:    s.Template,
				Placeholder: name,
				Reason:      fmt.Sprintf("unknown placeholder for %s; available: %s", s.Name, braced(s.Placeholders)),
			}
		}
	}
	return nil
}

// Render substitutes values into the command. Only the step's placeholders
// are visible to the template. When quote is set, values are shell-quoted.
// ok is false for a skipped step.
func (s Step) Render(values template.Values, quote bool) (cmd string, ok bool, err error) {
	if err := s.Check(); err != nil {
		return "", false, err
	}
	if s.Empty() {
		return "", false, nil
	}
	t, err := template.Parse(s.Template)
	if err != nil {
		return "", false, err
	}

	visible := make(template.Values, len(s.Placeholders))
	for _, name := range s.Placeholders {
		if v, found := values[name]; found {
			visible[name] = v
		}
	}
	if quote {
		cmd, err = t.Execute(visible)
	} else {
		cmd, err = t.ExecuteRaw(visible)
	}
	if err != nil {
		return "", false, err
	}
	return cmd, true, nil
}

func braced(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "{" + n + "}"
	}
	return strings.Join(out, ", ")
}

// pipVerbosity returns the pip flags for a build-verbosity level.
func pipVerbosity(level int) []string {
	switch {
	case level > 0:
		return []string{"-" + strings.Repeat("v", level)}
	case level < 0:
		return []string{"-" + strings.Repeat("q", -level)}
	default:
		return nil
	}
}
