// SPDX-License-Identifier: MPL-2.0

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const prefix = "cibuildwheel"

type (
	// Clock is the time source used for step and build timings.
	Clock interface {
		Now() time.Time
		Since(t time.Time) time.Duration
	}

	// Logger writes build progress to an output stream. Steps nest inside
	// builds; starting a step ends the previous one.
	Logger struct {
		mu    sync.Mutex
		out   io.Writer
		log   *log.Logger
		clock Clock

		identifier string
		buildStart time.Time
		stepStart  time.Time
		inStep     bool

		styles styles
	}

	// Option configures a Logger.
	Option func(*Logger)

	styles struct {
		build   lipgloss.Style
		step    lipgloss.Style
		success lipgloss.Style
		failure lipgloss.Style
		muted   lipgloss.Style
	}

	realClock struct{}
)

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Logger) { l.clock = c }
}

// WithVerbose enables debug records.
func WithVerbose(verbose bool) Option {
	return func(l *Logger) {
		if verbose {
			l.log.SetLevel(log.DebugLevel)
		}
	}
}

// New returns a logger writing to w. Colors are used only when w is a
// terminal.
func New(w io.Writer, opts ...Option) *Logger {
	r := lipgloss.NewRenderer(w)
	l := &Logger{
		out:   w,
		log:   log.NewWithOptions(w, log.Options{Prefix: prefix}),
		clock: realClock{},
		styles: styles{
			build:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
			step:    r.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
			success: r.NewStyle().Foreground(lipgloss.Color("#10B981")),
			failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
			muted:   r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Default logs to stderr.
func Default(opts ...Option) *Logger {
	return New(os.Stderr, opts...)
}

// Charm returns the structured logger used for warnings and debug records.
func (l *Logger) Charm() *log.Logger {
	return l.log
}

// BuildStart opens the section for one build identifier.
func (l *Logger) BuildStart(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.endStep(true, "")
	l.identifier = identifier
	l.buildStart = l.clock.Now()
	fmt.Fprintf(l.out, "\n%s\n\n", l.styles.build.Render("Building "+identifier+" wheel"))
}

// BuildEnd closes the current build section.
func (l *Logger) BuildEnd() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.endStep(true, "")
	elapsed := l.clock.Since(l.buildStart)
	fmt.Fprintf(l.out, "\n%s %s %s\n\n",
		l.styles.success.Render("✓"),
		l.styles.build.Render(l.identifier+" finished"),
		l.styles.muted.Render("in "+formatDuration(elapsed)))
	l.identifier = ""
}

// Step starts a timed step, ending any step still open.
func (l *Logger) Step(title string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.endStep(true, "")
	l.inStep = true
	l.stepStart = l.clock.Now()
	fmt.Fprintln(l.out, l.styles.step.Render(title))
}

// StepEnd marks the current step as successful.
func (l *Logger) StepEnd() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endStep(true, "")
}

// StepEndWithError marks the current step as failed and prints msg.
func (l *Logger) StepEndWithError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.inStep {
		fmt.Fprintf(l.out, "%s %s\n", l.styles.failure.Render("✕"), msg)
		return
	}
	l.endStep(false, msg)
}

// Warning prints a warning record.
func (l *Logger) Warning(msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Warn(msg, keyvals...)
}

// Error prints an error record.
func (l *Logger) Error(msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Error(msg, keyvals...)
}

// Debug prints a record only when verbose output is enabled.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Debug(msg, keyvals...)
}

// endStep must be called with mu held.
func (l *Logger) endStep(ok bool, msg string) {
	if !l.inStep {
		return
	}
	l.inStep = false
	elapsed := formatDuration(l.clock.Since(l.stepStart))
	if ok {
		fmt.Fprintf(l.out, "%s %s\n\n", l.styles.success.Render("✓"), l.styles.muted.Render(elapsed))
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", l.styles.failure.Render("✕"), l.styles.muted.Render(elapsed))
	if msg != "" {
		fmt.Fprintln(l.out, msg)
	}
	fmt.Fprintln(l.out)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
