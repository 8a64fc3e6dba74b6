// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/Klinikumxd/cibuildwheel/internal/template"
)

type (
	// Option configures a session.
	Option func(*options)

	options struct {
		stdout io.Writer
		stderr io.Writer
		echo   io.Writer
		logger *log.Logger
	}
)

// WithStdout sets where non-captured command output is written.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr sets where command stderr is written.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithEcho prints each command as "+ <argv>" to w before it runs.
func WithEcho(w io.Writer) Option {
	return func(o *options) { o.echo = w }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(prefix string, opts []Option) options {
	o := options{
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: prefix}),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) echoCommand(argv []string) {
	if o.echo == nil {
		return
	}
	line, err := template.QuoteArgs(argv)
	if err != nil {
		return
	}
	fmt.Fprintf(o.echo, "+ %s\n", line)
}
