// SPDX-License-Identifier: MPL-2.0

package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Klinikumxd/cibuildwheel/internal/testutil"
)

func newTestLogger(opts ...Option) (*Logger, *bytes.Buffer, *testutil.FakeClock) {
	var buf bytes.Buffer
	clock := testutil.NewFakeClock(time.Time{})
	l := New(&buf, append([]Option{WithClock(clock)}, opts...)...)
	return l, &buf, clock
}

func TestLogger_BuildTimings(t *testing.T) {
	t.Parallel()

	l, buf, clock := newTestLogger()

	l.BuildStart("cp38-manylinux_x86_64")
	clock.Advance(time.Second)
	l.Step("Building wheel...")
	clock.Advance(500 * time.Millisecond)
	l.StepEnd()
	l.BuildEnd()

	out := buf.String()
	for _, want := range []string{
		"Building cp38-manylinux_x86_64 wheel",
		"Building wheel...\n",
		"✓ 0.50s",
		"cp38-manylinux_x86_64 finished in 1.50s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colors written to a non-terminal writer:\n%q", out)
	}
}

func TestLogger_StepEndsPreviousStep(t *testing.T) {
	t.Parallel()

	l, buf, clock := newTestLogger()

	l.BuildStart("cp39-macosx_arm64")
	l.Step("Installing Python cp39...")
	clock.Advance(2 * time.Second)
	l.Step("Setting up build environment...")
	clock.Advance(time.Second)
	l.BuildEnd()

	out := buf.String()
	if got := strings.Count(out, "✓"); got != 3 {
		t.Errorf("got %d check marks, want 3 (two steps and the build):\n%s", got, out)
	}
	first := strings.Index(out, "✓ 2.00s")
	second := strings.Index(out, "Setting up build environment...")
	if first < 0 || second < 0 || first > second {
		t.Errorf("first step was not closed before the second started:\n%s", out)
	}
}

func TestLogger_StepEndWithError(t *testing.T) {
	t.Parallel()

	l, buf, clock := newTestLogger()

	l.Step("Repairing wheel...")
	clock.Advance(250 * time.Millisecond)
	l.StepEndWithError("Command auditwheel repair failed with code 1.")
	l.StepEnd()

	out := buf.String()
	if !strings.Contains(out, "✕ 0.25s\nCommand auditwheel repair failed with code 1.\n") {
		t.Errorf("unexpected failure output:\n%s", out)
	}
	if strings.Contains(out, "✓") {
		t.Errorf("StepEnd after a failed step printed a success mark:\n%s", out)
	}
}

func TestLogger_StepEndWithErrorOutsideStep(t *testing.T) {
	t.Parallel()

	l, buf, _ := newTestLogger()
	l.StepEndWithError("docker not found")

	if got := buf.String(); got != "✕ docker not found\n" {
		t.Errorf("output = %q", got)
	}
}

func TestLogger_Records(t *testing.T) {
	t.Parallel()

	l, buf, _ := newTestLogger()
	l.Warning("PyPy is currently unsupported when building on macOS 11")
	l.Error("build failed", "identifier", "cp38-macosx_x86_64")
	l.Debug("hidden")

	out := buf.String()
	for _, want := range []string{
		"cibuildwheel",
		"PyPy is currently unsupported when building on macOS 11",
		"build failed",
		"identifier=cp38-macosx_x86_64",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug record printed without verbose")
	}
}

func TestLogger_Verbose(t *testing.T) {
	t.Parallel()

	l, buf, _ := newTestLogger(WithVerbose(true))
	l.Debug("options", "build", "cp3*")

	if !strings.Contains(buf.String(), "build=cp3*") {
		t.Errorf("debug record missing:\n%s", buf.String())
	}
	if l.Charm() == nil {
		t.Error("Charm() = nil")
	}
}
