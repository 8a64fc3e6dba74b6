// SPDX-License-Identifier: MPL-2.0

package session

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/testutil"
)

const integrationImage = "docker.io/library/debian:bookworm-slim"

// TestContainerSession_Integration runs the session against a real engine.
func TestContainerSession_Integration(t *testing.T) {
	testutil.RequireContainerEngine(t)

	engine, err := container.AutoDetectEngine()
	if err != nil {
		t.Skipf("skipping: no container engine available: %v", err)
	}

	s := NewContainerSession(engine, integrationImage, WithLogger(quietLogger()))
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	testutil.StopOnCleanup(t, s)
	name := s.Name()

	t.Run("Echo", func(t *testing.T) {
		out, err := s.Call(t.Context(), []string{"echo", "hello"}, CallOptions{Capture: true})
		if err != nil || out != "hello\n" {
			t.Errorf("Call() = %q, %v", out, err)
		}
	})

	t.Run("HostMount", func(t *testing.T) {
		dir := t.TempDir()
		testutil.MustWriteFile(t, filepath.Join(dir, "marker"), []byte("from host"), 0o644)

		out, err := s.Call(t.Context(), []string{"cat", HostMount + filepath.ToSlash(filepath.Join(dir, "marker"))}, CallOptions{Capture: true})
		if err != nil || out != "from host" {
			t.Errorf("Call() = %q, %v", out, err)
		}
	})

	t.Run("CopyRoundTrip", func(t *testing.T) {
		data := bytes.Repeat([]byte{0, 1, 2, 254, 255, '\n'}, 1000)
		src := filepath.Join(t.TempDir(), "payload.bin")
		testutil.MustWriteFile(t, src, data, 0o644)

		if err := s.CopyInto(t.Context(), src, "/project/payload.bin"); err != nil {
			t.Fatalf("CopyInto() = %v", err)
		}
		dst := filepath.Join(t.TempDir(), "nested", "payload.bin")
		if err := s.CopyOut(t.Context(), "/project/payload.bin", dst); err != nil {
			t.Fatalf("CopyOut() = %v", err)
		}
		if !bytes.Equal(testutil.MustReadFile(t, dst), data) {
			t.Error("payload changed in transit")
		}
	})

	if err := s.Stop(t.Context()); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	names, err := engine.List(t.Context())
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if slices.Contains(names, name) {
		t.Errorf("container %s still listed after Stop", name)
	}
	if _, err := s.Call(t.Context(), []string{"true"}, CallOptions{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Call() after Stop = %v, want ErrNotRunning", err)
	}
}
