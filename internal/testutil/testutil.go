// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// Stopper is released with a context-aware Stop, as sessions are.
type Stopper interface {
	Stop(ctx context.Context) error
}

// MustWriteFile writes data to path, creating missing parent directories.
func MustWriteFile(t testing.TB, path string, data []byte, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// MustReadFile returns the contents of path.
func MustReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

// StopOnCleanup stops s when t finishes. A failed Stop is logged only; it
// rarely says anything about the behavior under test.
func StopOnCleanup(t testing.TB, s Stopper) {
	t.Helper()
	t.Cleanup(func() {
		if err := s.Stop(context.Background()); err != nil {
			t.Logf("stopping %T: %v", s, err)
		}
	})
}
