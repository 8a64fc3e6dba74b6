// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// containerSlots bounds how many container tests run at once across the
// test binary. CIBUILDWHEEL_TEST_CONTAINER_PARALLEL overrides the default
// of min(GOMAXPROCS, 2).
var containerSlots = sync.OnceValue(func() chan struct{} {
	n := min(runtime.GOMAXPROCS(0), 2)
	if v, err := strconv.Atoi(os.Getenv("CIBUILDWHEEL_TEST_CONTAINER_PARALLEL")); err == nil && v > 0 {
		n = v
	}
	return make(chan struct{}, n)
})

// dockerReachable asks testcontainers for a Docker provider. A panic during
// the lookup, seen on some misconfigured hosts, counts as unreachable.
func dockerReachable() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	_ = provider.Close()
	return true
}

// RequireContainerEngine skips t in -short mode or without a reachable
// engine. Otherwise it holds one container slot until t finishes.
func RequireContainerEngine(t testing.TB) {
	t.Helper()
	switch {
	case testing.Short():
		t.Skip("container test skipped in -short mode")
	case !dockerReachable():
		t.Skip("container test skipped: no container engine reachable")
	}
	slots := containerSlots()
	slots <- struct{}{}
	t.Cleanup(func() { <-slots })
}
