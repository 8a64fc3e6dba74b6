// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"time"
)

// epoch is where a FakeClock starts when no time is given.
var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock only moves when Advance is called. It satisfies the logger's
// Clock interface.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock reading start, or a fixed date when start is
// the zero time.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = epoch
	}
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
