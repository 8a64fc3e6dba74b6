// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := []struct {
		name    string
		start   time.Time
		advance []time.Duration
		want    time.Time
	}{
		{"zero start uses epoch", time.Time{}, nil, epoch},
		{"stands still", start, nil, start},
		{"advances", start, []time.Duration{time.Second, 1500 * time.Millisecond}, start.Add(2500 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewFakeClock(tt.start)
			origin := c.Now()
			for _, d := range tt.advance {
				c.Advance(d)
			}
			if got := c.Now(); !got.Equal(tt.want) {
				t.Errorf("Now() = %v, want %v", got, tt.want)
			}
			if got, want := c.Since(origin), tt.want.Sub(origin); got != want {
				t.Errorf("Since(origin) = %v, want %v", got, want)
			}
		})
	}
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	t.Parallel()

	c := NewFakeClock(time.Time{})
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() { c.Advance(time.Millisecond) })
	}
	wg.Wait()
	if got := c.Since(epoch); got != 20*time.Millisecond {
		t.Errorf("Since(epoch) = %v, want 20ms", got)
	}
}
