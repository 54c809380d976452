package ratelimit

import (
	"sync/atomic"
	"time"
)

// Clock reports elapsed monotonic time since an arbitrary, clock-specific epoch.
//
// Limiters only compare readings from the same clock, so the epoch never
// matters. Implementations must never go backwards.
type Clock interface {
	Now() time.Duration
}

// monotonicClock measures time with the runtime's monotonic reading.
type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a Clock backed by the process monotonic clock.
// Wall-clock adjustments (NTP steps, manual changes) do not affect it.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}

// ManualClock is a Clock that only moves when told to.
// It is safe for concurrent use.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock creates a ManualClock reading start.
func NewManualClock(start time.Duration) *ManualClock {
	c := &ManualClock{}
	c.now.Store(int64(start))
	return c
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Duration {
	return time.Duration(c.now.Load())
}

// Advance moves the clock forward by d. Negative values are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.now.Add(int64(d))
}

// Set moves the clock to t if t is not earlier than the current reading.
func (c *ManualClock) Set(t time.Duration) {
	for {
		cur := c.now.Load()
		if int64(t) <= cur {
			return
		}
		if c.now.CompareAndSwap(cur, int64(t)) {
			return
		}
	}
}
