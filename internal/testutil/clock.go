package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable wall clock for tests.
//
// Now returns the same instant until Set or Advance moves it, so relative
// date expressions and event timestamps are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// DefaultNow is the instant NewFixedClock starts at when given the zero time.
var DefaultNow = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

// NewFixedClock creates a clock stopped at t (DefaultNow if t is zero).
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = DefaultNow
	}
	return &FixedClock{now: t}
}

// Now returns the current instant. Its method value satisfies the
// func() time.Time clock options of the store and the query engine.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
