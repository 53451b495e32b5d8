package testutil

import (
	"sync"
	"time"
)

// Epoch is the start time of every FakeClock.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// FakeClock is a settable wall clock for tests.
//
// Pass clock.Now wherever a func() time.Time is accepted (lock.WithClock,
// session.WithNow). Time only moves when the test calls Advance or Set.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock reading Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset returns the clock to Epoch.
func (c *FakeClock) Reset() {
	c.Set(Epoch)
}
