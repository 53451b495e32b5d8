package engine

import "sync/atomic"

// Clock is a monotonic logical clock for ordering allowance changes.
//
// Every persisted change is stamped with a strictly increasing seq from
// this clock, so history replays in the order changes were made without
// relying on wall-clock timestamps.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used to continue numbering after the last recorded change.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
