package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// Every draw record and every reset is stamped with a strictly increasing
// seq from this clock. Wall timestamps can tie or be clamped; seq never
// does, so journals and traces order by seq.
//
// The clock keeps counting across resets: seq is unique for the lifetime of
// an engine, not of a cycle.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
// Used when continuing a journaled session.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
