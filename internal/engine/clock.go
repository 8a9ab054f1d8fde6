package engine

import "sync/atomic"

// Clock is the global logical clock. It holds the highest sequence number
// that is durable in the log.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The Sequencer is its only writer.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used at startup to resume from the log's highest sequence.
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

// AdvanceTo moves the clock forward to seq. It never moves backwards and
// reports whether the clock changed.
func (c *Clock) AdvanceTo(seq int64) bool {
	for {
		cur := c.seq.Load()
		if seq <= cur {
			return false
		}
		if c.seq.CompareAndSwap(cur, seq) {
			return true
		}
	}
}
