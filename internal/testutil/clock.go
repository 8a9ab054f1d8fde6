package testutil

import "sync"

// DefaultStart is the first timestamp a StepClock hands out:
// 2023-11-14T22:13:20Z in unix milliseconds.
const DefaultStart int64 = 1_700_000_000_000

// StepClock is a deterministic wall clock for tests. Every call to Now
// advances it by a fixed step, so the same scenario yields byte-identical
// event logs.
//
// Implements engine.TimeSource. Safe for concurrent use.
type StepClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	now   int64
}

// NewStepClock creates a clock whose first Now returns start+step.
// A zero start uses DefaultStart; a zero step uses one second.
func NewStepClock(start, step int64) *StepClock {
	if start == 0 {
		start = DefaultStart
	}
	if step == 0 {
		step = 1000
	}
	return &StepClock{start: start, step: step, now: start}
}

// Now advances the clock by one step and returns the new time.
func (c *StepClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the last time handed out without advancing.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
