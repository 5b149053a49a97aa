package testutil

import (
	"sync"

	"github.com/roach88/datahog/internal/model"
)

// FixedClock is a model.Clock that returns start, start+step, start+2*step
// and so on. Tests use it so transaction timestamps are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	start model.Timestamp
	step  model.Timestamp
	next  model.Timestamp
}

var _ model.Clock = (*FixedClock)(nil)

// NewFixedClock creates a clock whose first reading is start.
// A step of zero or less is treated as 1.
func NewFixedClock(start, step model.Timestamp) *FixedClock {
	if step <= 0 {
		step = 1
	}
	return &FixedClock{start: start, step: step, next: start}
}

// Now returns the next reading and advances the clock.
func (c *FixedClock) Now() model.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.next
	c.next += c.step
	return ts
}

// Peek returns the next reading without advancing.
func (c *FixedClock) Peek() model.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to its start value.
//
// Used for test reuse. After Reset(), the next call to Now() returns start.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
