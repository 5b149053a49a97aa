package model

import (
	"sync/atomic"
	"time"
)

// Clock hands out transaction timestamps.
type Clock interface {
	Now() Timestamp
}

// MonotonicClock stamps from wall time but never repeats or goes backwards:
// when the wall clock has not advanced past the last stamp, it returns
// last+1.
//
// Thread-safety: MonotonicClock is safe for concurrent use.
type MonotonicClock struct {
	last atomic.Int64
	wall func() time.Time
}

// NewMonotonicClock creates a clock over time.Now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{wall: time.Now}
}

// Now returns a strictly increasing timestamp.
func (c *MonotonicClock) Now() Timestamp {
	for {
		last := c.last.Load()
		next := c.wall().UnixNano()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return Timestamp(next)
		}
	}
}

// DefaultClock stamps transactions built with NewTransaction.
var DefaultClock Clock = NewMonotonicClock()
