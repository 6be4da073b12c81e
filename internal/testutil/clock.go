package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a DeterministicClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a fake wall clock that advances one second per
// reading.
//
// Books accept it through qof.WithClock so last-update stamps in tests are
// predictable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	seq   int64
}

// NewDeterministicClock creates a clock starting at start. A zero start
// means Epoch.
//
// The first call to Now() returns start plus one second.
func NewDeterministicClock(start time.Time) *DeterministicClock {
	if start.IsZero() {
		start = Epoch
	}
	return &DeterministicClock{start: start}
}

// Now advances the clock and returns the new time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.start.Add(time.Duration(c.seq) * time.Second)
}

// Current returns the last time handed out without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.seq) * time.Second)
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
