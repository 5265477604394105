package testutil

import "sync"

// ManualClock is a millisecond wall clock that only moves when a test moves
// it. It satisfies journal.Clock, which makes merge-window behavior exact.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu sync.Mutex
	ms uint64
}

// NewManualClock creates a clock reading ms.
func NewManualClock(ms uint64) *ManualClock {
	return &ManualClock{ms: ms}
}

// NowMillis returns the current reading.
func (c *ManualClock) NowMillis() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Set moves the clock to ms. Moving it backwards panics: journal clocks
// must never decrease.
func (c *ManualClock) Set(ms uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms < c.ms {
		panic("testutil: ManualClock moved backwards")
	}
	c.ms = ms
}

// Advance moves the clock forward by ms and returns the new reading.
func (c *ManualClock) Advance(ms uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += ms
	return c.ms
}
