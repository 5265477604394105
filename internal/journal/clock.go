package journal

import (
	"sync/atomic"
	"time"
)

// Clock supplies the wall-clock timestamps the merge window is measured
// against. NowMillis must never decrease.
type Clock interface {
	NowMillis() uint64
}

// SystemClock reports milliseconds elapsed since it was created. It reads
// Go's monotonic clock, so wall-clock adjustments cannot move it backwards.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMillis implements Clock.
func (c *SystemClock) NowMillis() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

// Sequence stamps bus events with a strictly increasing number, so listeners
// can order events without relying on wall-clock time.
//
// The zero value is ready to use and starts at 0; the first Next returns 1.
type Sequence struct {
	seq atomic.Int64
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last number handed out without advancing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
