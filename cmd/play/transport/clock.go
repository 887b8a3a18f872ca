package transport

import (
	"sync"
	"time"
)

// Clock reports hardware time in seconds. It is the only source of time the
// engine reads.
type Clock interface {
	Now() float64
}

// SystemClock reads the monotonic clock.
type SystemClock struct {
	origin time.Time
}

// NewSystemClock returns a clock whose zero is the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) Now() float64 {
	return time.Since(c.origin).Seconds()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now float64
}

func (c *ManualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set moves the clock to t seconds.
func (c *ManualClock) Set(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// PositionAt maps a clock reading to a transport position. While playing the
// position runs from the anchor; otherwise it is frozen at the paused offset.
func PositionAt(now float64, st State) float64 {
	if st.Status == StatusPlaying {
		return st.PausedOffset + (now - st.SessionStart)
	}
	return st.PausedOffset
}
