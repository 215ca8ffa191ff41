package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant. Every time-gated operation reads
// "now" through a Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

type clock struct{}

// New returns a Clock backed by the wall clock.
func New() Clock {
	return &clock{}
}

func (c *clock) Now() time.Time {
	return time.Now().UTC()
}

// ManagedClock is a hand-driven clock for tests.
type ManagedClock struct {
	mu        sync.Mutex
	startTime time.Time
	offset    time.Duration
}

// NewManaged returns a ManagedClock frozen at startTime.
func NewManaged(startTime time.Time) *ManagedClock {
	return &ManagedClock{startTime: startTime}
}

func (c *ManagedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime.Add(c.offset)
}

// WarpForward moves the clock forward by offset and returns the new time.
func (c *ManagedClock) WarpForward(offset time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += offset
	return c.startTime.Add(c.offset)
}

// Set pins the clock to t. Going backwards is allowed here so boundary
// tests can probe both sides of a window from one fixture.
func (c *ManagedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = t
	c.offset = 0
}
