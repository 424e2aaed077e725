package sim

import (
	"sync"
	"time"
)

// Clock is the time source shared by every component of a rig. A virtual
// clock only moves on Advance; a wall clock follows time.Now.
type Clock struct {
	mu      sync.Mutex
	t       time.Time
	virtual bool
}

func NewVirtualClock(start time.Time) *Clock {
	return &Clock{t: start, virtual: true}
}

func NewWallClock() *Clock {
	return &Clock{}
}

func (c *Clock) Now() time.Time {
	if !c.virtual {
		return time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves a virtual clock forward. It is a no-op on a wall clock.
func (c *Clock) Advance(d time.Duration) {
	if !c.virtual {
		return
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Virtual() bool { return c.virtual }
