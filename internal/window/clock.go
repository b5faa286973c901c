package window

import (
	"sync"
	"time"
)

// Clock tracks event time. Now is the highest observed event timestamp advanced by the
// wall-clock time elapsed since that timestamp was observed, so an idle stream still
// ages its incidents.
type Clock struct {
	mu         sync.Mutex
	wall       func() time.Time
	watermark  int64
	observedAt time.Time
	started    bool
}

// NewClock builds a Clock; a nil wall source uses time.Now.
func NewClock(wall func() time.Time) *Clock {
	if wall == nil {
		wall = time.Now
	}
	return &Clock{wall: wall}
}

// Observe records an event timestamp. Older timestamps do not move the clock back.
func (c *Clock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started && ts <= c.watermark {
		return
	}
	c.started = true
	c.watermark = ts
	c.observedAt = c.wall()
}

// Now returns the current event-time second. ok is false until the first Observe.
func (c *Clock) Now() (now int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0, false
	}
	elapsed := c.wall().Sub(c.observedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.watermark + int64(elapsed/time.Second), true
}
