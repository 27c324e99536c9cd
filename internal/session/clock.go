package session

import (
	"sync"
	"time"
)

// Clock provides session-relative monotonic timestamps in milliseconds.
// Readings are stamped against the moment the session connected, not wall
// time, so captures survive host clock adjustments.
type Clock struct {
	mu    sync.Mutex
	start time.Time
}

// NewClock returns a Clock anchored at the current instant.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Restart re-anchors the clock at the current instant.
func (c *Clock) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// NowMillis returns milliseconds elapsed since the anchor.
func (c *Clock) NowMillis() int64 {
	c.mu.Lock()
	start := c.start
	c.mu.Unlock()
	return time.Since(start).Milliseconds()
}
