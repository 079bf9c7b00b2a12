package feed

import (
	"sync"
	"time"
)

// Clock is the shared monotonic playback clock. It starts on the first
// subscription and every transcript scheduler drains against it, so
// late subscribers catch up instead of restarting the timeline.
type Clock struct {
	mu    sync.Mutex
	start time.Time
}

// StartOnce records the playback start; later calls are no-ops.
func (c *Clock) StartOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		c.start = time.Now()
	}
}

// ElapsedMillis returns playback time in milliseconds, zero before the
// clock started.
func (c *Clock) ElapsedMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		return 0
	}
	return time.Since(c.start).Milliseconds()
}
