package refresher

import (
	"context"
	"sync"
	"time"
)

// CycleRunner is implemented by *Refresher.
type CycleRunner interface {
	TryRunCycle(ctx context.Context) bool
}

// Coalescer bounds refresh-trigger frequency under request-driven operation:
// however many requests arrive inside one throttle window, at most one
// refresh cycle is kicked off, detached from the requests. The triggering
// request returns cached data immediately and never observes the cycle's
// outcome.
type Coalescer struct {
	window time.Duration
	runner CycleRunner

	mu   sync.Mutex
	last time.Time
}

// NewCoalescer creates a request-time refresh throttle.
func NewCoalescer(window time.Duration, runner CycleRunner) *Coalescer {
	return &Coalescer{window: window, runner: runner}
}

// MaybeTrigger kicks one detached refresh cycle if the throttle window has
// elapsed since the last trigger. It reports whether a trigger fired.
func (c *Coalescer) MaybeTrigger() bool {
	c.mu.Lock()
	now := time.Now()
	if now.Sub(c.last) < c.window {
		c.mu.Unlock()
		return false
	}
	c.last = now
	c.mu.Unlock()

	// Fire and forget: cycle errors are the refresher's own log concern.
	go c.runner.TryRunCycle(context.Background())
	return true
}
