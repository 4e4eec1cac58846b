// Package ratelimit provides the per-owner sliding-window counter the
// submission gatekeeper uses to throttle requests.
package ratelimit

import (
	"sync"
	"time"
)

// Counter records attempts and reports whether an owner is over budget.
type Counter interface {
	// Allow records one attempt for key and reports whether it fits within
	// the window. The attempt counts against the budget even when rejected.
	Allow(key string) bool
}

// WindowCounter is a sliding-log counter: it keeps the timestamps of recent
// attempts per key and admits a new one while fewer than limit attempts
// happened inside the window.
type WindowCounter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	log    map[string][]time.Time
}

// NewWindowCounter builds a counter admitting limit attempts per window.
// A non-positive limit disables throttling.
func NewWindowCounter(limit int, window time.Duration) *WindowCounter {
	return &WindowCounter{
		limit:  limit,
		window: window,
		now:    time.Now,
		log:    make(map[string][]time.Time),
	}
}

// WithClock overrides the time source (used in tests).
func (c *WindowCounter) WithClock(now func() time.Time) *WindowCounter {
	c.now = now
	return c
}

// Allow implements Counter.
func (c *WindowCounter) Allow(key string) bool {
	if c.limit <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.window)
	entries := c.log[key]
	kept := entries[:0]
	for _, at := range entries {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	allowed := len(kept) < c.limit
	kept = append(kept, now)
	c.log[key] = kept
	return allowed
}
