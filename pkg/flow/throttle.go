package flow

import (
	"context"
	"sync"
	"time"
)

// Throttle limits callers to a fixed number of requests per fixed
// interval, independent of any concurrency pool. It exists to respect
// upstream quotas on external calls.
type Throttle struct {
	mu sync.Mutex

	max      int
	interval time.Duration

	windowStart time.Time
	count       int
}

// NewThrottle creates a throttle allowing max requests per interval.
// max <= 0 disables throttling.
func NewThrottle(max int, interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = time.Second
	}
	return &Throttle{max: max, interval: interval}
}

// Acquire blocks until a request slot is available in the current
// window or the context is cancelled.
func (t *Throttle) Acquire(ctx context.Context) error {
	if t.max <= 0 {
		return nil
	}

	for {
		t.mu.Lock()
		now := time.Now()
		if now.Sub(t.windowStart) >= t.interval {
			t.windowStart = now
			t.count = 0
		}
		if t.count < t.max {
			t.count++
			t.mu.Unlock()
			return nil
		}
		wait := t.interval - now.Sub(t.windowStart)
		t.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryAcquire takes a slot without blocking.
func (t *Throttle) TryAcquire() bool {
	if t.max <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.windowStart) >= t.interval {
		t.windowStart = now
		t.count = 0
	}
	if t.count < t.max {
		t.count++
		return true
	}
	return false
}
