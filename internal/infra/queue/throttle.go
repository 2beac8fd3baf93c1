package queue

import (
	"context"
	"sync"
	"time"
)

// Throttle admits at most limit events in any rolling window. It is shared by
// every consumer goroutine.
type Throttle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   []time.Time
	now    func() time.Time
}

func NewThrottle(limit int, window time.Duration) *Throttle {
	return &Throttle{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until the event fits in the window or ctx is done.
// A non-positive limit disables throttling.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limit <= 0 {
		return nil
	}
	for {
		delay := t.reserve()
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records an admission and returns 0, or returns how long to wait
// until the oldest admission leaves the window.
func (t *Throttle) reserve() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)
	kept := t.seen[:0]
	for _, ts := range t.seen {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.seen = kept

	if len(t.seen) < t.limit {
		t.seen = append(t.seen, now)
		return 0
	}
	return max(t.seen[0].Sub(cutoff), time.Millisecond)
}
