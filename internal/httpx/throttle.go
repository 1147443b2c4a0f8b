package httpx

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum spacing between requests and an optional
// bounded concurrency, per spec §5's per-manager throttle state.
type Throttle struct {
	minInterval time.Duration
	sem         chan struct{}

	mu       sync.Mutex
	lastCall time.Time
}

// NewThrottle builds a throttle. maxConcurrency <= 0 means unbounded.
func NewThrottle(minInterval time.Duration, maxConcurrency int) *Throttle {
	t := &Throttle{minInterval: minInterval}
	if maxConcurrency > 0 {
		t.sem = make(chan struct{}, maxConcurrency)
	}
	return t
}

// Acquire blocks until it is safe to issue the next request, respecting
// ctx cancellation (spec §5 "all HTTP requests ... are suspendable").
func (t *Throttle) Acquire(ctx context.Context) error {
	if t.sem != nil {
		select {
		case t.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if t.minInterval <= 0 {
		return nil
	}

	t.mu.Lock()
	wait := time.Until(t.lastCall.Add(t.minInterval))
	if wait < 0 {
		wait = 0
	}
	t.lastCall = time.Now().Add(wait)
	t.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the concurrency slot acquired by Acquire.
func (t *Throttle) Release() {
	if t.sem != nil {
		<-t.sem
	}
}
