// Package ratelimit paces outgoing requests with optional jitter so fetch
// bursts do not look machine-generated to the target.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces operations at a fixed interval with a random jitter
// component. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
}

// New creates a limiter allowing rps operations per second. jitter (0..1)
// randomizes each wait by up to that fraction of the interval. rps <= 0
// disables limiting.
func New(rps, jitter float64) *Limiter {
	l := &Limiter{}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	if jitter > 0 {
		if jitter > 1 {
			jitter = 1
		}
		l.jitter = jitter
	}
	return l
}

// Wait blocks until the next slot is available or the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval == 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	wait := l.interval
	if l.jitter > 0 {
		wait += time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	}
	if l.next.Before(now) {
		// Idle limiter: run immediately, book the following slot.
		l.next = now.Add(wait)
		l.mu.Unlock()
		return nil
	}
	sleep := l.next.Sub(now)
	l.next = l.next.Add(wait)
	l.mu.Unlock()

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
