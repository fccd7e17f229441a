// Package ratelimit spaces outbound source calls.
//
// Unlike a token bucket there is no burst allowance: Acquire enforces a fixed
// minimum interval between successive acquisitions, measured from the moment
// the previous acquisition completed.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/civicpulse/poll-indexer/internal/metrics"
)

type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastAt      time.Time
	source      string
	nowFunc     func() time.Time
	sleepFn     func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter allowing at most maxPerMinute acquisitions
// per minute for the given source label.
func NewLimiter(maxPerMinute int, source string) *Limiter {
	if maxPerMinute < 1 {
		maxPerMinute = 1
	}
	return &Limiter{
		minInterval: time.Duration((60000+int64(maxPerMinute)-1)/int64(maxPerMinute)) * time.Millisecond,
		source:      source,
		nowFunc:     time.Now,
		sleepFn:     sleepContext,
	}
}

// Acquire blocks until at least the minimum interval has elapsed since the
// previous acquisition completed, or until ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastAt.IsZero() {
		wait := l.minInterval - l.nowFunc().Sub(l.lastAt)
		if wait > 0 {
			metrics.RateLimitWaits.WithLabelValues(l.source).Inc()
			if err := l.sleepFn(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.lastAt = l.nowFunc()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
