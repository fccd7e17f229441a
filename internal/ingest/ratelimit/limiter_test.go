package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a limiter without real sleeping: sleeps advance the
// clock and are recorded.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) install(l *Limiter) {
	l.nowFunc = func() time.Time { return c.now }
	l.sleepFn = func(ctx context.Context, d time.Duration) error {
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)
		return nil
	}
}

func TestNewLimiter_Interval(t *testing.T) {
	l := NewLimiter(40, "civicapi")
	assert.Equal(t, 1500*time.Millisecond, l.minInterval)

	// Intervals round up so the per-minute budget is never exceeded.
	l = NewLimiter(7, "civicapi")
	assert.Equal(t, 8572*time.Millisecond, l.minInterval)
}

func TestNewLimiter_ClampsToOne(t *testing.T) {
	l := NewLimiter(0, "civicapi")
	assert.Equal(t, 60*time.Second, l.minInterval)
}

func TestAcquire_FirstIsImmediate(t *testing.T) {
	l := NewLimiter(40, "votehub")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	clock.install(l)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_SpacesFromPreviousCompletion(t *testing.T) {
	l := NewLimiter(40, "votehub") // 1.5s interval
	clock := &fakeClock{now: time.Unix(1000, 0)}
	clock.install(l)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	// Back-to-back acquisitions each wait the full interval.
	assert.Equal(t, []time.Duration{
		1500 * time.Millisecond,
		1500 * time.Millisecond,
		1500 * time.Millisecond,
	}, clock.sleeps)
}

func TestAcquire_NoWaitAfterIdleGap(t *testing.T) {
	l := NewLimiter(40, "votehub")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	clock.install(l)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, l.Acquire(ctx))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_PartialElapsedWaitsRemainder(t *testing.T) {
	l := NewLimiter(40, "votehub")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	clock.install(l)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	clock.now = clock.now.Add(600 * time.Millisecond)
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, []time.Duration{900 * time.Millisecond}, clock.sleeps)
}

func TestAcquire_ContextCanceled(t *testing.T) {
	l := NewLimiter(1, "votehub")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx))

	cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_RealSpacing(t *testing.T) {
	// 6000/min means a 10ms minimum interval.
	l := NewLimiter(6000, "votehub")

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond,
		"4 acquisitions at 10ms spacing should take at least 30ms, took %v", elapsed)
}
