// ABOUTME: Tests for the fixed-window rate limiter
// ABOUTME: Uses an injected clock to step across window boundaries deterministically

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for limiter tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_AdmitsExactlyCeiling(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 5, clock.Now)

	for i := 0; i < 5; i++ {
		result := limiter.Consume("key-1")
		assert.True(t, result.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}

	// The sixth request in the same window is rejected.
	result := limiter.Consume("key-1")
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestLimiter_ResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 2, clock.Now)

	assert.True(t, limiter.Consume("key-1").Allowed)
	assert.True(t, limiter.Consume("key-1").Allowed)
	assert.False(t, limiter.Consume("key-1").Allowed)

	clock.Advance(time.Minute + time.Second)

	result := limiter.Consume("key-1")
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 1, clock.Now)

	assert.True(t, limiter.Consume("key-1").Allowed)
	assert.False(t, limiter.Consume("key-1").Allowed)

	// Exhausting key-1 does not touch key-2's window.
	assert.True(t, limiter.Consume("key-2").Allowed)
}

func TestLimiter_ResetAtIsWindowEnd(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 2, clock.Now)

	start := clock.Now()
	result := limiter.Consume("key-1")
	assert.Equal(t, start.Add(time.Minute), result.ResetAt)

	// ResetAt stays fixed for subsequent requests in the same window.
	clock.Advance(30 * time.Second)
	result = limiter.Consume("key-1")
	assert.Equal(t, start.Add(time.Minute), result.ResetAt)
}

func TestLimiter_BoundaryBurstAdmitsUpToDouble(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 3, clock.Now)

	// Fill the first window right before it lapses.
	clock.Advance(0)
	for i := 0; i < 3; i++ {
		require.True(t, limiter.Consume("key-1").Allowed)
	}

	// Just past the boundary a fresh window opens with a full ceiling.
	clock.Advance(time.Minute + time.Millisecond)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Consume("key-1").Allowed)
	}
	assert.False(t, limiter.Consume("key-1").Allowed)
}

func TestLimiter_ConcurrentConsumeNeverOveradmits(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 50, clock.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Consume("key-1").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted)
}

func TestLimiter_CleanupDropsLapsedWindows(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Minute, 5, clock.Now)

	limiter.Consume("key-1")
	limiter.Consume("key-2")

	// Beyond one full window past expiry both entries are evictable.
	clock.Advance(3 * time.Minute)
	limiter.runCleanup()

	limiter.mu.Lock()
	remaining := len(limiter.windows)
	limiter.mu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestLimiter_CloseIsIdempotent(t *testing.T) {
	limiter := New(time.Minute, 5)
	limiter.Close()
	limiter.Close() // must not panic
}
