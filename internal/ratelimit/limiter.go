// ABOUTME: Thread-safe fixed-window rate limiter keyed by API key
// ABOUTME: Counters live in process memory and reset when their window lapses

package ratelimit

import (
	"sync"
	"time"
)

// Result reports the outcome of a single Consume call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// window is a fixed-length counting window for one key.
type window struct {
	end   time.Time
	count int
}

// Limiter counts requests per key inside fixed wall-clock windows. It is an
// approximate limiter: a burst straddling a window boundary can admit up to
// twice the nominal ceiling. State is process-local and non-durable; a
// restart resets all counters. Both properties are accepted trade-offs.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	windowLen time.Duration
	max       int
	now       func() time.Time
	done      chan struct{}
	closed    bool
}

// New creates a limiter admitting max requests per key per window. A
// background goroutine evicts windows of idle keys.
func New(windowLen time.Duration, max int) *Limiter {
	l := NewWithClock(windowLen, max, time.Now)
	go l.cleanup()
	return l
}

// NewWithClock creates a limiter with an injected clock and no background
// cleanup. Used by tests to step through window boundaries.
func NewWithClock(windowLen time.Duration, max int, now func() time.Time) *Limiter {
	return &Limiter{
		windows:   make(map[string]*window),
		windowLen: windowLen,
		max:       max,
		now:       now,
		done:      make(chan struct{}),
	}
}

// Consume records one request for the key and reports whether it is within
// the window's ceiling. The increment and the comparison happen under one
// lock acquisition, so two concurrent requests can never both be admitted
// on the strength of the same pre-increment count.
func (l *Limiter) Consume(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.After(w.end) {
		w = &window{end: now.Add(l.windowLen)}
		l.windows[key] = w
	}

	w.count++

	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   w.count <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   w.end,
	}
}

// cleanup runs in a background goroutine, dropping windows that lapsed more
// than one window length ago.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runCleanup()
		case <-l.done:
			return
		}
	}
}

// runCleanup removes all expired windows.
func (l *Limiter) runCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.windowLen)
	for key, w := range l.windows {
		if w.end.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
