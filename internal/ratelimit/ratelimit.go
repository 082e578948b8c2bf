// Package ratelimit implements the per-user fixed-window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig returns the default rate limit settings.
func DefaultConfig() Config {
	return Config{MaxRequests: 10, Window: time.Minute}
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

type bucket struct {
	windowStart time.Time
	count       int
}

// Limiter tracks per-user request counts within fixed time windows. The
// admission check is synchronous and O(1) per user.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	buckets map[string]*bucket
	now     func() time.Time
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithClock injects a clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter with the given configuration.
func New(config Config, opts ...Option) *Limiter {
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultConfig().MaxRequests
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	l := &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit checks whether a request from the given user is allowed in the
// current window and counts it if so. When rejected, RetryAfter reports how
// long until the window resets.
func (l *Limiter) Admit(userID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	max := l.config.MaxRequests
	window := l.config.Window

	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[userID] = b
	}

	elapsed := now.Sub(b.windowStart)
	// Elapsed window, or a backward clock jump: start fresh.
	if elapsed >= window || elapsed < 0 {
		b.windowStart = now
		b.count = 0
		elapsed = 0
	}

	b.count++
	if b.count > max {
		b.count = max // count never exceeds max within an active window
		return Decision{
			Allowed:    false,
			RetryAfter: window - elapsed,
			Remaining:  0,
		}
	}
	return Decision{Allowed: true, Remaining: max - b.count}
}

// Reset clears the bucket for a user. Admin operation.
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, userID)
}

// SetLimits replaces the limiter configuration. Applied to new windows;
// buckets in flight keep their counts.
func (l *Limiter) SetLimits(config Config) {
	if config.MaxRequests <= 0 || config.Window <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = config
}

// EvictIdle drops buckets whose window started more than maxIdle ago.
// Returns the number of buckets removed.
func (l *Limiter) EvictIdle(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, b := range l.buckets {
		if now.Sub(b.windowStart) > maxIdle {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}
