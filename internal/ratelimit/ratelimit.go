// Package ratelimit throttles conversation turns with token buckets, one
// bucket per client.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket. It is safe for concurrent use.
//
// The bucket starts full with burst tokens and refills continuously at
// refillRate tokens per second, never exceeding burst. Each allowed request
// takes one token.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	refillRate float64
	lastRefill time.Time
	lastUsed   time.Time
}

// New creates a full bucket.
//
// Example:
//
//	// 6 turns at once, then one every 10 seconds
//	limiter := ratelimit.New(6, 0.1)
func New(burst, refillRate float64) *Limiter {
	now := time.Now()
	return &Limiter{
		tokens:     burst,
		burst:      burst,
		refillRate: refillRate,
		lastRefill: now,
		lastUsed:   now,
	}
}

// refill must be called with mu held.
func (l *Limiter) refill(now time.Time) {
	l.tokens = min(l.burst, l.tokens+now.Sub(l.lastRefill).Seconds()*l.refillRate)
	l.lastRefill = now
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.refill(now)
	l.lastUsed = now
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Available returns the current number of tokens.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	return l.tokens
}

// RetryAfter returns how long until the next token, or 0 when one is
// available now.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	if l.tokens >= 1 || l.refillRate <= 0 {
		return 0
	}
	return time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
}

// IsIdle reports whether the bucket is full and unused for at least d, so
// dropping it loses no state.
func (l *Limiter) IsIdle(d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.refill(now)
	return l.tokens >= l.burst && now.Sub(l.lastUsed) >= d
}

// Reset refills the bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens = l.burst
	l.lastRefill = time.Now()
}
