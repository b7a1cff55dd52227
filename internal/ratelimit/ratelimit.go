package ratelimit

import (
	"sync"
	"time"
)

// bucket tracks the token state for a single client.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter implements a token-bucket rate limiter keyed by client identity
// (a bearer key prefix or a remote address). Every client gets the same rate.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time // injectable clock for testing
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// New creates a Limiter that allows rate requests per window for each key.
// A non-positive rate disables limiting.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0 && l.window > 0
}

// getBucket returns the bucket for key, creating a full one if needed.
// Must be called with l.mu held.
func (l *Limiter) getBucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		now := l.now()
		b = &bucket{tokens: float64(l.rate), lastRefill: now, lastSeen: now}
		l.buckets[key] = b
	}
	return b
}

// refill adds tokens for the time elapsed since the last refill.
// Must be called with l.mu held.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	b.lastSeen = now
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	// Tokens accumulate at rate/window per second.
	b.tokens += elapsed * float64(l.rate) / l.window.Seconds()
	if b.tokens > float64(l.rate) {
		b.tokens = float64(l.rate)
	}
	b.lastRefill = now
}

// Allow consumes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	return l.Take(key).Allowed
}

// Take consumes one token for key when available and returns the bucket
// state after the attempt.
func (l *Limiter) Take(key string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	return l.decision(b, allowed)
}

// Status returns the bucket state for key without consuming a token.
func (l *Limiter) Status(key string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)
	return l.decision(b, b.tokens >= 1)
}

// decision must be called with l.mu held.
func (l *Limiter) decision(b *bucket, allowed bool) Decision {
	d := Decision{Allowed: allowed, Limit: l.rate, Remaining: max(int(b.tokens), 0)}

	// Time until full replenishment from the current level.
	deficit := float64(l.rate) - b.tokens
	if deficit <= 0 {
		d.ResetAt = l.now()
	} else {
		perSecond := float64(l.rate) / l.window.Seconds()
		d.ResetAt = l.now().Add(time.Duration(deficit / perSecond * float64(time.Second)))
	}
	return d
}

// Prune drops buckets untouched for longer than idle and returns how many
// were removed. A dropped bucket comes back full, so idle must be at least
// one window.
func (l *Limiter) Prune(idle time.Duration) int {
	if idle < l.window {
		idle = l.window
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}
