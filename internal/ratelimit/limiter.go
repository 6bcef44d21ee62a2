// Package ratelimit implements the Gateway's per-API-key token bucket,
// a continuous-refill bucket: tokens refill at `rate`
// tokens/second, 0 ≤ tokens ≤ rate.
package ratelimit

import (
	"log"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-key token bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	logger  *log.Logger
}

// NewLimiter constructs a Limiter refilling at rate tokens/second per key.
func NewLimiter(rate float64) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		logger:  log.New(log.Writer(), "[RATELIMIT] ", log.LstdFlags),
	}
}

// Allow consumes one token from key's bucket, refilling continuously
// since the last access. Returns false (and does not consume) when the
// bucket is empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.rate, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.rate {
		b.tokens = l.rate
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Stats returns a snapshot of current token levels, for diagnostics.
func (l *Limiter) Stats() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]float64, len(l.buckets))
	for k, b := range l.buckets {
		out[k] = b.tokens
	}
	return out
}
