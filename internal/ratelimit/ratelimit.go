// Package ratelimit provides a keyed rate limiter using token bucket algorithm.
// It supports both non-blocking (Allow) and blocking (Wait) operations.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTimeout is how long a key may go unused before its bucket is dropped.
const DefaultIdleTimeout = 10 * time.Minute

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key gets its own independent rate limiter.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a keyed rate limiter allowing rps events per second per key with
// bursts of up to burst. Buckets idle for DefaultIdleTimeout are swept.
func New(rps float64, burst int) *KeyedRateLimiter {
	return NewWithIdle(rps, burst, DefaultIdleTimeout)
}

// NewWithIdle is New with a custom idle timeout.
func NewWithIdle(rps float64, burst int, idle time.Duration) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go krl.sweepLoop()

	return krl
}

// Allow reports whether an event for key may happen now and spends a token if so.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key).AllowN(krl.now(), 1)
}

// Wait blocks until an event for key is allowed or ctx is canceled.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.getLimiter(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.buckets)
}

func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	b, ok := krl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.buckets[key] = b
	}
	b.lastSeen = krl.now()
	return b.limiter
}

// sweep drops buckets unused since before cutoff. A dropped bucket has refilled
// by then in any practical configuration, so forgetting it loses nothing.
func (krl *KeyedRateLimiter) sweep(cutoff time.Time) int {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	var dropped int
	for key, b := range krl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(krl.buckets, key)
			dropped++
		}
	}
	return dropped
}

func (krl *KeyedRateLimiter) sweepLoop() {
	ticker := time.NewTicker(krl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.sweep(krl.now().Add(-krl.idle))
		}
	}
}

// Stop shuts down the sweeper goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}
