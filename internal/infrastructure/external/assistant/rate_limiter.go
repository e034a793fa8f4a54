package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a token bucket shared by all sessions of one process. A 429
// from the provider empties the bucket and holds new requests until the
// provider's Retry-After has passed.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	holdUntil   time.Time

	now func() time.Time
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity.
	BurstSize int

	// WaitTimeout is the longest Wait blocks before giving up.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig allows a short burst of messages and then one
// message per second.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 1.0,
		BurstSize:         3,
		WaitTimeout:       5 * time.Second,
	}
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	rl := &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		waitTimeout: config.WaitTimeout,
		now:         time.Now,
	}
	rl.lastRefill = rl.now()
	return rl
}

// RateLimitError is returned when a token is not available in time.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("assistant rate limit exceeded, retry after %s", e.RetryAfter)
}

// Unwrap lets callers match shared.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return shared.ErrRateLimited
}

// Wait blocks until a token is available, the wait would exceed the
// configured timeout, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := rl.now().Add(rl.waitTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.now().Add(wait).After(deadline) {
			return &RateLimitError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token without blocking.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.tryAcquire()
	return ok
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.refill(now)

	if now.Before(rl.holdUntil) {
		return rl.holdUntil.Sub(now), false
	}
	if rl.tokens < 1.0 {
		needed := 1.0 - rl.tokens
		return time.Duration(needed / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	return 0, true
}

// refill must be called with the lock held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// RecordRateLimitHit empties the bucket after a 429 from the provider.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	if retryAfter > 0 {
		rl.holdUntil = rl.now().Add(retryAfter)
	}
}
