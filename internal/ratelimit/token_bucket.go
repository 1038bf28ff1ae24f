// Package ratelimit implements the token bucket shared by every remote call
// a provisioning run makes against the ad server.
//
// The bucket allows bursts up to its capacity while holding the sustained
// rate to the refill rate. Callers block in Wait until a token is free.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a thread-safe token bucket rate limiter.
//
// Example usage:
//
//	bucket := NewTokenBucket(10, 5) // 10 burst capacity, 5 tokens/second
//	if err := bucket.Wait(ctx); err != nil {
//	    return err // context cancelled while waiting
//	}
type TokenBucket struct {
	capacity   float64    // Maximum number of tokens the bucket can hold
	tokens     float64    // Current number of tokens in the bucket
	refillRate float64    // Number of tokens added per second
	lastRefill time.Time  // Last time tokens were added to the bucket
	mu         sync.Mutex // Protects all bucket state
	hitCount   int64      // Number of requests that had to wait or were rejected
	totalCount int64      // Total number of requests processed

	now func() time.Time
}

// NewTokenBucket creates a new token bucket with the specified capacity and refill rate.
//
// Parameters:
//   - capacity: Maximum number of tokens the bucket can hold (burst allowance)
//   - refillRate: Number of tokens added per second (sustained rate limit)
//
// The bucket starts full. Non-positive values are raised to 1.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate < 1 {
		refillRate = 1
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill must be called with mu held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
}

// reserve takes a token if one is available. Otherwise it returns how long
// until the next token. Must be called with mu held.
func (tb *TokenBucket) reserve() time.Duration {
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

// Wait blocks until a token is available or ctx is done. It returns how long
// the caller waited.
func (tb *TokenBucket) Wait(ctx context.Context) (time.Duration, error) {
	start := tb.now()

	tb.mu.Lock()
	tb.totalCount++
	delay := tb.reserve()
	if delay > 0 {
		tb.hitCount++
	}
	tb.mu.Unlock()

	for delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return tb.now().Sub(start), ctx.Err()
		case <-timer.C:
		}

		tb.mu.Lock()
		delay = tb.reserve()
		tb.mu.Unlock()
	}
	return tb.now().Sub(start), nil
}

// Stats returns the current rate limiting statistics.
//
// Returns:
//   - hits: Number of requests that were delayed or rejected
//   - total: Total number of requests processed by this bucket
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
