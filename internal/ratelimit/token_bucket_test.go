package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patrickwarner/adprovision/internal/observability"
)

// take consumes a token only if one is free right now.
func take(tb *TokenBucket) bool {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tb.Wait(ctx)
	return err == nil
}

func TestTokenBucket_Take(t *testing.T) {
	bucket := NewTokenBucket(5, 1) // 5 tokens, refill 1 per second

	// Should allow 5 requests initially
	for i := 0; i < 5; i++ {
		if !take(bucket) {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	// 6th request should be blocked
	if take(bucket) {
		t.Error("Expected 6th request to be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if total != 6 {
		t.Errorf("Expected 6 total requests, got %d", total)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bucket := NewTokenBucket(2, 10) // 2 tokens, refill 10 per second
	bucket.now = func() time.Time { return now }
	bucket.lastRefill = now

	take(bucket)
	take(bucket)
	if take(bucket) {
		t.Error("Expected request to be blocked")
	}

	now = now.Add(200 * time.Millisecond) // 0.2 seconds * 10 tokens/sec = 2 tokens
	if !take(bucket) {
		t.Error("Expected request to be allowed after refill")
	}
	if !take(bucket) {
		t.Error("Expected second refilled token")
	}
	if take(bucket) {
		t.Error("Expected bucket to be empty again")
	}
}

func TestTokenBucket_WaitBlocksUntilRefill(t *testing.T) {
	bucket := NewTokenBucket(1, 20) // one token every 50ms

	if _, err := bucket.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if _, err := bucket.Wait(context.Background()); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected second wait to block, took %v", elapsed)
	}
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	bucket := NewTokenBucket(1, 1)
	take(bucket)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := bucket.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: false}, observability.NewNoOpRegistry())
	for i := 0; i < 10; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("disabled limiter should never block: %v", err)
		}
	}
	if s := l.Stats(); s.Total != 0 {
		t.Errorf("Expected no recorded calls, got %s", s)
	}

	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter: %v", err)
	}
}

func TestLimiter_Stats(t *testing.T) {
	l := NewLimiter(Config{Capacity: 2, RefillRate: 100, Enabled: true}, nil)
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	s := l.Stats()
	if s.Total != 3 || s.Hits != 1 {
		t.Errorf("Expected 1/3 delayed, got %s", s)
	}
}
