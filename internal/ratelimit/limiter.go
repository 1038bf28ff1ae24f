package ratelimit

import (
	"context"
	"fmt"

	"github.com/patrickwarner/adprovision/internal/observability"
)

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// Limiter gates remote calls behind a single shared bucket. A nil *Limiter
// never blocks.
type Limiter struct {
	bucket  *TokenBucket
	config  Config
	metrics observability.MetricsRegistry
}

// NewLimiter creates a Limiter from config.
func NewLimiter(config Config, metrics observability.MetricsRegistry) *Limiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Limiter{
		bucket:  NewTokenBucket(config.Capacity, config.RefillRate),
		config:  config,
		metrics: metrics,
	}
}

// Wait blocks until the caller may issue one remote call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || !l.config.Enabled {
		return ctx.Err()
	}
	waited, err := l.bucket.Wait(ctx)
	l.metrics.RecordRateLimitWait(waited)
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Stats reports how often callers were delayed.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	hits, total := l.bucket.Stats()
	s := Stats{Hits: hits, Total: total}
	if total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Stats contains limiter statistics.
type Stats struct {
	Hits    int64   `json:"hits"`     // Number of delayed calls
	Total   int64   `json:"total"`    // Total number of calls
	HitRate float64 `json:"hit_rate"` // Share of calls delayed (0.0-1.0)
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	return fmt.Sprintf("%d/%d delayed (%.2f%%)", s.Hits, s.Total, s.HitRate*100)
}
