package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedSource serves catalogs from Redis, falling through to Next on a miss.
// Redis failures are logged and never fail a load.
type CachedSource struct {
	Next   Source
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

// NewCachedSource wraps next with a Redis cache.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{Next: next, Client: client, TTL: ttl, Logger: logger}
}

func cacheKey(ref string) string {
	return "catalog:" + ref
}

// Rows implements Source.
func (c *CachedSource) Rows(ctx context.Context, ref string) ([][]string, error) {
	key := cacheKey(ref)
	payload, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows [][]string
		if jerr := json.Unmarshal(payload, &rows); jerr == nil {
			return rows, nil
		}
		c.Logger.Warn("discarding corrupt catalog cache entry", zap.String("catalog", ref))
	case !errors.Is(err, redis.Nil):
		c.Logger.Warn("catalog cache read failed", zap.String("catalog", ref), zap.Error(err))
	}

	rows, err := c.Next.Rows(ctx, ref)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rows); err == nil {
		if err := c.Client.Set(ctx, key, payload, c.TTL).Err(); err != nil {
			c.Logger.Warn("catalog cache write failed", zap.String("catalog", ref), zap.Error(err))
		}
	}
	return rows, nil
}

// Invalidate drops a cached catalog.
func (c *CachedSource) Invalidate(ctx context.Context, ref string) error {
	return c.Client.Del(ctx, cacheKey(ref)).Err()
}
