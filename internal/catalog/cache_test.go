package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSource struct {
	calls int
	rows  [][]string
}

func (c *countingSource) Rows(_ context.Context, _ string) ([][]string, error) {
	c.calls++
	return c.rows, nil
}

func TestCachedSourceServesFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingSource{rows: [][]string{{"Site", "Placement"}, {"TOI", "1"}}}
	cached := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t))

	first, err := cached.Rows(context.Background(), "TOI + ETIMES")
	require.NoError(t, err)
	second, err := cached.Rows(context.Background(), "TOI + ETIMES")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.True(t, mr.Exists("catalog:TOI + ETIMES"))

	mr.FastForward(2 * time.Minute)
	_, err = cached.Rows(context.Background(), "TOI + ETIMES")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedSourceFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	next := &countingSource{rows: [][]string{{"Site", "Placement"}}}
	cached := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t))

	rows, err := cached.Rows(context.Background(), "ALL LANGUAGES")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, next.calls)
}

func TestCachedSourceInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingSource{rows: [][]string{{"Site", "Placement"}}}
	cached := NewCachedSource(next, client, 0, zaptest.NewLogger(t))

	_, err := cached.Rows(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, cached.Invalidate(context.Background(), "x"))
	_, err = cached.Rows(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}
