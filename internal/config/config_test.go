package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, 5, cfg.NameMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.NameRetryDelay)
	assert.Equal(t, 1, cfg.CreativeWorkers)
	assert.Equal(t, 3, cfg.CreativeMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.CreativeRetryBackoff)
	assert.Equal(t, "Asia/Kolkata", cfg.TimeZone)
	assert.Equal(t, "csv", cfg.CatalogSource)
	assert.False(t, cfg.StrictMarkup)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NAME_RETRY_DELAY", "2")
	t.Setenv("CREATIVE_WORKERS", "4")
	t.Setenv("CATALOG_SOURCE", "Postgres")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("STRICT_MARKUP", "true")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.NameRetryDelay)
	assert.Equal(t, 4, cfg.CreativeWorkers)
	assert.Equal(t, "postgres", cfg.CatalogSource)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, 0.25, cfg.TracingSampleRate)
	assert.True(t, cfg.StrictMarkup)
}

func TestEnvHelpersFallBackOnInvalid(t *testing.T) {
	t.Setenv("X_DURATION", "soon")
	t.Setenv("X_INT", "many")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, time.Minute, envDuration("X_DURATION", time.Minute))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.True(t, envBool("X_BOOL", true))
}
