package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// Ad server API
	AdServerURL     string
	AdServerToken   string
	AdServerTimeout time.Duration
	OrderID         string
	// Shared token bucket guarding every ad server call
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int
	// StrictMarkup fails a tag whose click macro cannot be injected
	StrictMarkup bool
	// Inventory catalogs: "csv" or "postgres", optionally cached in Redis
	CatalogSource   string
	CatalogDir      string
	CatalogCacheTTL time.Duration
	PresetsFile     string
	RedisAddr       string
	PostgresDSN     string
	// Creative assets: a local directory or an S3 bucket
	AssetDir      string
	AssetBucket   string
	AssetPrefix   string
	AssetEndpoint string
	AssetRegion   string
	AssetKeyID    string
	AssetSecret   string
	TagsFile      string
	// Naming protocol
	NameMaxAttempts int
	NameRetryDelay  time.Duration
	// Creative provisioning
	CreativeWorkers      int
	CreativeMaxAttempts  int
	CreativeRetryBackoff time.Duration
	TimeZone             string
	DefaultEndDate       string
	// Telemetry
	ClickHouseDSN        string
	TelemetryBufferSize  int
	TelemetryFlushPeriod time.Duration
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 2*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "adprovision")

	cfg.AdServerURL = getenv("ADSERVER_URL", "http://localhost:8080")
	cfg.AdServerToken = getenv("ADSERVER_TOKEN", "")
	cfg.AdServerTimeout = envDuration("ADSERVER_TIMEOUT", 30*time.Second)
	cfg.OrderID = getenv("ORDER_ID", "")

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 10)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 5)
	cfg.StrictMarkup = envBool("STRICT_MARKUP", false)

	cfg.CatalogSource = strings.ToLower(getenv("CATALOG_SOURCE", "csv"))
	cfg.CatalogDir = getenv("CATALOG_DIR", "catalogs")
	// zero disables the Redis cache
	cfg.CatalogCacheTTL = envDuration("CATALOG_CACHE_TTL", 0)
	cfg.PresetsFile = getenv("PRESETS_FILE", "")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")

	cfg.AssetDir = getenv("ASSET_DIR", "creatives")
	cfg.AssetBucket = getenv("ASSET_BUCKET", "")
	cfg.AssetPrefix = getenv("ASSET_PREFIX", "")
	cfg.AssetEndpoint = getenv("ASSET_ENDPOINT", "")
	cfg.AssetRegion = getenv("ASSET_REGION", "us-east-1")
	// empty keys fall back to the default AWS credential chain
	cfg.AssetKeyID = getenv("ASSET_ACCESS_KEY_ID", "")
	cfg.AssetSecret = getenv("ASSET_SECRET_ACCESS_KEY", "")
	cfg.TagsFile = getenv("TAGS_FILE", "")

	cfg.NameMaxAttempts = envInt("NAME_MAX_ATTEMPTS", 5)
	cfg.NameRetryDelay = envDuration("NAME_RETRY_DELAY", 500*time.Millisecond)

	cfg.CreativeWorkers = envInt("CREATIVE_WORKERS", 1)
	cfg.CreativeMaxAttempts = envInt("CREATIVE_MAX_ATTEMPTS", 3)
	cfg.CreativeRetryBackoff = envDuration("CREATIVE_RETRY_BACKOFF", 2*time.Second)
	cfg.TimeZone = getenv("TIME_ZONE", "Asia/Kolkata")
	cfg.DefaultEndDate = getenv("DEFAULT_END_DATE", "2025-12-31 23:59:00")

	// empty DSN keeps telemetry on the log sink only
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "")
	cfg.TelemetryBufferSize = envInt("TELEMETRY_BUFFER_SIZE", 1024)
	cfg.TelemetryFlushPeriod = envDuration("TELEMETRY_FLUSH_PERIOD", 2*time.Second)

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 2)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
