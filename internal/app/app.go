// Package app wires the provisioning engine from configuration. Both the
// provisioner CLI and the MCP server build their collaborators here.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/adserver"
	"github.com/patrickwarner/adprovision/internal/assets"
	"github.com/patrickwarner/adprovision/internal/catalog"
	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/db"
	"github.com/patrickwarner/adprovision/internal/markup"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/provision"
	"github.com/patrickwarner/adprovision/internal/ratelimit"
	"github.com/patrickwarner/adprovision/internal/telemetry"
	"github.com/patrickwarner/adprovision/internal/templates"
)

// Option customises App construction.
type Option func(*options)

type options struct {
	client    adserver.Client
	assets    assets.Store
	sink      telemetry.Sink
	orchOpts  []provision.Option
	resolving bool
}

// WithClient replaces the HTTP ad server client.
func WithClient(c adserver.Client) Option {
	return func(o *options) { o.client = c }
}

// WithAssets replaces the configured creative store.
func WithAssets(s assets.Store) Option {
	return func(o *options) { o.assets = s }
}

// WithSink replaces the configured telemetry sinks.
func WithSink(s telemetry.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithOrchestratorOptions passes options through to provision.New.
func WithOrchestratorOptions(opts ...provision.Option) Option {
	return func(o *options) { o.orchOpts = append(o.orchOpts, opts...) }
}

// ResolveOnly skips the ad server client, asset store and telemetry sinks.
// Run is unavailable on such an App.
func ResolveOnly() Option {
	return func(o *options) { o.resolving = true }
}

// App holds the wired engine and the connections it owns.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  observability.MetricsRegistry
	Resolver *placement.Resolver
	// Tags are loaded from Config.TagsFile and added to every brief.
	Tags []assets.Tag

	orch    *provision.Orchestrator
	limiter *ratelimit.Limiter
	pg      *db.Postgres
	rdb     *redis.Client
	closers []func()
}

// New builds an App. Close releases everything it opened, also when New
// fails part way.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger, Metrics: metrics}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	presets, err := placement.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	src, err := a.catalogSource(ctx)
	if err != nil {
		return nil, err
	}
	a.Resolver = placement.NewResolver(catalog.NewReader(src, logger), presets, logger, metrics)
	if o.resolving {
		return a, nil
	}

	if cfg.TagsFile != "" {
		if a.Tags, err = assets.LoadTags(cfg.TagsFile); err != nil {
			return nil, fmt.Errorf("load tags: %w", err)
		}
	}

	runCfg, err := provision.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}

	client := o.client
	if client == nil {
		a.limiter = ratelimit.NewLimiter(ratelimit.Config{
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillRate,
			Enabled:    cfg.RateLimitEnabled,
		}, metrics)
		client = adserver.NewHTTPClient(cfg.AdServerURL, cfg.AdServerTimeout, adserver.StaticToken(cfg.AdServerToken), a.limiter, logger, metrics)
	}

	store := o.assets
	if store == nil {
		if store, err = a.assetStore(ctx); err != nil {
			return nil, err
		}
	}

	sink := o.sink
	if sink == nil {
		if sink, err = a.telemetrySink(ctx); err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("telemetry close", zap.Error(err))
		}
	})

	patcher := markup.NewPatcher(logger)
	patcher.SetStrictMode(cfg.StrictMarkup)

	a.orch = provision.New(provision.Deps{
		Resolver: a.Resolver,
		Client:   client,
		Engine:   templates.NewEngine(logger, metrics),
		Patcher:  patcher,
		Assets:   store,
		Sink:     sink,
		Logger:   logger,
		Metrics:  metrics,
	}, runCfg, o.orchOpts...)
	return a, nil
}

// Run provisions brief after adding the configured tags to it.
func (a *App) Run(ctx context.Context, brief provision.Brief) (*models.ProvisioningResult, error) {
	if a.orch == nil {
		return nil, fmt.Errorf("app built without provisioning")
	}
	if len(a.Tags) > 0 {
		tags := make([]assets.Tag, 0, len(a.Tags)+len(brief.Tags))
		tags = append(tags, a.Tags...)
		brief.Tags = append(tags, brief.Tags...)
	}
	res, err := a.orch.Run(ctx, brief)
	if a.limiter != nil {
		a.Logger.Debug("ad server rate limit", zap.Stringer("stats", a.limiter.Stats()))
	}
	return res, err
}

// RateLimitStats reports how often ad server calls waited on the shared
// limiter. It is zero when the client was supplied through WithClient.
func (a *App) RateLimitStats() ratelimit.Stats {
	return a.limiter.Stats()
}

// ImportCatalog replaces a stored catalog and drops its cache entry.
func (a *App) ImportCatalog(ctx context.Context, name string, rows [][]string) error {
	pg, err := a.postgres()
	if err != nil {
		return err
	}
	if err := pg.ReplaceCatalog(ctx, name, rows); err != nil {
		return err
	}
	if a.Config.CatalogCacheTTL > 0 {
		rdb, err := a.redis(ctx)
		if err != nil {
			return err
		}
		cached := catalog.NewCachedSource(nil, rdb, a.Config.CatalogCacheTTL, a.Logger)
		if err := cached.Invalidate(ctx, name); err != nil {
			a.Logger.Warn("catalog cache invalidate", zap.String("catalog", name), zap.Error(err))
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) catalogSource(ctx context.Context) (catalog.Source, error) {
	var src catalog.Source
	switch a.Config.CatalogSource {
	case "", "csv":
		src = catalog.DirSource{Dir: a.Config.CatalogDir}
	case "postgres":
		pg, err := a.postgres()
		if err != nil {
			return nil, err
		}
		src = catalog.PostgresSource{DB: pg.DB}
	default:
		return nil, fmt.Errorf("unknown catalog source %q", a.Config.CatalogSource)
	}
	if a.Config.CatalogCacheTTL <= 0 {
		return src, nil
	}
	rdb, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.NewCachedSource(src, rdb, a.Config.CatalogCacheTTL, a.Logger), nil
}

func (a *App) assetStore(ctx context.Context) (assets.Store, error) {
	if a.Config.AssetBucket != "" {
		s3, err := assets.NewS3Store(ctx, assets.S3Config{
			Bucket:          a.Config.AssetBucket,
			Prefix:          a.Config.AssetPrefix,
			Endpoint:        a.Config.AssetEndpoint,
			Region:          a.Config.AssetRegion,
			AccessKeyID:     a.Config.AssetKeyID,
			SecretAccessKey: a.Config.AssetSecret,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	if a.Config.AssetDir == "" {
		return nil, nil
	}
	return assets.DirStore{Dir: a.Config.AssetDir}, nil
}

func (a *App) telemetrySink(ctx context.Context) (telemetry.Sink, error) {
	sinks := telemetry.Multi{telemetry.NewLogSink(a.Logger)}
	if a.Config.ClickHouseDSN == "" {
		return sinks, nil
	}
	w, err := telemetry.InitClickHouse(ctx, a.Config.ClickHouseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	sinks = append(sinks, telemetry.NewClickHouseSink(w, telemetry.ClickHouseConfig{
		BufferSize:  a.Config.TelemetryBufferSize,
		FlushPeriod: a.Config.TelemetryFlushPeriod,
	}, a.Logger, a.Metrics))
	return sinks, nil
}

func (a *App) postgres() (*db.Postgres, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	pg, err := db.InitPostgres(a.Config.PostgresDSN, a.Config.DBMaxOpenConns, a.Config.DBMaxIdleConns, a.Config.DBConnMaxLifetime, a.Config.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pg = pg
	a.closers = append(a.closers, pg.Close)
	return pg, nil
}

func (a *App) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := db.InitRedis(ctx, a.Config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}
