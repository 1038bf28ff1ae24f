package provision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/adserver"
	"github.com/patrickwarner/adprovision/internal/assets"
	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/markup"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/naming"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/telemetry"
	"github.com/patrickwarner/adprovision/internal/templates"
)

const defaultEndDate = "2025-12-31 23:59:00"

// Config tunes a provisioning run.
type Config struct {
	// OrderID is used when the brief names no order.
	OrderID         string
	CreativeWorkers int
	Retry           adserver.RetryPolicy
	NameMaxAttempts int
	NameRetryDelay  time.Duration
	Location        *time.Location
	DefaultEndDate  string
}

// ConfigFrom derives the run configuration from the service config.
func ConfigFrom(cfg config.Config) (Config, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return Config{}, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}
	return Config{
		OrderID:         cfg.OrderID,
		CreativeWorkers: cfg.CreativeWorkers,
		Retry: adserver.RetryPolicy{
			MaxAttempts: cfg.CreativeMaxAttempts,
			BaseDelay:   cfg.CreativeRetryBackoff,
		},
		NameMaxAttempts: cfg.NameMaxAttempts,
		NameRetryDelay:  cfg.NameRetryDelay,
		Location:        loc,
		DefaultEndDate:  cfg.DefaultEndDate,
	}, nil
}

// Deps are the collaborators of an Orchestrator. Assets and Sink are optional.
type Deps struct {
	Resolver *placement.Resolver
	Client   adserver.Client
	Engine   *templates.Engine
	Patcher  *markup.Patcher
	Assets   assets.Store
	Sink     telemetry.Sink
	Logger   *zap.Logger
	Metrics  observability.MetricsRegistry
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for schedules and creative names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithNamingOptions passes extra options to the naming protocol.
func WithNamingOptions(opts ...naming.Option) Option {
	return func(o *Orchestrator) { o.namingOpts = append(o.namingOpts, opts...) }
}

// Orchestrator sequences a provisioning run. It holds no per-run state and
// is safe for concurrent runs.
type Orchestrator struct {
	resolver *placement.Resolver
	client   adserver.Client
	engine   *templates.Engine
	patcher  *markup.Patcher
	assets   assets.Store
	sink     telemetry.Sink
	naming   *naming.Protocol
	cfg      Config

	logger  *zap.Logger
	metrics observability.MetricsRegistry
	tracer  trace.Tracer

	now        func() time.Time
	namingOpts []naming.Option
}

// New builds an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoOpRegistry()
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.Nop{}
	}
	if deps.Engine == nil {
		deps.Engine = templates.NewEngine(deps.Logger, deps.Metrics)
	}
	if deps.Patcher == nil {
		deps.Patcher = markup.NewPatcher(deps.Logger)
	}
	if cfg.CreativeWorkers < 1 {
		cfg.CreativeWorkers = 1
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = adserver.DefaultRetryPolicy()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultEndDate == "" {
		cfg.DefaultEndDate = defaultEndDate
	}

	o := &Orchestrator{
		resolver: deps.Resolver,
		client:   deps.Client,
		engine:   deps.Engine,
		patcher:  deps.Patcher,
		assets:   deps.Assets,
		sink:     deps.Sink,
		cfg:      cfg,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		tracer:   observability.Tracer("provision"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	namingOpts := []naming.Option{naming.WithClock(o.now)}
	if cfg.NameMaxAttempts > 0 {
		namingOpts = append(namingOpts, naming.WithMaxAttempts(cfg.NameMaxAttempts))
	}
	if cfg.NameRetryDelay > 0 {
		namingOpts = append(namingOpts, naming.WithRetryDelay(cfg.NameRetryDelay))
	}
	o.naming = naming.NewProtocol(deps.Client, deps.Logger, deps.Metrics, append(namingOpts, o.namingOpts...)...)
	return o
}

// Resolver exposes the placement resolver for resolve-only callers.
func (o *Orchestrator) Resolver() *placement.Resolver {
	return o.resolver
}

// Run provisions brief. Input, resolution, geo and naming failures abort
// the run and return an error; nothing remote is mutated before the line
// item create. Once the line item exists, creative failures are reported per
// size in a degraded result.
func (o *Orchestrator) Run(ctx context.Context, brief Brief) (*models.ProvisioningResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "provision.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("line_item.requested_name", brief.Name),
	))
	defer span.End()

	logger := o.logger.With(zap.String("run_id", runID))
	res := &models.ProvisioningResult{
		RunID:         runID,
		RequestedName: brief.Name,
		Timings:       make(map[string]time.Duration),
	}
	o.sink.Emit(telemetry.Event{
		Type:         telemetry.LineCreationStart,
		RunID:        runID,
		LineItemName: brief.Name,
		Status:       telemetry.StatusStarted,
		Message:      "line item creation started",
	})

	fail := func(phase string, err error) (*models.ProvisioningResult, error) {
		outcome := "failed"
		if models.IsInputError(err) {
			outcome = "invalid"
		}
		o.metrics.IncrementProvisionRuns(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("provisioning failed", zap.String("phase", phase), zap.Error(err))
		o.sink.Emit(telemetry.Event{
			Type:         telemetry.LineCreationError,
			RunID:        runID,
			LineItemName: brief.Name,
			Status:       telemetry.StatusError,
			Message:      err.Error(),
			Attributes:   map[string]string{"phase": phase},
		})
		return nil, err
	}

	if err := brief.Validate(); err != nil {
		return fail("validate", err)
	}
	orderID := strings.TrimSpace(brief.OrderID)
	if orderID == "" {
		orderID = o.cfg.OrderID
	}
	if orderID == "" {
		return fail("validate", models.NewInputError("order_id", "no order id in the brief or configuration"))
	}
	lineType := brief.lineType()
	base := brief.lineContext()

	plan, err := o.prepareCreatives(ctx, brief, logger)
	if err != nil {
		return fail("assets", err)
	}
	sizes := o.requestedSizes(brief, plan, lineType, logger)

	phase := time.Now()
	resolution, err := o.resolver.Resolve(ctx, placement.Request{Filter: brief.Targeting, Sizes: sizes, LineType: lineType})
	res.Timings[models.PhasePlacements] = time.Since(phase)
	if err != nil {
		return fail(models.PhasePlacements, err)
	}
	placementIDs := resolution.AllPlacementIDs()
	o.sink.Emit(telemetry.Event{
		Type:         telemetry.PlacementTargeting,
		RunID:        runID,
		LineItemName: brief.Name,
		Status:       telemetry.StatusSuccess,
		Message:      "placements resolved",
		Duration:     res.Timings[models.PhasePlacements],
		Attributes: map[string]string{
			"sites":         strings.Join(resolution.Sites, ","),
			"catalogs":      strings.Join(resolution.Catalogs, ","),
			"groups":        strings.Join(resolution.Keys(), ","),
			"placement_ids": strconv.Itoa(len(placementIDs)),
			"line_type":     string(lineType),
		},
	})

	phase = time.Now()
	geoIDs, invalid, err := o.resolveGeo(ctx, brief.Locations, logger)
	res.Timings[models.PhaseGeo] = time.Since(phase)
	o.metrics.RecordPhaseDuration(models.PhaseGeo, res.Timings[models.PhaseGeo])
	res.InvalidLocations = invalid
	if err != nil {
		return fail(models.PhaseGeo, err)
	}

	placeholders, targetings := BuildPlaceholders(resolution, lineType, base.VideoURL != "")
	schedule, err := BuildSchedule(brief.StartDate, brief.EndDate, o.cfg.DefaultEndDate, o.now(), o.cfg.Location)
	if err != nil {
		return fail("schedule", err)
	}
	currency, ok := NormalizeCurrency(brief.Currency)
	if !ok {
		logger.Warn("unsupported currency, using default", zap.String("requested", brief.Currency), zap.String("currency", currency))
	}
	draft := buildDraft(draftInput{
		brief:        brief,
		orderID:      orderID,
		schedule:     schedule,
		geoIDs:       geoIDs,
		placementIDs: placementIDs,
		placeholders: placeholders,
		targetings:   targetings,
		currency:     currency,
	})

	var advertiser string
	err = adserver.Retry(ctx, o.cfg.Retry, logger, "get_order", func(ctx context.Context) error {
		id, err := o.client.OrderAdvertiser(ctx, orderID)
		advertiser = id
		return err
	})
	if err != nil {
		return fail("advertiser", fmt.Errorf("look up advertiser of order %s: %w", orderID, err))
	}

	phase = time.Now()
	created, err := o.naming.Create(ctx, draft, brief.CampaignRef)
	res.Timings[models.PhaseLineItem] = time.Since(phase)
	o.metrics.RecordPhaseDuration(models.PhaseLineItem, res.Timings[models.PhaseLineItem])
	if err != nil {
		return fail(models.PhaseLineItem, err)
	}
	res.LineItemID = created.ID
	res.LineItemName = created.Name
	span.SetAttributes(attribute.String("line_item.id", created.ID), attribute.String("line_item.name", created.Name))
	o.sink.Emit(telemetry.Event{
		Type:         telemetry.LineCreationSuccess,
		RunID:        runID,
		LineItemID:   created.ID,
		LineItemName: created.Name,
		Status:       telemetry.StatusSuccess,
		Message:      "line item created",
		Duration:     res.Timings[models.PhaseLineItem],
		Attributes: map[string]string{
			"requested_name": brief.Name,
			"attempts":       strconv.Itoa(created.Attempts),
			"prechecked":     strconv.FormatBool(created.Prechecked),
		},
	})

	phase = time.Now()
	res.Creatives = o.provisionCreatives(ctx, &run{
		id:         runID,
		lineItemID: created.ID,
		orderID:    orderID,
		advertiser: advertiser,
		base:       base,
		plan:       plan,
		tracker:    newSizeTracker(),
		logger:     logger.With(zap.String("line_item_id", created.ID)),
	}, resolution)
	res.Timings[models.PhaseCreatives] = time.Since(phase)
	o.metrics.RecordPhaseDuration(models.PhaseCreatives, res.Timings[models.PhaseCreatives])

	for _, c := range res.Creatives {
		if c.Error != "" {
			res.FailedSizes = append(res.FailedSizes, c.Size)
		}
	}
	res.Degraded = len(res.FailedSizes) > 0
	res.Timings[models.PhaseTotal] = time.Since(started)
	o.metrics.RecordPhaseDuration(models.PhaseTotal, res.Timings[models.PhaseTotal])

	outcome := "success"
	if res.Degraded {
		outcome = "degraded"
		span.SetStatus(codes.Error, "creatives failed: "+strings.Join(res.FailedSizes, ","))
	}
	o.metrics.IncrementProvisionRuns(outcome)

	perf := make(map[string]string, len(res.Timings)+2)
	for k, v := range res.Timings {
		perf[k+"_ms"] = strconv.FormatInt(v.Milliseconds(), 10)
	}
	perf["creatives"] = strconv.Itoa(len(res.CreativeIDs()))
	perf["failed_sizes"] = strings.Join(res.FailedSizes, ",")
	o.sink.Emit(telemetry.Event{
		Type:         telemetry.PerformanceMetrics,
		RunID:        runID,
		LineItemID:   res.LineItemID,
		LineItemName: res.LineItemName,
		Status:       outcome,
		Message:      "provisioning finished",
		Duration:     res.Timings[models.PhaseTotal],
		Attributes:   perf,
	})

	logger.Info("provisioning finished",
		zap.String("line_item_id", res.LineItemID),
		zap.String("line_item_name", res.LineItemName),
		zap.Int("creatives", len(res.CreativeIDs())),
		zap.Strings("failed_sizes", res.FailedSizes),
		zap.Strings("invalid_locations", res.InvalidLocations),
		zap.Duration("elapsed", res.Timings[models.PhaseTotal]),
	)
	return res, nil
}

// creativePlan is the per-run view of creatives: discovered files with
// script tags layered on top, plus the per-size impression/click tags.
type creativePlan struct {
	library  *assets.Library
	tagged   map[models.Size]bool
	trackers map[models.Size]assets.Tag
	// labels holds markers from brief size labels such as "300x250_nolp".
	labels map[models.Size]models.AssetFlags
}

func (o *Orchestrator) prepareCreatives(ctx context.Context, brief Brief, logger *zap.Logger) (*creativePlan, error) {
	plan := &creativePlan{
		library:  assets.NewLibrary(),
		tagged:   make(map[models.Size]bool),
		trackers: make(map[models.Size]assets.Tag),
		labels:   make(map[models.Size]models.AssetFlags),
	}
	if o.assets != nil {
		lib, err := assets.Discover(ctx, o.assets, logger)
		if err != nil {
			return nil, err
		}
		plan.library = lib
	}

	tags, err := assets.NormalizeTags(brief.Tags)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		size := tag.ParsedSize()
		if !tag.IsScript() {
			plan.trackers[size] = tag
			continue
		}
		body, err := o.patcher.PatchMarkup(tag.Script)
		if err != nil {
			return nil, models.NewInputError("tags", fmt.Sprintf("%s tag for %s: %v", tag.Kind, tag.Size, err))
		}
		plan.library = plan.library.With(tag.MarkupAsset(body))
		plan.tagged[size] = true
	}
	return plan, nil
}

// requestedSizes is the union of brief sizes, discovered creative sizes and
// tag sizes. Sizes that only come from files or tags are dropped when no
// placement rule covers them for the line type.
func (o *Orchestrator) requestedSizes(brief Brief, plan *creativePlan, lineType models.LineType, logger *zap.Logger) []string {
	seen := make(map[string]bool)
	var sizes []string
	for _, s := range nonEmpty(brief.Sizes) {
		key := models.BaseSize(strings.ToLower(s))
		if lf := assets.LabelFlags(s); lf != (models.AssetFlags{}) {
			size, _ := models.ParseSize(s)
			cur := plan.labels[size]
			cur.IsDoubleDensity = cur.IsDoubleDensity || lf.IsDoubleDensity
			cur.HasNoLandingPage = cur.HasNoLandingPage || lf.HasNoLandingPage
			plan.labels[size] = cur
		}
		if !seen[key] {
			seen[key] = true
			sizes = append(sizes, key)
		}
	}

	extra := plan.library.Sizes()
	for s := range plan.trackers {
		extra = append(extra, s)
	}
	presets := o.resolver.Presets()
	for _, s := range extra {
		key := s.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := presets.Rule(lineType, key); !ok {
			logger.Info("creative size has no placement rule, skipping",
				zap.String("size", key),
				zap.String("line_type", string(lineType)),
			)
			continue
		}
		sizes = append(sizes, key)
	}
	return sizes
}

// resolveGeo looks up every location. Unknown names are collected and the
// run continues, unless no requested location resolves at all.
func (o *Orchestrator) resolveGeo(ctx context.Context, locations []string, logger *zap.Logger) (ids, invalid []string, err error) {
	seen := make(map[string]bool)
	requested := 0
	for _, name := range nonEmpty(locations) {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		requested++

		var id string
		err := adserver.Retry(ctx, o.cfg.Retry, logger, "lookup_geo", func(ctx context.Context) error {
			v, err := o.client.LookupGeo(ctx, name)
			id = v
			return err
		})
		switch {
		case errors.Is(err, models.ErrLocationNotFound):
			logger.Warn("location not found", zap.String("location", name))
			invalid = append(invalid, name)
		case err != nil:
			return nil, invalid, fmt.Errorf("look up location %q: %w", name, err)
		default:
			ids = append(ids, id)
		}
	}
	if requested > 0 && len(ids) == 0 {
		return nil, invalid, models.NewInputError("locations", "none of the requested locations exist: "+strings.Join(invalid, ", "))
	}
	return ids, invalid, nil
}
