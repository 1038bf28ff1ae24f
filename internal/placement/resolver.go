// Package placement resolves abstract targeting criteria into concrete
// placement ids held in the inventory catalogs.
package placement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
)

// CatalogLoader loads validated catalog rows. catalog.Reader implements it.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context, ref string) ([]models.CatalogRow, error)
}

// Request describes one resolution.
type Request struct {
	Filter   models.TargetingFilter
	Sizes    []string // Requested creative sizes, e.g. "300x250", "320x100".
	LineType models.LineType
}

// Resolution is the result of a successful resolve call.
type Resolution struct {
	// Groups is keyed by canonical placement key. Every requested size is
	// represented in exactly one group; groups may be empty.
	Groups   map[string]*models.PlacementGroup
	Sites    []string // Expanded site tokens.
	Catalogs []string // Catalogs that were searched.
}

// Keys returns the placement keys in sorted order.
func (r *Resolution) Keys() []string {
	keys := make([]string, 0, len(r.Groups))
	for k := range r.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AllPlacementIDs returns the sorted union of every group's ids.
func (r *Resolution) AllPlacementIDs() []string {
	all := models.NewPlacementGroup("")
	for _, g := range r.Groups {
		all.AddIDs(g.IDs()...)
	}
	return all.IDs()
}

// GroupFor returns the group serving a requested size.
func (r *Resolution) GroupFor(size string) *models.PlacementGroup {
	return r.Groups[PlacementKey(size)]
}

// sizePlan is the matching plan for one requested size.
type sizePlan struct {
	size     string
	key      string
	criteria Criteria
}

// Resolver matches catalog rows against a TargetingFilter.
type Resolver struct {
	loader  CatalogLoader
	presets Presets
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	tracer  trace.Tracer
}

// NewResolver builds a Resolver.
func NewResolver(loader CatalogLoader, presets Presets, logger *zap.Logger, metrics observability.MetricsRegistry) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Resolver{
		loader:  loader,
		presets: presets,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer("placement"),
	}
}

// Presets exposes the size rules used by the resolver.
func (r *Resolver) Presets() Presets {
	return r.presets
}

// Resolve computes one PlacementGroup per canonical size key. A requested
// size without a rule is an input error. If no placement id is found across
// all catalogs the call fails with models.ErrNoPlacements.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "placement.Resolve")
	defer span.End()

	if len(req.Filter.Sites) == 0 {
		return nil, models.NewInputError("sites", "at least one site is required")
	}
	if len(req.Filter.Platforms) == 0 {
		return nil, models.NewInputError("platforms", "at least one platform is required")
	}
	if len(req.Sizes) == 0 {
		return nil, models.NewInputError("sizes", "at least one creative size is required")
	}

	sites := ExpandSites(req.Filter.Sites)
	platforms := NormalizeTokens(req.Filter.Platforms)

	plans, err := r.plan(req, platforms)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := &Resolution{Groups: make(map[string]*models.PlacementGroup), Sites: sites}
	for _, p := range plans {
		g, ok := res.Groups[p.key]
		if !ok {
			g = models.NewPlacementGroup(p.key)
			res.Groups[p.key] = g
		}
		g.AddOriginalSize(p.size)
	}

	for _, part := range PartitionByCatalog(sites) {
		rows, err := r.loader.LoadCatalog(ctx, part.Catalog)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "catalog load failed")
			return nil, fmt.Errorf("load catalog %q: %w", part.Catalog, err)
		}
		res.Catalogs = append(res.Catalogs, part.Catalog)

		partial := resolveRows(rows, part.Sites, plans)
		for key, g := range partial {
			res.Groups[key].Merge(g)
		}
		r.logger.Debug("catalog searched",
			zap.String("catalog", part.Catalog),
			zap.Strings("sites", part.Sites),
			zap.Int("rows", len(rows)),
		)
	}

	total := 0
	for key, g := range res.Groups {
		n := len(g.PlacementIDs)
		total += n
		r.metrics.AddPlacementsResolved(key, n)
	}
	r.metrics.RecordPhaseDuration(models.PhasePlacements, time.Since(start))
	span.SetAttributes(
		attribute.StringSlice("placement.sites", sites),
		attribute.StringSlice("placement.catalogs", res.Catalogs),
		attribute.Int("placement.ids", total),
	)

	r.logger.Info("placements resolved",
		zap.Strings("sites", sites),
		zap.Strings("platforms", platforms),
		zap.String("line_type", string(req.LineType)),
		zap.Int("groups", len(res.Groups)),
		zap.Int("placement_ids", total),
		zap.Duration("elapsed", time.Since(start)),
	)

	if total == 0 {
		span.SetStatus(codes.Error, "no placements")
		return nil, fmt.Errorf("sites %s: %w", strings.Join(sites, ","), models.ErrNoPlacements)
	}
	return res, nil
}

// plan builds the per-size criteria for a request.
func (r *Resolver) plan(req Request, platforms []string) ([]sizePlan, error) {
	adTypeOverride := NormalizeTokens(req.Filter.AdTypes)
	sectionOverride := NormalizeTokens(req.Filter.Sections)

	seen := make(map[string]struct{}, len(req.Sizes))
	plans := make([]sizePlan, 0, len(req.Sizes))
	for _, raw := range req.Sizes {
		size := models.BaseSize(strings.ToLower(raw))
		if _, dup := seen[size]; dup {
			continue
		}
		seen[size] = struct{}{}

		rule, ok := r.presets.Rule(req.LineType, size)
		if !ok {
			return nil, models.NewInputError("sizes", fmt.Sprintf("no placement rule for %s on %s lines", size, req.LineType))
		}

		c := Criteria{
			AdTypes:  NormalizeTokens(rule.AdTypes),
			Sections: NormalizeTokens(rule.Sections),
		}
		if len(adTypeOverride) > 0 {
			c.AdTypes = adTypeOverride
		}
		if len(sectionOverride) > 0 {
			c.Sections = sectionOverride
		}

		key := PlacementKey(size)
		switch fixed, pinned := fixedPlatforms[key]; {
		case pinned:
			c.Platforms = fixed
		case req.LineType == models.LineRichMedia:
			c.Platforms = intersect(NormalizeTokens(rule.Platforms), platforms)
			if len(c.Platforms) == 0 {
				r.logger.Info("size has no supported platforms for rich media line",
					zap.String("size", size),
					zap.Strings("supported", rule.Platforms),
					zap.Strings("requested", platforms),
				)
			}
		default:
			c.Platforms = platforms
		}

		plans = append(plans, sizePlan{size: size, key: key, criteria: c})
	}
	return plans, nil
}

// resolveRows matches one catalog's rows against the plans. The returned
// groups carry only ids; original sizes are tracked by the caller.
func resolveRows(rows []models.CatalogRow, sites []string, plans []sizePlan) map[string]*models.PlacementGroup {
	out := make(map[string]*models.PlacementGroup)
	for _, p := range plans {
		g, ok := out[p.key]
		if !ok {
			g = models.NewPlacementGroup(p.key)
			out[p.key] = g
		}
		g.AddOriginalSize(p.size)
		for _, row := range rows {
			if Matches(row, sites, p.criteria) {
				g.AddIDs(row.PlacementID)
			}
		}
	}
	return out
}
