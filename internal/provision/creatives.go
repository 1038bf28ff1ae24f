package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/adprovision/internal/adserver"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/telemetry"
	"github.com/patrickwarner/adprovision/internal/templates"
)

// run is the explicit state of one provisioning run's creative phase.
type run struct {
	id         string
	lineItemID string
	orderID    string
	advertiser string
	base       models.LineContext
	plan       *creativePlan
	tracker    *sizeTracker
	logger     *zap.Logger
}

type creativeTask struct {
	size models.Size
	// skip is set for sizes that cannot be provisioned at all.
	skip error
}

// provisionCreatives creates and associates one creative per requested size.
// Outcomes are ordered by size regardless of worker scheduling.
func (o *Orchestrator) provisionCreatives(ctx context.Context, r *run, res *placement.Resolution) []models.CreativeOutcome {
	var tasks []creativeTask
	for _, key := range res.Keys() {
		g := res.Groups[key]
		for _, s := range g.Sizes() {
			t := creativeTask{size: models.MustParseSize(s)}
			if len(g.PlacementIDs) == 0 {
				t.skip = fmt.Errorf("size %s: %w", s, models.ErrNoPlacements)
			}
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return sizeLess(tasks[i].size, tasks[j].size) })

	outcomes := make([]models.CreativeOutcome, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.CreativeWorkers)
	for i, t := range tasks {
		g.Go(func() error {
			if t.skip != nil {
				outcomes[i] = o.failed(r, t.size, 0, t.skip)
				return nil
			}
			outcomes[i] = o.provisionSize(gctx, r, t.size)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func sizeLess(a, b models.Size) bool {
	if a.Width != b.Width {
		return a.Width < b.Width
	}
	return a.Height < b.Height
}

// provisionSize decides the template for one size, then creates and
// associates the creative. Transient failures are retried per call.
func (o *Orchestrator) provisionSize(ctx context.Context, r *run, size models.Size) models.CreativeOutcome {
	logger := r.logger.With(zap.String("size", size.String()))
	if !r.tracker.claim("size:" + size.String()) {
		return o.skipped(r, size, "size already provisioned in this run")
	}

	asset, _ := r.plan.library.Asset(size)
	if lf, ok := r.plan.labels[size]; ok && asset != nil {
		cp := *asset
		cp.Flags.IsDoubleDensity = cp.Flags.IsDoubleDensity || lf.IsDoubleDensity
		cp.Flags.HasNoLandingPage = cp.Flags.HasNoLandingPage || lf.HasNoLandingPage
		asset = &cp
	}
	line := r.base
	if tag, ok := r.plan.trackers[size]; ok {
		if tracker := tag.ImpressionTracker(); tracker != "" {
			line.ImpressionTrackerURL = tracker
		}
		if landing := tag.LandingPage(); landing != "" {
			line.LandingPageURL = landing
		}
		line.TemplateOverride = templates.Standard
		if asset != nil && asset.Flags.IsDoubleDensity {
			line.TemplateOverride = templates.DoubleDensity
		}
	}
	if asset != nil && asset.Kind == models.AssetMarkup && !r.plan.tagged[size] {
		patched, err := o.patchHTML(asset, line)
		if err != nil {
			return o.failed(r, size, 0, err)
		}
		asset = patched
	}

	d, err := o.engine.Decide(asset, line, size, r.plan.library)
	if err != nil {
		return o.failed(r, size, 0, err)
	}
	if !r.tracker.claim("creative:" + d.CreativeSize.String() + "|" + d.TargetingName) {
		return o.skipped(r, size, fmt.Sprintf("creative %s for %q already provisioned", d.CreativeSize, d.TargetingName))
	}

	req := adserver.CreativeRequest{
		Name:           creativeName(r.orderID, asset, size, o.now().UnixMilli()),
		AdvertiserID:   r.advertiser,
		TemplateID:     d.TemplateID,
		Size:           d.CreativeSize,
		DestinationURL: d.DestinationURL,
		Variables:      d.Variables,
	}
	var creativeID string
	err = adserver.Retry(ctx, o.cfg.Retry, logger, "create_creative", func(ctx context.Context) error {
		id, err := o.client.CreateCreative(ctx, req)
		creativeID = id
		return err
	})
	if err != nil {
		return o.failed(r, size, d.TemplateID, fmt.Errorf("create creative: %w", err))
	}

	assoc := adserver.Association{
		LineItemID:    r.lineItemID,
		CreativeID:    creativeID,
		TargetingName: d.TargetingName,
		Sizes:         append([]models.Size{d.CreativeSize}, d.SizeOverrides...),
	}
	err = adserver.Retry(ctx, o.cfg.Retry, logger, "associate_creative", func(ctx context.Context) error {
		return o.client.AssociateCreative(ctx, assoc)
	})
	if err != nil {
		out := o.failed(r, size, d.TemplateID, fmt.Errorf("associate creative %s: %w", creativeID, err))
		out.CreativeID = creativeID
		return out
	}

	logger.Info("creative provisioned",
		zap.String("creative_id", creativeID),
		zap.String("template", templates.Name(d.TemplateID)),
		zap.String("rule", d.Rule),
		zap.String("targeting", d.TargetingName),
	)
	o.metrics.IncrementCreativeOutcomes(size.String(), "created")
	o.sink.Emit(telemetry.Event{
		Type:       telemetry.CreativeCreation,
		RunID:      r.id,
		LineItemID: r.lineItemID,
		Size:       size.String(),
		Status:     telemetry.StatusSuccess,
		Message:    "creative created",
		Attributes: map[string]string{
			"creative_id": creativeID,
			"template":    templates.Name(d.TemplateID),
			"rule":        d.Rule,
			"targeting":   d.TargetingName,
		},
	})
	return models.CreativeOutcome{Size: size.String(), CreativeID: creativeID, TemplateID: d.TemplateID}
}

// patchHTML returns a patched copy of an uploaded HTML creative.
func (o *Orchestrator) patchHTML(asset *models.CreativeAsset, line models.LineContext) (*models.CreativeAsset, error) {
	body := o.patcher.PatchHTMLAsset(asset.Markup, line.ClickURL(), line.ImpressionTrackerURL)
	body, err := o.patcher.PatchMarkup(body)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", asset.Identifier, err)
	}
	cp := *asset
	cp.Markup = body
	return &cp, nil
}

func (o *Orchestrator) failed(r *run, size models.Size, templateID int64, err error) models.CreativeOutcome {
	r.logger.Warn("creative provisioning failed", zap.String("size", size.String()), zap.Error(err))
	o.metrics.IncrementCreativeOutcomes(size.String(), "failed")
	o.sink.Emit(telemetry.Event{
		Type:       telemetry.CreativeCreation,
		RunID:      r.id,
		LineItemID: r.lineItemID,
		Size:       size.String(),
		Status:     telemetry.StatusError,
		Message:    err.Error(),
	})
	return models.CreativeOutcome{Size: size.String(), TemplateID: templateID, Error: err.Error()}
}

func (o *Orchestrator) skipped(r *run, size models.Size, reason string) models.CreativeOutcome {
	r.logger.Info("creative skipped", zap.String("size", size.String()), zap.String("reason", reason))
	o.metrics.IncrementCreativeOutcomes(size.String(), "skipped")
	return models.CreativeOutcome{Size: size.String(), Skipped: reason}
}

// creativeName is "{order}_{file stem}_{unix millis}". Sizes served by a
// script or video use the size as the stem.
func creativeName(orderID string, asset *models.CreativeAsset, size models.Size, millis int64) string {
	stem := size.String()
	if asset != nil && asset.Identifier != "" {
		stem = strings.TrimSuffix(asset.Identifier, filepath.Ext(asset.Identifier))
	}
	return fmt.Sprintf("%s_%s_%d", orderID, stem, millis)
}
