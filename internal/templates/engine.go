package templates

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
)

// minScriptLength is the trimmed length above which a bare script payload
// is treated as a creative on its own.
const minScriptLength = 10

// Companions looks up the second banner used by two-image templates.
type Companions interface {
	Companion(size models.Size) (*models.CreativeAsset, bool)
}

// CompanionSet is a map-backed Companions.
type CompanionSet map[models.Size]*models.CreativeAsset

// Companion implements Companions.
func (c CompanionSet) Companion(size models.Size) (*models.CreativeAsset, bool) {
	a, ok := c[size]
	return a, ok && a.HasBytes()
}

type input struct {
	asset      *models.CreativeAsset
	line       models.LineContext
	size       models.Size
	companions Companions
}

func (in *input) hasBytes() bool { return in.asset.HasBytes() }

// hasImage reports whether the asset is uploadable image data rather than markup.
func (in *input) hasImage() bool { return in.hasBytes() && in.asset.Kind != models.AssetMarkup }

func (in *input) script() string { return strings.TrimSpace(in.line.ScriptPayload) }

func (in *input) flags() models.AssetFlags {
	if in.asset == nil {
		return models.AssetFlags{}
	}
	return in.asset.Flags
}

func (in *input) companion(size models.Size) (*models.CreativeAsset, bool) {
	if in.companions == nil {
		return nil, false
	}
	return in.companions.Companion(size)
}

func (in *input) richMedia() bool { return in.line.LineType == models.LineRichMedia }

// rule picks a template. Rules are evaluated in order and the first match wins.
type rule struct {
	name  string
	match func(in *input) bool
	pick  func(in *input) int64
}

func fixed(id int64) func(*input) int64 {
	return func(*input) int64 { return id }
}

var rules = []rule{
	{
		name:  "combined_banner",
		match: func(in *input) bool { return in.size == sizeCombined && in.hasImage() },
		pick:  fixed(Expandable),
	},
	{
		name:  "explicit_override",
		match: func(in *input) bool { return in.line.TemplateOverride != 0 },
		pick: func(in *input) int64 {
			if in.line.TemplateOverride == NoLandingPage && in.flags().IsDoubleDensity {
				return NoDestination
			}
			return in.line.TemplateOverride
		},
	},
	{
		name: "script_only",
		match: func(in *input) bool {
			return !in.hasBytes() && len(in.script()) > minScriptLength &&
				in.line.LandingPageURL == "" && in.line.ImpressionTrackerURL == ""
		},
		pick: fixed(ScriptAI),
	},
	{
		name: "companion_size",
		match: func(in *input) bool {
			if !in.hasImage() {
				return false
			}
			return in.size == sizeMobileLead || (in.richMedia() && (in.size == sizeMrec || in.size == sizeTower))
		},
		pick: func(in *input) int64 {
			switch in.size {
			case sizeMobileLead:
				return Special320x100
			case sizeTower:
				return RichMedia300x600
			default:
				return Expandable
			}
		},
	},
	{
		name:  "scripted_asset",
		match: func(in *input) bool { return in.flags().IsScripted },
		pick: func(in *input) int64 {
			if in.asset.Kind == models.AssetMarkup && strings.TrimSpace(in.asset.Markup) != "" {
				return ScriptAI
			}
			return Standard
		},
	},
	{
		name:  "no_landing_marker",
		match: func(in *input) bool { return in.flags().HasNoLandingPage },
		pick:  fixed(NoLandingPage),
	},
	{
		name:  "video",
		match: func(in *input) bool { return strings.TrimSpace(in.line.VideoURL) != "" },
		pick:  fixed(InBannerVideo),
	},
	{
		name:  "double_density",
		match: func(in *input) bool { return in.flags().IsDoubleDensity },
		pick: func(in *input) int64 {
			if in.line.ClickURL() == "" {
				return NoDestination
			}
			return DoubleDensity
		},
	},
	{
		name:  "default",
		match: func(*input) bool { return true },
		pick: func(in *input) int64 {
			if in.line.ClickURL() == "" {
				return NoLandingPage
			}
			return Standard
		},
	},
}

// RuleNames lists the decision rules in evaluation order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// Engine evaluates the ordered decision rules for one creative size.
type Engine struct {
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewEngine builds an Engine.
func NewEngine(logger *zap.Logger, metrics observability.MetricsRegistry) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Engine{logger: logger, metrics: metrics}
}

// Decide selects the template for size and builds its variables. asset may
// be nil when the size is served by a script payload or video.
func (e *Engine) Decide(asset *models.CreativeAsset, line models.LineContext, size models.Size, companions Companions) (models.TemplateDecision, error) {
	in := &input{asset: asset, line: line, size: size, companions: companions}

	if !in.hasBytes() && in.script() == "" && strings.TrimSpace(line.VideoURL) == "" {
		return models.TemplateDecision{}, fmt.Errorf("size %s: %w", size, models.ErrNoCreative)
	}

	for _, r := range rules {
		if !r.match(in) {
			continue
		}
		id := r.pick(in)
		d, err := build(id, in)
		if err != nil {
			e.logger.Warn("template decision failed",
				zap.String("size", size.String()),
				zap.String("rule", r.name),
				zap.Int64("template_id", id),
				zap.Error(err),
			)
			return models.TemplateDecision{}, err
		}
		d.Rule = r.name
		e.metrics.IncrementTemplateDecisions(Name(id), r.name)
		e.logger.Debug("template decided",
			zap.String("size", size.String()),
			zap.String("rule", r.name),
			zap.Int64("template_id", id),
			zap.String("targeting", d.TargetingName),
		)
		return d, nil
	}
	// unreachable: the default rule always matches
	return models.TemplateDecision{}, fmt.Errorf("size %s: no template rule matched", size)
}

// build assembles the decision for a chosen template.
func build(id int64, in *input) (models.TemplateDecision, error) {
	d := models.TemplateDecision{
		TemplateID:    id,
		CreativeSize:  in.size,
		TargetingName: TargetingName(in.size, in.line.LineType),
		SizeOverrides: SizeOverrides(in.size),
	}
	click := in.line.ClickURL()
	vars := &varList{}

	switch id {
	case Expandable, RichMedia300x600, Special320x100:
		if err := buildTwoBanner(id, in, vars, &d); err != nil {
			return d, err
		}
		d.DestinationURL = click

	case ScriptAI:
		code := in.script()
		if in.asset != nil && in.asset.Kind == models.AssetMarkup && strings.TrimSpace(in.asset.Markup) != "" {
			code = in.asset.Markup
		}
		vars.str("ScriptCode", code)
		vars.str("ExpressoID", in.line.CampaignRef)
		d.DestinationURL = strings.TrimSpace(in.line.DestinationURL)

	case InBannerVideo:
		if click == "" {
			return d, models.NewInputError("landing_page", "in-banner video requires a landing page or destination URL")
		}
		d.CreativeSize = sizeMrec
		d.TargetingName = TargetingName(sizeMrec, in.line.LineType)
		d.SizeOverrides = nil
		vars.str("ExpressoID", in.line.CampaignRef)
		vars.url("LandingPage", click)
		vars.url("VideoUrl", strings.TrimSpace(in.line.VideoURL))
		vars.str("AutoPlay", "Yes")
		d.DestinationURL = click

	case NoLandingPage, NoDestination:
		if !in.hasBytes() {
			return d, models.NewInputError("asset", fmt.Sprintf("template %s requires image data for %s", Name(id), in.size))
		}
		vars.banner(in.asset, in.size)
		vars.str("ExpressoID", in.line.CampaignRef)

	default:
		switch {
		case in.hasBytes():
			vars.banner(in.asset, in.size)
		case in.script() != "":
			vars.str("ScriptCode", in.script())
		default:
			return d, fmt.Errorf("size %s: %w", in.size, models.ErrNoCreative)
		}
		vars.str("ExpressoID", in.line.CampaignRef)
		if click != "" {
			vars.url("LandingPage", click)
		}
		d.DestinationURL = click
	}

	if tracker := strings.TrimSpace(in.line.ImpressionTrackerURL); tracker != "" && !noImpressionTracker[id] {
		vars.url("ImpressionTracker", tracker)
	}
	if tag := strings.TrimSpace(in.line.ScriptTrackerPayload); tag != "" && acceptsTrackerScript[id] {
		vars.str("ScriptCode", tag)
	}
	if noDestinationURL[id] {
		d.DestinationURL = ""
	}

	d.Variables = vars.list
	return d, nil
}

// buildTwoBanner fills the small/big banner templates. The combined 600x250
// banner is served as a 300x250 creative whose small banner is the 300x250
// companion.
func buildTwoBanner(id int64, in *input, vars *varList, d *models.TemplateDecision) error {
	if !in.hasBytes() {
		return models.NewInputError("asset", fmt.Sprintf("template %s requires image data for %s", Name(id), in.size))
	}

	small, big := in.asset, in.asset
	combined := id == Expandable && in.size == sizeCombined
	if combined {
		if c, ok := in.companion(sizeMrec); ok {
			small = c
		}
		d.CreativeSize = sizeMrec
		d.TargetingName = TargetingMrecExpando
		d.SizeOverrides = nil
	} else if c, ok := in.companion(companionSizes[id]); ok {
		big = c
	}

	vars.asset("SmallBanner", small)
	vars.asset("BigBanner", big)
	vars.str("AutoExpand", "Yes")
	vars.str("CookieName", "expndo")
	vars.long("CookieTime", 1)
	vars.str("ExpressoID", in.line.CampaignRef)
	vars.url("LandingPage", in.line.ClickURL())
	if !combined {
		vars.long("BigCreativeViewTime", 10000)
	}
	return nil
}

// varList collects template variables. A name is set at most once.
type varList struct {
	list []models.TemplateVariable
}

func (v *varList) add(tv models.TemplateVariable) {
	for _, existing := range v.list {
		if existing.Name == tv.Name {
			return
		}
	}
	v.list = append(v.list, tv)
}

func (v *varList) str(name, value string) {
	v.add(models.TemplateVariable{Name: name, Kind: models.VarString, Value: value})
}

func (v *varList) url(name, value string) {
	v.add(models.TemplateVariable{Name: name, Kind: models.VarURL, Value: value})
}

func (v *varList) long(name string, value int64) {
	v.add(models.TemplateVariable{Name: name, Kind: models.VarLong, Value: strconv.FormatInt(value, 10)})
}

func (v *varList) asset(name string, a *models.CreativeAsset) {
	v.add(models.TemplateVariable{Name: name, Kind: models.VarAsset, Asset: a})
}

func (v *varList) banner(a *models.CreativeAsset, size models.Size) {
	v.asset("Banner", a)
	v.long("CreativeWidth", int64(size.Width))
	v.long("CreativeHeight", int64(size.Height))
}
