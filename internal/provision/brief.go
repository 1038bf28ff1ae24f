// Package provision runs a campaign brief end to end: placement resolution,
// line item creation under a unique name, and one creative per size.
package provision

import (
	"fmt"
	"strings"

	"github.com/patrickwarner/adprovision/internal/assets"
	"github.com/patrickwarner/adprovision/internal/markup"
	"github.com/patrickwarner/adprovision/internal/models"
)

// Brief is a campaign provisioning request.
type Brief struct {
	Name        string                 `json:"name" yaml:"name"`
	OrderID     string                 `json:"order_id,omitempty" yaml:"order_id,omitempty"`
	CampaignRef string                 `json:"campaign_ref,omitempty" yaml:"campaign_ref,omitempty"`
	Targeting   models.TargetingFilter `json:"targeting" yaml:"targeting"`
	Sizes       []string               `json:"sizes" yaml:"sizes"`
	// LineType defaults to the type detected from Name.
	LineType  models.LineType `json:"line_type,omitempty" yaml:"line_type,omitempty"`
	Locations []string        `json:"locations,omitempty" yaml:"locations,omitempty"`

	StartDate    string  `json:"start_date,omitempty" yaml:"start_date,omitempty"` // 2006-01-02
	EndDate      string  `json:"end_date,omitempty" yaml:"end_date,omitempty"`     // 2006-01-02 15:04
	Impressions  int64   `json:"impressions,omitempty" yaml:"impressions,omitempty"`
	CPM          float64 `json:"cpm,omitempty" yaml:"cpm,omitempty"`
	Currency     string  `json:"currency,omitempty" yaml:"currency,omitempty"`
	FrequencyCap int     `json:"frequency_cap,omitempty" yaml:"frequency_cap,omitempty"`

	TemplateOverride  int64  `json:"template_override,omitempty" yaml:"template_override,omitempty"`
	LandingPageURL    string `json:"landing_page_url,omitempty" yaml:"landing_page_url,omitempty"`
	DestinationURL    string `json:"destination_url,omitempty" yaml:"destination_url,omitempty"`
	ImpressionTracker string `json:"impression_tracker,omitempty" yaml:"impression_tracker,omitempty"`
	ScriptTracker     string `json:"script_tracker,omitempty" yaml:"script_tracker,omitempty"`
	ScriptPayload     string `json:"script_payload,omitempty" yaml:"script_payload,omitempty"`
	VideoURL          string `json:"video_url,omitempty" yaml:"video_url,omitempty"`

	Tags []assets.Tag `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Validate checks the fields every run needs. It never contacts a remote system.
func (b Brief) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return models.NewInputError("name", "line item name is required")
	}
	if len(nonEmpty(b.Targeting.Sites)) == 0 {
		return models.NewInputError("sites", "at least one site is required")
	}
	if len(nonEmpty(b.Targeting.Platforms)) == 0 {
		return models.NewInputError("platforms", "at least one platform is required")
	}
	if len(nonEmpty(b.Sizes)) == 0 {
		return models.NewInputError("sizes", "at least one creative size is required")
	}
	for _, s := range nonEmpty(b.Sizes) {
		if _, err := models.ParseSize(s); err != nil {
			return models.NewInputError("sizes", err.Error())
		}
	}
	if b.LineType != "" && b.LineType != models.LineStandard && b.LineType != models.LineRichMedia {
		return models.NewInputError("line_type", fmt.Sprintf("unknown line type %q", b.LineType))
	}
	if b.CPM < 0 {
		return models.NewInputError("cpm", "must not be negative")
	}
	if b.Impressions < 0 {
		return models.NewInputError("impressions", "must not be negative")
	}
	if strings.TrimSpace(b.VideoURL) != "" &&
		strings.TrimSpace(b.LandingPageURL) == "" && strings.TrimSpace(b.DestinationURL) == "" {
		return models.NewInputError("video_url", "in-banner video requires a landing page or destination URL")
	}
	return nil
}

// lineType returns the explicit line type or the one detected from the name.
func (b Brief) lineType() models.LineType {
	if b.LineType != "" {
		return b.LineType
	}
	return models.DetectLineType(b.Name)
}

// lineContext builds the campaign level decision context. Trackers are
// normalized to the ad server's cachebuster macro.
func (b Brief) lineContext() models.LineContext {
	return models.LineContext{
		LineType:             b.lineType(),
		TemplateOverride:     b.TemplateOverride,
		LandingPageURL:       strings.TrimSpace(b.LandingPageURL),
		DestinationURL:       strings.TrimSpace(b.DestinationURL),
		ImpressionTrackerURL: markup.NormalizeTracker(b.ImpressionTracker),
		ScriptTrackerPayload: markup.WrapHidden(b.ScriptTracker),
		ScriptPayload:        b.ScriptPayload,
		VideoURL:             strings.TrimSpace(b.VideoURL),
		CampaignRef:          strings.TrimSpace(b.CampaignRef),
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
