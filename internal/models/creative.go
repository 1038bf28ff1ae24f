package models

import "strings"

// AssetKind describes what a CreativeAsset carries.
type AssetKind string

const (
	AssetImage  AssetKind = "image"
	AssetMarkup AssetKind = "markup"
	AssetNone   AssetKind = "none"
)

// AssetFlags are derived from the asset's filename or size label.
type AssetFlags struct {
	IsDoubleDensity  bool `json:"is_double_density"`   // "2x" marker: retina artwork served at half size.
	HasNoLandingPage bool `json:"has_no_landing_page"` // "nolp" marker.
	IsScripted       bool `json:"is_scripted"`         // HTML/markup file or "ai" marker.
}

// CreativeAsset is one discovered creative file or provided script payload.
// It is constructed once and read-only afterwards.
type CreativeAsset struct {
	Identifier string     `json:"identifier"` // File name or tag key.
	Kind       AssetKind  `json:"kind"`
	SizeHint   Size       `json:"size_hint"`
	Flags      AssetFlags `json:"flags"`
	// Content holds the raw bytes of image assets.
	Content []byte `json:"-"`
	// Markup holds the HTML or script body of markup assets.
	Markup string `json:"-"`
}

// HasBytes reports whether the asset carries uploadable content.
func (a *CreativeAsset) HasBytes() bool {
	return a != nil && (len(a.Content) > 0 || strings.TrimSpace(a.Markup) != "")
}

// LineType distinguishes standard banner lines from rich-media lines.
type LineType string

const (
	LineStandard  LineType = "standard"
	LineRichMedia LineType = "richmedia"
)

// DetectLineType derives the line type from a line item name.
func DetectLineType(name string) LineType {
	if strings.Contains(strings.ToUpper(name), "RICHMEDIA") {
		return LineRichMedia
	}
	return LineStandard
}

// LineContext is the campaign-level input to template decisions.
type LineContext struct {
	LineType LineType `json:"line_type"`
	// TemplateOverride is an explicit template id requested by the caller. Zero means none.
	TemplateOverride     int64  `json:"template_override,omitempty"`
	LandingPageURL       string `json:"landing_page_url,omitempty"`
	DestinationURL       string `json:"destination_url,omitempty"`
	ImpressionTrackerURL string `json:"impression_tracker_url,omitempty"`
	// ScriptTrackerPayload is a third-party tracking script appended to allow-listed templates.
	ScriptTrackerPayload string `json:"script_tracker_payload,omitempty"`
	// ScriptPayload is an inline creative script used when no asset bytes exist.
	ScriptPayload string `json:"script_payload,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	// CampaignRef is the external campaign reference (Expresso id) passed as a template variable.
	CampaignRef string `json:"campaign_ref,omitempty"`
}

// ClickURL returns the landing page, falling back to the destination URL.
func (c LineContext) ClickURL() string {
	if c.LandingPageURL != "" {
		return c.LandingPageURL
	}
	return c.DestinationURL
}

// VariableKind mirrors the typed template variable values of the ad server.
type VariableKind string

const (
	VarString VariableKind = "string"
	VarURL    VariableKind = "url"
	VarLong   VariableKind = "long"
	VarAsset  VariableKind = "asset"
)

// TemplateVariable is one named, typed payload field of a template creative.
type TemplateVariable struct {
	Name  string       `json:"name"`
	Kind  VariableKind `json:"kind"`
	Value string       `json:"value,omitempty"`
	// Asset is set for VarAsset variables.
	Asset *CreativeAsset `json:"asset,omitempty"`
}

// TemplateDecision is the outcome of the template decision engine for one size.
type TemplateDecision struct {
	TemplateID int64              `json:"template_id"`
	Rule       string             `json:"rule"` // Name of the rule that matched.
	Variables  []TemplateVariable `json:"variables"`
	// SizeOverrides lists extra sizes the creative may serve in.
	SizeOverrides []Size `json:"size_overrides,omitempty"`
	// CreativeSize is the size the creative is created with.
	CreativeSize   Size   `json:"creative_size"`
	TargetingName  string `json:"targeting_name"`
	DestinationURL string `json:"destination_url,omitempty"`
}

// Variable returns the named variable, if present.
func (d TemplateDecision) Variable(name string) (TemplateVariable, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return TemplateVariable{}, false
}
