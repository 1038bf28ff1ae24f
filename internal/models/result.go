package models

import "time"

// Provisioning phases used as keys in ProvisioningResult.Timings.
const (
	PhasePlacements = "placements"
	PhaseGeo        = "geo"
	PhaseLineItem   = "line_item"
	PhaseCreatives  = "creatives"
	PhaseTotal      = "total"
)

// CreativeOutcome is the result of provisioning one size.
type CreativeOutcome struct {
	Size       string `json:"size"`
	CreativeID string `json:"creative_id,omitempty"`
	TemplateID int64  `json:"template_id,omitempty"`
	Error      string `json:"error,omitempty"`
	// Skipped is set when the size was not provisioned because another
	// path of the same run already produced its creative.
	Skipped string `json:"skipped,omitempty"`
}

// ProvisioningResult is the externally visible outcome of one provisioning run.
// A result with Degraded set means the line item exists but one or more sizes
// failed; callers must inspect FailedSizes.
type ProvisioningResult struct {
	RunID         string `json:"run_id"`
	LineItemID    string `json:"line_item_id"`
	RequestedName string `json:"requested_name"`
	// LineItemName is the name actually used, which differs from RequestedName
	// whenever the naming protocol had to disambiguate.
	LineItemName     string                   `json:"line_item_name"`
	Creatives        []CreativeOutcome        `json:"creatives"`
	FailedSizes      []string                 `json:"failed_sizes,omitempty"`
	InvalidLocations []string                 `json:"invalid_locations,omitempty"`
	Degraded         bool                     `json:"degraded"`
	Timings          map[string]time.Duration `json:"timings"`
}

// CreativeIDs returns the ids of every successfully created creative.
func (r *ProvisioningResult) CreativeIDs() []string {
	var ids []string
	for _, c := range r.Creatives {
		if c.CreativeID != "" {
			ids = append(ids, c.CreativeID)
		}
	}
	return ids
}
