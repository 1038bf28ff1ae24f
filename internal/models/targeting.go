package models

import (
	"encoding/json"
	"sort"
)

// TargetingFilter holds the abstract inventory criteria from a campaign brief.
// Values are case-insensitive tokens; the placement resolver normalizes and
// expands them before matching against catalog rows. A filter is never mutated
// by a resolve call.
type TargetingFilter struct {
	Sites     []string `json:"sites" yaml:"sites"`         // Site tokens, e.g. "TOI" or the composite "ALL_LANGUAGES".
	Platforms []string `json:"platforms" yaml:"platforms"` // Platform tokens such as "WEB", "MWEB", "AMP".
	// AdTypes and Sections, when set, replace the per-size preset lists.
	AdTypes  []string `json:"ad_types,omitempty" yaml:"ad_types,omitempty"`
	Sections []string `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// CatalogRow is a single inventory record from a placement catalog.
// Rows without a PlacementID are invalid and never produced by the catalog reader.
type CatalogRow struct {
	Site        string `json:"site"`
	Platform    string `json:"platform"` // Comma separated list, e.g. "WEB, MWEB".
	Section     string `json:"section"`
	AdType      string `json:"ad_type"`
	PlacementID string `json:"placement_id"`
}

// PlacementGroup is the set of placements that serve one canonical size key.
// Several requested sizes may alias onto the same key (for example a narrow
// banner variant sharing placements with its parent size); OriginalSizes
// records every requested size the group stands for.
type PlacementGroup struct {
	Key           string
	PlacementIDs  map[string]struct{}
	OriginalSizes map[string]struct{}
}

// NewPlacementGroup returns an empty group for key.
func NewPlacementGroup(key string) *PlacementGroup {
	return &PlacementGroup{
		Key:           key,
		PlacementIDs:  make(map[string]struct{}),
		OriginalSizes: make(map[string]struct{}),
	}
}

// AddIDs unions ids into the group.
func (g *PlacementGroup) AddIDs(ids ...string) {
	for _, id := range ids {
		g.PlacementIDs[id] = struct{}{}
	}
}

// AddOriginalSize records that a requested size maps onto this group.
func (g *PlacementGroup) AddOriginalSize(sizes ...string) {
	for _, s := range sizes {
		g.OriginalSizes[s] = struct{}{}
	}
}

// Merge unions other into g. Keys are expected to match.
func (g *PlacementGroup) Merge(other *PlacementGroup) {
	for id := range other.PlacementIDs {
		g.PlacementIDs[id] = struct{}{}
	}
	for s := range other.OriginalSizes {
		g.OriginalSizes[s] = struct{}{}
	}
}

// IDs returns the placement ids in sorted order.
func (g *PlacementGroup) IDs() []string {
	return sortedKeys(g.PlacementIDs)
}

// Sizes returns the original requested sizes in sorted order.
func (g *PlacementGroup) Sizes() []string {
	return sortedKeys(g.OriginalSizes)
}

// HasOriginalSize reports whether size was requested under this group.
func (g *PlacementGroup) HasOriginalSize(size string) bool {
	_, ok := g.OriginalSizes[size]
	return ok
}

// MarshalJSON renders the sets as sorted arrays.
func (g *PlacementGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key           string   `json:"key"`
		PlacementIDs  []string `json:"placement_ids"`
		OriginalSizes []string `json:"original_sizes"`
	}{g.Key, g.IDs(), g.Sizes()})
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
