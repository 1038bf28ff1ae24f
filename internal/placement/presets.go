package placement

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/adprovision/internal/models"
)

// SizeRule configures how catalog rows are matched for one creative size.
type SizeRule struct {
	AdTypes  []string `yaml:"ad_types" json:"ad_types"`
	Sections []string `yaml:"sections" json:"sections"`
	// Platforms lists the platforms a rich-media size supports. It is
	// intersected with the caller's platforms; an empty list never matches.
	Platforms []string `yaml:"platforms,omitempty" json:"platforms,omitempty"`
}

// Presets holds the size rules for each line type.
type Presets struct {
	Standard  map[string]SizeRule `yaml:"standard" json:"standard"`
	RichMedia map[string]SizeRule `yaml:"rich_media" json:"rich_media"`
}

var defaultSections = []string{"ROS", "HP", "HOME"}

// AvailableSizes lists every creative size the provisioning flow recognises.
var AvailableSizes = []string{
	"300x250", "320x50", "125x600", "300x600", "728x90", "980x200",
	"320x480", "1260x570", "728x500", "1320x570", "600x250", "320x100",
}

// placementAliases maps presented sizes onto a shared placement key.
var placementAliases = map[string]string{
	"320x100": "320x50",
}

// fixedPlatforms pins the platform match of a placement key regardless of
// the caller's platforms or line type.
var fixedPlatforms = map[string][]string{
	"1260x570": {"WEB"},
	"320x480":  {"AMP", "MWEB"},
}

// PlacementKey returns the canonical placement key for a requested size.
func PlacementKey(size string) string {
	if alias, ok := placementAliases[size]; ok {
		return alias
	}
	return size
}

// IsAvailableSize reports whether size is one of AvailableSizes.
func IsAvailableSize(size string) bool {
	for _, s := range AvailableSizes {
		if s == size {
			return true
		}
	}
	return false
}

// DefaultPresets returns the built-in size rules.
func DefaultPresets() Presets {
	return Presets{
		Standard: map[string]SizeRule{
			"300x250":  {AdTypes: []string{"MREC_ALL", "MREC", "MREC_1", "MREC_2", "MREC_3", "MREC_4", "MREC_5", "BTF MREC"}, Sections: defaultSections},
			"320x50":   {AdTypes: []string{"BOTTOMOVERLAY", "BOTTOM OVERLAY"}, Sections: defaultSections},
			"300x600":  {AdTypes: []string{"FLYINGCARPET", "FLYING_CARPET", "TOWER"}, Sections: defaultSections},
			"728x90":   {AdTypes: []string{"LEADERBOARD"}, Sections: defaultSections},
			"980x200":  {AdTypes: []string{"LEADERBOARD"}, Sections: []string{"ROS"}},
			"320x480":  {AdTypes: []string{"INTERSTITIAL"}, Sections: defaultSections},
			"1260x570": {AdTypes: []string{"INTERSTITIAL"}, Sections: defaultSections},
			"320x100":  {AdTypes: []string{"SLUG1", "SLUG2", "SLUG3", "SLUG4", "SLUG5"}, Sections: defaultSections},
		},
		RichMedia: map[string]SizeRule{
			"300x250": {AdTypes: []string{"MREC_1"}, Sections: defaultSections, Platforms: []string{"WEB"}},
			"320x100": {AdTypes: []string{"TOPBANNER"}, Sections: defaultSections, Platforms: []string{"MWEB"}},
			"300x600": {AdTypes: []string{"FLYINGCARPET", "FLYING_CARPET", "TOWER"}, Sections: defaultSections, Platforms: []string{"WEB", "MWEB", "AMP"}},
			"728x90":  {AdTypes: []string{"LEADERBOARD"}, Sections: defaultSections, Platforms: []string{"WEB", "MWEB", "AMP"}},
			"320x50":  {AdTypes: []string{"BOTTOMOVERLAY", "BOTTOM OVERLAY"}, Sections: defaultSections},
			"320x480": {AdTypes: []string{"INTERSTITIAL"}, Sections: defaultSections},
		},
	}
}

// Rules returns the size rules for a line type.
func (p Presets) Rules(lineType models.LineType) map[string]SizeRule {
	if lineType == models.LineRichMedia {
		return p.RichMedia
	}
	return p.Standard
}

// Rule looks up the rule for size under lineType.
func (p Presets) Rule(lineType models.LineType, size string) (SizeRule, bool) {
	r, ok := p.Rules(lineType)[size]
	return r, ok
}

// LoadPresets reads a YAML presets file and overlays it on the defaults.
// Sizes present in the file replace the built-in rule for that size.
func LoadPresets(path string) (Presets, error) {
	presets := DefaultPresets()
	if path == "" {
		return presets, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return presets, fmt.Errorf("read presets: %w", err)
	}
	var file Presets
	if err := yaml.Unmarshal(data, &file); err != nil {
		return presets, fmt.Errorf("parse presets %s: %w", path, err)
	}
	for size, rule := range file.Standard {
		if err := checkPresetSize(size); err != nil {
			return presets, fmt.Errorf("presets %s: %w", path, err)
		}
		presets.Standard[size] = rule
	}
	for size, rule := range file.RichMedia {
		if err := checkPresetSize(size); err != nil {
			return presets, fmt.Errorf("presets %s: %w", path, err)
		}
		presets.RichMedia[size] = rule
	}
	return presets, nil
}

func checkPresetSize(size string) error {
	if _, err := models.ParseSize(size); err != nil {
		return err
	}
	if !IsAvailableSize(size) {
		return fmt.Errorf("size %s is not a known creative size", size)
	}
	return nil
}
