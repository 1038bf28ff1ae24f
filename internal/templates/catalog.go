// Package templates decides which creative template serves a size and
// assembles the template's typed variables.
package templates

import (
	"strconv"

	"github.com/patrickwarner/adprovision/internal/models"
)

// Ad server creative template ids.
const (
	Standard         int64 = 12330939
	DoubleDensity    int64 = 12459443
	ScriptAI         int64 = 12435443
	NoLandingPage    int64 = 12399020
	Expandable       int64 = 12460223
	InBannerVideo    int64 = 12344286
	Special320x100   int64 = 12363950
	RichMedia300x600 int64 = 12443458
	NoDestination    int64 = 12473441
)

var templateNames = map[int64]string{
	Standard:         "standard",
	DoubleDensity:    "double_density",
	ScriptAI:         "script_ai",
	NoLandingPage:    "no_landing_page",
	Expandable:       "expandable",
	InBannerVideo:    "in_banner_video",
	Special320x100:   "special_320x100",
	RichMedia300x600: "richmedia_300x600",
	NoDestination:    "no_destination",
}

// Name returns a readable label for a template id. Unknown ids render as the number.
func Name(id int64) string {
	if n, ok := templateNames[id]; ok {
		return n
	}
	return strconv.FormatInt(id, 10)
}

// Known reports whether id is a catalogued template.
func Known(id int64) bool {
	_, ok := templateNames[id]
	return ok
}

// Templates that never carry the ImpressionTracker variable.
var noImpressionTracker = map[int64]bool{
	ScriptAI:       true,
	NoLandingPage:  true,
	NoDestination:  true,
	Special320x100: true,
	Expandable:     true,
}

// Templates that accept the third-party tracking script as ScriptCode.
var acceptsTrackerScript = map[int64]bool{
	Standard:       true,
	DoubleDensity:  true,
	NoLandingPage:  true,
	Expandable:     true,
	InBannerVideo:  true,
	Special320x100: true,
}

// Templates that never set a creative destination URL.
var noDestinationURL = map[int64]bool{
	NoLandingPage: true,
	NoDestination: true,
}

// companionSizes lists the second banner each two-image template looks for.
var companionSizes = map[int64]models.Size{
	Expandable:       {Width: 600, Height: 250},
	RichMedia300x600: {Width: 450, Height: 600},
	Special320x100:   {Width: 320, Height: 250},
}

var (
	sizeCombined   = models.Size{Width: 600, Height: 250}
	sizeMrec       = models.Size{Width: 300, Height: 250}
	sizeTower      = models.Size{Width: 300, Height: 600}
	sizeMobileLead = models.Size{Width: 320, Height: 100}
)

// sizeOverrides lists the extra sizes a creative may serve in.
var sizeOverrides = map[models.Size][]models.Size{
	{Width: 1260, Height: 570}: {{Width: 728, Height: 500}, {Width: 1320, Height: 570}},
	{Width: 980, Height: 200}:  {{Width: 728, Height: 90}},
	sizeMobileLead:             {{Width: 320, Height: 50}},
}

// SizeOverrides returns the extra serving sizes for a creative size.
func SizeOverrides(size models.Size) []models.Size {
	return append([]models.Size(nil), sizeOverrides[size]...)
}

// Targeting labels shared with the line item's creative targetings.
const (
	TargetingMobileLead  = "Mweb_PPD"
	TargetingMrecExpand  = "Mrec_ex"
	TargetingTowerExpand = "Tower_ex"
	TargetingMrecExpando = "Mrec Expando"
)

// TargetingName returns the creative targeting label for a size on a line type.
func TargetingName(size models.Size, lineType models.LineType) string {
	switch {
	case size == sizeMobileLead:
		return TargetingMobileLead
	case size == sizeMrec && lineType == models.LineRichMedia:
		return TargetingMrecExpand
	case size == sizeTower && lineType == models.LineRichMedia:
		return TargetingTowerExpand
	default:
		return size.String()
	}
}
