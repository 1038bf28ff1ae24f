package placement

import (
	"strings"

	"github.com/patrickwarner/adprovision/internal/models"
)

// Criteria is the fully normalized predicate set for one requested size.
// All values are upper case.
type Criteria struct {
	Platforms []string
	AdTypes   []string
	Sections  []string
}

// containsAny reports whether any needle is a substring of haystack.
// Both sides are expected in canonical case.
func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// SiteMatches reports whether any site token is contained in the row's site field.
func SiteMatches(row models.CatalogRow, sites []string) bool {
	return containsAny(normalizeToken(row.Site), sites)
}

// PlatformMatches reports whether any platform is a member of the row's
// comma separated platform list. Membership is exact after trimming.
func PlatformMatches(row models.CatalogRow, platforms []string) bool {
	if len(platforms) == 0 {
		return false
	}
	for _, p := range strings.Split(normalizeToken(row.Platform), ",") {
		p = strings.TrimSpace(p)
		for _, want := range platforms {
			if p == want {
				return true
			}
		}
	}
	return false
}

// SectionMatches reports whether any configured section is contained in the row's section.
func SectionMatches(row models.CatalogRow, sections []string) bool {
	return containsAny(normalizeToken(row.Section), sections)
}

// AdTypeMatches reports whether any configured ad type is contained in the row's ad type.
func AdTypeMatches(row models.CatalogRow, adTypes []string) bool {
	return containsAny(normalizeToken(row.AdType), adTypes)
}

// Matches is the conjunction of all four predicates.
func Matches(row models.CatalogRow, sites []string, c Criteria) bool {
	return row.PlacementID != "" &&
		SiteMatches(row, sites) &&
		PlatformMatches(row, c.Platforms) &&
		SectionMatches(row, c.Sections) &&
		AdTypeMatches(row, c.AdTypes)
}

// intersect returns the members of a that are also in b, in a's order.
func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
