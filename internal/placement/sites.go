package placement

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Site tokens with expansion rules.
const (
	SiteAllLanguages = "ALL_LANGUAGES"
	SiteFlagship     = "TOI"
	SiteSibling      = "ETIMES"
	SiteBusiness     = "ET"
)

// RegionalSites is the fixed member list of the ALL_LANGUAGES composite token.
var RegionalSites = []string{"IAG", "ITBANGLA", "MS", "MT", "NBT", "TLG", "TML", "VK"}

// Catalog names, one per site family.
const (
	CatalogFlagship  = "TOI + ETIMES"
	CatalogBusiness  = "ET Placement/Preset"
	CatalogLanguages = "ALL LANGUAGES"
)

// normalizeToken folds a token to the canonical upper case.
func normalizeToken(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

// NormalizeTokens upper-cases, trims and de-duplicates tokens, keeping first-seen order.
// Empty tokens are dropped.
func NormalizeTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		n := normalizeToken(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ExpandSites normalizes site tokens and applies the synonym rules: the
// composite ALL_LANGUAGES token is replaced by RegionalSites, and the
// flagship site always brings in its sibling.
func ExpandSites(sites []string) []string {
	normalized := NormalizeTokens(sites)
	expanded := make([]string, 0, len(normalized)+len(RegionalSites))
	for _, s := range normalized {
		if s == SiteAllLanguages {
			expanded = append(expanded, RegionalSites...)
			continue
		}
		expanded = append(expanded, s)
	}
	expanded = NormalizeTokens(expanded)

	hasFlagship, hasSibling := false, false
	for _, s := range expanded {
		hasFlagship = hasFlagship || s == SiteFlagship
		hasSibling = hasSibling || s == SiteSibling
	}
	if hasFlagship && !hasSibling {
		expanded = append(expanded, SiteSibling)
	}
	return expanded
}

// CatalogSites is the slice of expanded site tokens searched in one catalog.
type CatalogSites struct {
	Catalog string
	Sites   []string
}

// PartitionByCatalog assigns each expanded site token to its family's catalog.
// Catalogs appear in a fixed order: flagship, business, languages.
func PartitionByCatalog(sites []string) []CatalogSites {
	var flagship, business, languages []string
	for _, s := range sites {
		switch s {
		case SiteFlagship, SiteSibling:
			flagship = append(flagship, s)
		case SiteBusiness:
			business = append(business, s)
		default:
			languages = append(languages, s)
		}
	}
	var out []CatalogSites
	if len(flagship) > 0 {
		out = append(out, CatalogSites{Catalog: CatalogFlagship, Sites: flagship})
	}
	if len(business) > 0 {
		out = append(out, CatalogSites{Catalog: CatalogBusiness, Sites: business})
	}
	if len(languages) > 0 {
		out = append(out, CatalogSites{Catalog: CatalogLanguages, Sites: languages})
	}
	return out
}
