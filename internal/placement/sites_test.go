package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandSites(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "flagship brings its sibling",
			in:   []string{"toi"},
			want: []string{"TOI", "ETIMES"},
		},
		{
			name: "sibling already present is not duplicated",
			in:   []string{"ETimes", "TOI"},
			want: []string{"ETIMES", "TOI"},
		},
		{
			name: "composite token expands to the fixed list",
			in:   []string{"All_Languages"},
			want: RegionalSites,
		},
		{
			name: "composite expansion de-duplicates explicit members",
			in:   []string{"VK", "ALL_LANGUAGES", "ET"},
			want: []string{"VK", "IAG", "ITBANGLA", "MS", "MT", "NBT", "TLG", "TML", "ET"},
		},
		{
			name: "blank tokens are dropped",
			in:   []string{" ", "nbt "},
			want: []string{"NBT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandSites(tt.in))
		})
	}
}

func TestExpandSitesNeverRetainsCompositeToken(t *testing.T) {
	for _, in := range [][]string{
		{"ALL_LANGUAGES"},
		{"all_languages", "TOI"},
		{"ALL_LANGUAGES", "ALL_LANGUAGES", "MT"},
	} {
		out := ExpandSites(in)
		assert.NotContains(t, out, SiteAllLanguages)
		for _, member := range RegionalSites {
			assert.Contains(t, out, member)
		}
	}
}

func TestPartitionByCatalog(t *testing.T) {
	parts := PartitionByCatalog([]string{"VK", "TOI", "ET", "ETIMES", "NBT"})

	assert.Equal(t, []CatalogSites{
		{Catalog: CatalogFlagship, Sites: []string{"TOI", "ETIMES"}},
		{Catalog: CatalogBusiness, Sites: []string{"ET"}},
		{Catalog: CatalogLanguages, Sites: []string{"VK", "NBT"}},
	}, parts)

	assert.Empty(t, PartitionByCatalog(nil))
}
