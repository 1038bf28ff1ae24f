package assets

import (
	"sort"

	"github.com/patrickwarner/adprovision/internal/models"
)

// Library holds the primary creative for each size of a campaign.
type Library struct {
	bySize  map[models.Size]*models.CreativeAsset
	ignored []string
}

// NewLibrary builds a library from in-memory assets. Later assets replace
// earlier ones of the same size.
func NewLibrary(assets ...*models.CreativeAsset) *Library {
	l := &Library{bySize: make(map[models.Size]*models.CreativeAsset, len(assets))}
	for _, a := range assets {
		if a != nil {
			l.bySize[a.SizeHint] = a
		}
	}
	return l
}

// Asset returns the primary creative for size.
func (l *Library) Asset(size models.Size) (*models.CreativeAsset, bool) {
	if l == nil {
		return nil, false
	}
	a, ok := l.bySize[size]
	return a, ok
}

// Companion returns the image creative stored under size. It satisfies the
// decision engine's companion lookup; markup files never serve as companions.
func (l *Library) Companion(size models.Size) (*models.CreativeAsset, bool) {
	a, ok := l.Asset(size)
	if !ok || a.Kind != models.AssetImage || !a.HasBytes() {
		return nil, false
	}
	return a, true
}

// Sizes returns every size with a creative, ordered by width then height.
func (l *Library) Sizes() []models.Size {
	if l == nil {
		return nil
	}
	out := make([]models.Size, 0, len(l.bySize))
	for s := range l.bySize {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Width != out[j].Width {
			return out[i].Width < out[j].Width
		}
		return out[i].Height < out[j].Height
	})
	return out
}

// Ignored lists files skipped because their size already had a creative.
func (l *Library) Ignored() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.ignored...)
}

// With returns a copy of l in which asset replaces the creative for its size.
func (l *Library) With(asset *models.CreativeAsset) *Library {
	out := &Library{bySize: make(map[models.Size]*models.CreativeAsset)}
	if l != nil {
		for s, a := range l.bySize {
			out.bySize[s] = a
		}
		out.ignored = append(out.ignored, l.ignored...)
	}
	if asset != nil {
		out.bySize[asset.SizeHint] = asset
	}
	return out
}
