package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/models"
)

var (
	imageExtensions = map[string]bool{
		".png":  true,
		".jpeg": true,
		".jpg":  true,
		".webp": true,
		".gif":  true,
	}
	markupExtensions = map[string]bool{
		".html": true,
		".htm":  true,
	}

	filenameSize = regexp.MustCompile(`(?i)(\d+)x(\d+)`)
)

// Filename markers.
const (
	markerScripted      = "ai"
	markerDoubleDensity = "2x"
	markerNoLanding     = "nolp"
)

// Classify derives an asset's size, kind and flags from its file name.
// The returned asset carries no content. ok is false for files that are not
// creatives: unknown extensions or names without a WxH size.
func Classify(name string) (asset *models.CreativeAsset, ok bool) {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))

	var kind models.AssetKind
	switch {
	case imageExtensions[ext]:
		kind = models.AssetImage
	case markupExtensions[ext]:
		kind = models.AssetMarkup
	default:
		return nil, false
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	m := filenameSize.FindStringSubmatch(stem)
	if m == nil {
		return nil, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])

	flags := markerFlags(stem)
	if kind == models.AssetMarkup {
		flags.IsScripted = true
	}

	return &models.CreativeAsset{
		Identifier: base,
		Kind:       kind,
		SizeHint:   models.Size{Width: w, Height: h},
		Flags:      flags,
	}, true
}

// LabelFlags reads the "2x" and "nolp" markers of a size label such as
// "300x250_nolp".
func LabelFlags(label string) models.AssetFlags {
	f := markerFlags(label)
	return models.AssetFlags{IsDoubleDensity: f.IsDoubleDensity, HasNoLandingPage: f.HasNoLandingPage}
}

func markerFlags(stem string) models.AssetFlags {
	var flags models.AssetFlags
	for _, tok := range tokens(stem) {
		switch tok {
		case markerScripted:
			flags.IsScripted = true
		case markerDoubleDensity:
			flags.IsDoubleDensity = true
		case markerNoLanding:
			flags.HasNoLandingPage = true
		}
	}
	return flags
}

// tokens splits a file stem on anything that is not a letter or digit.
// Markers only count as whole tokens, so "mail" never reads as "ai".
func tokens(stem string) []string {
	return strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Discover lists store and loads one primary asset per size. Files that are
// not creatives are ignored; unreadable files are logged and skipped.
func Discover(ctx context.Context, store Store, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover creatives: %w", err)
	}

	lib := NewLibrary()
	for _, name := range names {
		asset, ok := Classify(name)
		if !ok {
			logger.Debug("ignoring non-creative file", zap.String("file", name))
			continue
		}
		if existing, taken := lib.bySize[asset.SizeHint]; taken {
			logger.Info("size already has a creative, ignoring file",
				zap.String("size", asset.SizeHint.String()),
				zap.String("kept", existing.Identifier),
				zap.String("ignored", name),
			)
			lib.ignored = append(lib.ignored, name)
			continue
		}

		b, err := store.Read(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("failed to read creative", zap.String("file", name), zap.Error(err))
			continue
		}
		if asset.Kind == models.AssetMarkup {
			asset.Markup = string(b)
		} else {
			asset.Content = b
		}
		lib.bySize[asset.SizeHint] = asset
	}

	logger.Info("creatives discovered",
		zap.Int("files", len(names)),
		zap.Int("sizes", len(lib.bySize)),
		zap.Strings("ignored", lib.ignored),
	)
	return lib, nil
}
