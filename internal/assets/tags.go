package assets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/adprovision/internal/markup"
	"github.com/patrickwarner/adprovision/internal/models"
)

// TagKind is the shape of a third-party tag supplied for one size.
type TagKind string

const (
	TagJS              TagKind = "js"
	TagDoubleClick     TagKind = "doubleclick"
	TagImpressionClick TagKind = "impression_click"
)

// Tag is a per-size third-party tag. Script tags replace the size's creative
// with their markup; an impression/click pair keeps the creative and sets the
// tracker and landing page for that size only.
type Tag struct {
	Size       string  `json:"size" yaml:"size"`
	Kind       TagKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Script     string  `json:"script,omitempty" yaml:"script,omitempty"`
	Impression string  `json:"impression,omitempty" yaml:"impression,omitempty"`
	Click      string  `json:"click,omitempty" yaml:"click,omitempty"`
}

// Normalize fills in Kind when it was left empty and validates the tag.
func (t Tag) Normalize() (Tag, error) {
	size, err := models.ParseSize(t.Size)
	if err != nil {
		return t, models.NewInputError("tag.size", err.Error())
	}
	t.Size = size.String()
	t.Script = strings.TrimSpace(t.Script)

	if t.Kind == "" {
		switch {
		case t.Script != "" && markup.IsDoubleClick(t.Script):
			t.Kind = TagDoubleClick
		case t.Script != "":
			t.Kind = TagJS
		default:
			t.Kind = TagImpressionClick
		}
	}

	switch t.Kind {
	case TagJS, TagDoubleClick:
		if t.Script == "" {
			return t, models.NewInputError("tag.script", fmt.Sprintf("%s tag for %s has no script", t.Kind, t.Size))
		}
	case TagImpressionClick:
		if strings.TrimSpace(t.Impression) == "" && strings.TrimSpace(t.Click) == "" {
			return t, models.NewInputError("tag", fmt.Sprintf("impression/click tag for %s is empty", t.Size))
		}
	default:
		return t, models.NewInputError("tag.kind", fmt.Sprintf("unknown tag kind %q", t.Kind))
	}
	return t, nil
}

// ParsedSize returns the tag's size. The tag must have been normalized.
func (t Tag) ParsedSize() models.Size {
	s, _ := models.ParseSize(t.Size)
	return s
}

// IsScript reports whether the tag carries creative markup.
func (t Tag) IsScript() bool {
	return t.Kind == TagJS || t.Kind == TagDoubleClick
}

// MarkupAsset builds the creative a script tag stands for. body is the
// already patched script.
func (t Tag) MarkupAsset(body string) *models.CreativeAsset {
	return &models.CreativeAsset{
		Identifier: fmt.Sprintf("tag_%s_%s", t.Kind, t.Size),
		Kind:       models.AssetMarkup,
		SizeHint:   t.ParsedSize(),
		Flags:      models.AssetFlags{IsScripted: true},
		Markup:     body,
	}
}

// ImpressionTracker extracts the pixel URL from the impression tag and
// normalizes its cachebuster.
func (t Tag) ImpressionTracker() string {
	return markup.NormalizeTracker(markup.ExtractImpressionSrc(t.Impression))
}

// LandingPage returns the click URL with its cachebuster normalized.
func (t Tag) LandingPage() string {
	return markup.NormalizeTracker(t.Click)
}

type tagFile struct {
	Tags []Tag `yaml:"tags"`
}

// LoadTags reads and normalizes per-size tags from a YAML file of the form
// "tags: [{size, kind, script, impression, click}]".
func LoadTags(path string) ([]Tag, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tags file: %w", err)
	}
	var f tagFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse tags file %s: %w", path, err)
	}
	return NormalizeTags(f.Tags)
}

// NormalizeTags normalizes every tag. A later tag for the same size replaces
// an earlier one.
func NormalizeTags(tags []Tag) ([]Tag, error) {
	out := make([]Tag, 0, len(tags))
	index := make(map[string]int, len(tags))
	for _, t := range tags {
		n, err := t.Normalize()
		if err != nil {
			return nil, err
		}
		if i, ok := index[n.Size]; ok {
			out[i] = n
			continue
		}
		index[n.Size] = len(out)
		out = append(out, n)
	}
	return out, nil
}
