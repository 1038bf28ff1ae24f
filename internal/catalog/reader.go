// Package catalog loads inventory catalogs: tabular sources of
// {site, platform, section, ad type, placement id} rows keyed by catalog name.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/models"
)

// Source returns the raw cells of a named catalog, header row first.
// Implementations must wrap models.ErrCatalogUnavailable when the catalog
// cannot be opened.
type Source interface {
	Rows(ctx context.Context, ref string) ([][]string, error)
}

// Reader turns raw catalog cells into validated CatalogRows.
type Reader struct {
	source Source
	logger *zap.Logger
}

// NewReader returns a Reader over src.
func NewReader(src Source, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{source: src, logger: logger}
}

// columns holds the index of each recognised column, -1 when absent.
type columns struct {
	site, platform, adType, section, placement int
}

// LoadCatalog reads the named catalog. Short rows are padded with empty
// cells and rows without a placement id are skipped. Failures to open the
// catalog are returned as-is without retry.
func (r *Reader) LoadCatalog(ctx context.Context, ref string) ([]models.CatalogRow, error) {
	raw, err := r.source.Rows(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("catalog %q has no header: %w", ref, models.ErrCatalogUnavailable)
	}

	headers := NormalizeHeaders(raw[0])
	cols := mapColumns(headers)
	if cols.placement < 0 {
		return nil, fmt.Errorf("catalog %q has no placement column: %w", ref, models.ErrCatalogUnavailable)
	}

	rows := make([]models.CatalogRow, 0, len(raw)-1)
	skipped := 0
	for _, cells := range raw[1:] {
		if len(cells) < len(headers) {
			padded := make([]string, len(headers))
			copy(padded, cells)
			cells = padded
		}
		row := models.CatalogRow{
			Site:        cell(cells, cols.site),
			Platform:    cell(cells, cols.platform),
			Section:     cell(cells, cols.section),
			AdType:      cell(cells, cols.adType),
			PlacementID: cell(cells, cols.placement),
		}
		if row.PlacementID == "" {
			skipped++
			continue
		}
		rows = append(rows, row)
	}

	r.logger.Debug("catalog loaded",
		zap.String("catalog", ref),
		zap.Int("rows", len(rows)),
		zap.Int("skipped", skipped),
	)
	return rows, nil
}

// NormalizeHeaders trims header names, names blank headers by position and
// suffixes repeated headers with an ordinal starting at 1.
func NormalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("empty_col_%d", i)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 0
		}
		out[i] = h
	}
	return out
}

// mapColumns locates each well-known column by name containment. A later
// header containing the same name takes precedence.
func mapColumns(headers []string) columns {
	cols := columns{site: -1, platform: -1, adType: -1, section: -1, placement: -1}
	for i, h := range headers {
		u := strings.ToUpper(h)
		switch {
		case strings.Contains(u, "SITE"):
			cols.site = i
		case strings.Contains(u, "PLATFORM"):
			cols.platform = i
		case strings.Contains(u, "AD TYPE") || strings.Contains(u, "ADTYPE"):
			cols.adType = i
		case strings.Contains(u, "SECTION"):
			cols.section = i
		case strings.Contains(u, "PLACEMENT"):
			cols.placement = i
		}
	}
	return cols
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// StaticSource serves catalogs from memory. Missing catalogs are unavailable.
type StaticSource map[string][][]string

// Rows implements Source.
func (s StaticSource) Rows(_ context.Context, ref string) ([][]string, error) {
	rows, ok := s[ref]
	if !ok {
		return nil, fmt.Errorf("catalog %q: %w", ref, models.ErrCatalogUnavailable)
	}
	return rows, nil
}
