package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickwarner/adprovision/internal/models"
)

// DirSource reads catalogs exported as CSV files from a directory.
// The catalog "ET Placement/Preset" is stored as "ET Placement_Preset.csv".
type DirSource struct {
	Dir string
}

// FileName maps a catalog name to its file name inside the directory.
func FileName(ref string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(ref) + ".csv"
}

// Rows implements Source.
func (s DirSource) Rows(ctx context.Context, ref string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Dir, FileName(ref)))
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %v: %w", ref, err, models.ErrCatalogUnavailable)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %v: %w", ref, err, models.ErrCatalogUnavailable)
	}
	return records, nil
}

// ReadCSV reads a catalog export. Rows may be ragged; the reader pads them.
func ReadCSV(in io.Reader) ([][]string, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}
