package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/patrickwarner/adprovision/internal/models"
)

// PostgresSource reads catalogs from the catalog_cells table maintained by
// db.Postgres.ReplaceCatalog.
type PostgresSource struct {
	DB *sql.DB
}

// Rows implements Source. An unknown catalog yields ErrCatalogUnavailable.
func (s PostgresSource) Rows(ctx context.Context, ref string) ([][]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT cells FROM catalog_cells WHERE catalog = $1 ORDER BY row_num`, ref)
	if err != nil {
		return nil, fmt.Errorf("query catalog %q: %v: %w", ref, err, models.ErrCatalogUnavailable)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells []string
		if err := rows.Scan(pq.Array(&cells)); err != nil {
			return nil, fmt.Errorf("scan catalog %q: %w", ref, err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog %q: %v: %w", ref, err, models.ErrCatalogUnavailable)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("catalog %q not found: %w", ref, models.ErrCatalogUnavailable)
	}
	return out, nil
}
