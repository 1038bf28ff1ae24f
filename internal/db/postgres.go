package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Postgres wraps a postgres DB connection holding inventory catalogs.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the catalog table if it doesn't exist. Each catalog is
// stored as ordered rows of raw cells; row 0 is the header.
const schemaSQL = `CREATE TABLE IF NOT EXISTS catalog_cells (
    catalog TEXT NOT NULL,
    row_num INT NOT NULL,
    cells TEXT[] NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (catalog, row_num)
);`

// InitPostgres opens an instrumented connection pool and ensures the schema exists.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ReplaceCatalog atomically swaps the stored cells of a catalog.
func (p *Postgres) ReplaceCatalog(ctx context.Context, catalog string, rows [][]string) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_cells WHERE catalog = $1`, catalog); err != nil {
		return fmt.Errorf("clear catalog %q: %w", catalog, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO catalog_cells (catalog, row_num, cells) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, cells := range rows {
		if _, err := stmt.ExecContext(ctx, catalog, i, pq.Array(cells)); err != nil {
			return fmt.Errorf("insert catalog %q row %d: %w", catalog, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog %q: %w", catalog, err)
	}
	return nil
}
