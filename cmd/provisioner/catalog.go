package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/app"
	"github.com/patrickwarner/adprovision/internal/catalog"
	"github.com/patrickwarner/adprovision/internal/observability"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage inventory catalogs stored in Postgres",
	}
	cmd.AddCommand(newCatalogImportCommand(rootOpts))
	return cmd
}

func newCatalogImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog> <csv-file>",
		Short: "Replace a stored catalog with a CSV export",
		Example: `  provisioner catalog import "TOI + ETIMES" exports/toi.csv
  provisioner catalog import "ET Placement/Preset" exports/et.csv`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogImport(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runCatalogImport(opts *RootOptions, name, path string, cmd *cobra.Command) error {
	rows, err := readCatalogFile(cmd.Context(), name, path)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}

	cfg := opts.config()
	logger, err := opts.logger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// The import target is always Postgres, whatever the read source is.
	cfg.CatalogSource = "postgres"
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger, observability.NewNoOpRegistry(), app.ResolveOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ImportCatalog(ctx, name, rows); err != nil {
		return fmt.Errorf("import catalog %q: %w", name, err)
	}
	logger.Info("catalog imported", zap.String("catalog", name), zap.Int("rows", len(rows)-1))
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows into %q\n", len(rows)-1, name)
	return nil
}

// readCatalogFile reads and checks a CSV export before anything is replaced.
func readCatalogFile(ctx context.Context, name, path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := catalog.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: catalog needs a header and at least one row", path)
	}
	if _, err := catalog.NewReader(catalog.StaticSource{name: rows}, nil).LoadCatalog(ctx, name); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
