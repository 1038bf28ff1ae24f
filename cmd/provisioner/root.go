package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/observability"
)

// RootOptions holds global flags for all commands. Non-empty values override
// the environment configuration.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	CatalogSource string
	CatalogDir    string
	PresetsFile   string
	AssetDir      string
	TagsFile      string
	OrderID       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "provisioner",
		Short: "Resolve placements and provision line items",
		Long: `Resolve abstract targeting against the inventory catalogs and provision
campaign briefs on the ad server: one line item with a unique name and one
creative per requested size.

Configuration comes from the environment; flags override it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.CatalogSource, "catalog-source", "", "catalog source (csv|postgres)")
	flags.StringVar(&opts.CatalogDir, "catalogs", "", "directory of catalog CSV exports")
	flags.StringVar(&opts.PresetsFile, "presets", "", "YAML size preset overrides")
	flags.StringVar(&opts.AssetDir, "assets", "", "creative asset directory")
	flags.StringVar(&opts.TagsFile, "tags", "", "YAML file of third-party tags")
	flags.StringVar(&opts.OrderID, "order", "", "ad server order id")

	cmd.AddCommand(NewProvisionCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

// config loads the environment configuration and applies flag overrides.
func (o *RootOptions) config() config.Config {
	cfg := config.Load()
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.CatalogSource, o.CatalogSource)
	override(&cfg.CatalogDir, o.CatalogDir)
	override(&cfg.PresetsFile, o.PresetsFile)
	override(&cfg.AssetDir, o.AssetDir)
	override(&cfg.TagsFile, o.TagsFile)
	override(&cfg.OrderID, o.OrderID)
	return cfg
}

func (o *RootOptions) logger(cfg config.Config) (*zap.Logger, error) {
	if o.Verbose {
		return observability.InitLoggerWithLevel(zap.DebugLevel, cfg.ServiceName)
	}
	return observability.InitLoggerWithService(cfg.ServiceName)
}
