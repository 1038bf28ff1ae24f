package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/adprovision/internal/app"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/placement"
)

type resolveOptions struct {
	sites     []string
	platforms []string
	sections  []string
	adTypes   []string
	sizes     []string
	lineType  string
	name      string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve targeting to placement ids without touching the ad server",
		Example: `  provisioner resolve --sites TOI --platforms WEB,MWEB --sizes 300x250,320x100
  provisioner resolve --sites ALL_LANGUAGES --platforms WEB --sizes 728x90 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(rootOpts, opts, cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&opts.sites, "sites", nil, "site tokens")
	flags.StringSliceVar(&opts.platforms, "platforms", nil, "platform tokens")
	flags.StringSliceVar(&opts.sections, "sections", nil, "sections, replacing the preset lists")
	flags.StringSliceVar(&opts.adTypes, "ad-types", nil, "ad types, replacing the preset lists")
	flags.StringSliceVar(&opts.sizes, "sizes", nil, "creative sizes, e.g. 300x250")
	flags.StringVar(&opts.lineType, "line-type", "", "standard or richmedia (default: detected from --name)")
	flags.StringVar(&opts.name, "name", "", "line item name used to detect the line type")
	_ = cmd.MarkFlagRequired("sites")
	_ = cmd.MarkFlagRequired("platforms")
	_ = cmd.MarkFlagRequired("sizes")

	return cmd
}

func runResolve(rootOpts *RootOptions, opts *resolveOptions, cmd *cobra.Command) error {
	cfg := rootOpts.config()
	logger, err := rootOpts.logger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger, observability.NewNoOpRegistry(), app.ResolveOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	lineType := models.LineType(opts.lineType)
	if lineType == "" {
		lineType = models.DetectLineType(opts.name)
	}
	res, err := a.Resolver.Resolve(ctx, placement.Request{
		Filter: models.TargetingFilter{
			Sites:     opts.sites,
			Platforms: opts.platforms,
			Sections:  opts.sections,
			AdTypes:   opts.adTypes,
		},
		Sizes:    opts.sizes,
		LineType: lineType,
	})
	if err != nil {
		return err
	}
	return printResolution(cmd.OutOrStdout(), rootOpts.Format, res)
}
