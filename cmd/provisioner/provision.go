package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/adprovision/internal/app"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/provision"
)

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision <brief>",
		Short: "Provision a line item and its creatives from a brief",
		Long: `Provision one campaign brief, given as a YAML or JSON file ("-" reads
stdin). Exits 1 when the line item was created but some sizes failed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runProvision(opts *RootOptions, path string, cmd *cobra.Command) error {
	brief, err := loadBrief(path, cmd)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}

	cfg := opts.config()
	logger, err := opts.logger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	shutdown, err := initTracing(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	a, err := app.New(ctx, cfg, logger, observability.NewNoOpRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Run(ctx, brief)
	if err != nil {
		logger.Error("provisioning failed", zap.String("name", brief.Name), zap.Error(err))
		return err
	}
	if err := printResult(cmd.OutOrStdout(), opts.Format, res); err != nil {
		return err
	}
	if res.Degraded {
		return &ExitError{Code: ExitDegraded, Err: fmt.Errorf("line item %s created with failed sizes: %s",
			res.LineItemID, strings.Join(res.FailedSizes, ", "))}
	}
	return nil
}

// loadBrief reads a brief file. JSON is chosen by the .json extension or a
// leading brace; anything else is parsed as YAML. Unknown fields are errors.
func loadBrief(path string, cmd *cobra.Command) (provision.Brief, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		var buf bytes.Buffer
		_, err = buf.ReadFrom(cmd.InOrStdin())
		b = buf.Bytes()
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return provision.Brief{}, fmt.Errorf("read brief: %w", err)
	}

	var brief provision.Brief
	trimmed := bytes.TrimSpace(b)
	if strings.EqualFold(filepath.Ext(path), ".json") || bytes.HasPrefix(trimmed, []byte("{")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		err = dec.Decode(&brief)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		err = dec.Decode(&brief)
	}
	if err != nil {
		return provision.Brief{}, fmt.Errorf("parse brief %s: %w", path, err)
	}
	return brief, nil
}
