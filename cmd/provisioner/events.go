package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/adprovision/internal/telemetry"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:           "events <run-id>",
		Short:         "Show the telemetry events stored for a provisioning run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = rootOpts.config().ClickHouseDSN
			}
			if dsn == "" {
				return &ExitError{Code: ExitCommandError, Err: fmt.Errorf("no ClickHouse DSN: set --dsn or CLICKHOUSE_DSN")}
			}
			return runEvents(rootOpts, dsn, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "ClickHouse DSN (default $CLICKHOUSE_DSN)")
	return cmd
}

func runEvents(opts *RootOptions, dsn, runID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	w, err := telemetry.InitClickHouse(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer w.Close()

	events, err := w.EventsByRun(ctx, runID)
	if err != nil {
		return err
	}
	return printEvents(cmd, opts.Format, events)
}

func printEvents(cmd *cobra.Command, format string, events []telemetry.Event) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		if events == nil {
			events = []telemetry.Event{}
		}
		return writeJSON(out, events)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSIZE\tSTATUS\tMESSAGE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.Timestamp.Format("15:04:05.000"), ev.Type, ev.Size, ev.Status,
			strings.ReplaceAll(ev.Message, "\n", " "))
	}
	return tw.Flush()
}
