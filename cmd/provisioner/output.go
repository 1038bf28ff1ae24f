package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/placement"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitDegraded     = 1 // The line item exists but some sizes failed.
	ExitCommandError = 2
)

// ExitError carries a specific exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, format string, res *models.ProvisioningResult) error {
	if format == "json" {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "line item %s  %s\n", res.LineItemID, res.LineItemName)
	if res.LineItemName != res.RequestedName {
		fmt.Fprintf(w, "requested name %s was taken\n", res.RequestedName)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIZE\tCREATIVE\tTEMPLATE\tSTATUS")
	for _, c := range res.Creatives {
		status := "ok"
		switch {
		case c.Error != "":
			status = "failed: " + c.Error
		case c.Skipped != "":
			status = "skipped: " + c.Skipped
		}
		template := ""
		if c.TemplateID != 0 {
			template = fmt.Sprint(c.TemplateID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Size, c.CreativeID, template, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(res.InvalidLocations) > 0 {
		fmt.Fprintf(w, "invalid locations: %s\n", strings.Join(res.InvalidLocations, ", "))
	}
	return nil
}

func printResolution(w io.Writer, format string, res *placement.Resolution) error {
	if format == "json" {
		groups := make([]*models.PlacementGroup, 0, len(res.Groups))
		for _, key := range res.Keys() {
			groups = append(groups, res.Groups[key])
		}
		return writeJSON(w, map[string]any{
			"groups":        groups,
			"sites":         res.Sites,
			"catalogs":      res.Catalogs,
			"placement_ids": res.AllPlacementIDs(),
		})
	}
	fmt.Fprintf(w, "sites: %s\n", strings.Join(res.Sites, ", "))
	fmt.Fprintf(w, "catalogs: %s\n", strings.Join(res.Catalogs, ", "))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZES\tPLACEMENTS")
	for _, key := range res.Keys() {
		g := res.Groups[key]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, strings.Join(g.Sizes(), ","), strings.Join(g.IDs(), ","))
	}
	return tw.Flush()
}
