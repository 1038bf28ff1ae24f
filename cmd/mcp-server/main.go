// Command mcp-server exposes placement resolution and line item provisioning
// as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/app"
	"github.com/patrickwarner/adprovision/internal/assets"
	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/provision"
)

type ResolvePlacementsInput struct {
	Sites     []string `json:"sites" jsonschema:"site tokens such as TOI, ET or ALL_LANGUAGES"`
	Platforms []string `json:"platforms" jsonschema:"platform tokens such as WEB, MWEB or AMP"`
	Sizes     []string `json:"sizes" jsonschema:"creative sizes such as 300x250"`
	Sections  []string `json:"sections,omitempty" jsonschema:"sections, replacing the preset lists"`
	AdTypes   []string `json:"ad_types,omitempty" jsonschema:"ad types, replacing the preset lists"`
	LineType  string   `json:"line_type,omitempty" jsonschema:"standard or richmedia; detected from name when empty"`
	Name      string   `json:"name,omitempty" jsonschema:"line item name"`
}

type PlacementGroup struct {
	Key           string   `json:"key"`
	OriginalSizes []string `json:"original_sizes"`
	PlacementIDs  []string `json:"placement_ids"`
}

type ResolvePlacementsOutput struct {
	Groups       []PlacementGroup `json:"groups"`
	Sites        []string         `json:"sites"`
	Catalogs     []string         `json:"catalogs"`
	PlacementIDs []string         `json:"placement_ids"`
}

type ProvisionLineItemInput struct {
	Name              string       `json:"name" jsonschema:"requested line item name"`
	OrderID           string       `json:"order_id,omitempty" jsonschema:"ad server order; the configured order when empty"`
	Sites             []string     `json:"sites"`
	Platforms         []string     `json:"platforms"`
	Sizes             []string     `json:"sizes"`
	Sections          []string     `json:"sections,omitempty"`
	AdTypes           []string     `json:"ad_types,omitempty"`
	LineType          string       `json:"line_type,omitempty"`
	Locations         []string     `json:"locations,omitempty" jsonschema:"geo names to target"`
	StartDate         string       `json:"start_date,omitempty" jsonschema:"YYYY-MM-DD"`
	EndDate           string       `json:"end_date,omitempty" jsonschema:"YYYY-MM-DD HH:MM"`
	Impressions       int64        `json:"impressions,omitempty"`
	CPM               float64      `json:"cpm,omitempty"`
	Currency          string       `json:"currency,omitempty"`
	LandingPageURL    string       `json:"landing_page_url,omitempty"`
	ImpressionTracker string       `json:"impression_tracker,omitempty"`
	ScriptPayload     string       `json:"script_payload,omitempty" jsonschema:"third-party script for rich media lines"`
	VideoURL          string       `json:"video_url,omitempty"`
	Tags              []assets.Tag `json:"tags,omitempty" jsonschema:"per-size third-party tags"`
}

type CreativeOutcome struct {
	Size       string `json:"size"`
	CreativeID string `json:"creative_id,omitempty"`
	TemplateID int64  `json:"template_id,omitempty"`
	Error      string `json:"error,omitempty"`
	Skipped    string `json:"skipped,omitempty"`
}

type ProvisionLineItemOutput struct {
	RunID            string            `json:"run_id"`
	LineItemID       string            `json:"line_item_id"`
	LineItemName     string            `json:"line_item_name"`
	Creatives        []CreativeOutcome `json:"creatives"`
	FailedSizes      []string          `json:"failed_sizes,omitempty"`
	InvalidLocations []string          `json:"invalid_locations,omitempty"`
	Degraded         bool              `json:"degraded"`
	ElapsedMillis    int64             `json:"elapsed_ms"`
}

// Provisioner runs briefs; *app.App implements it.
type Provisioner interface {
	Run(ctx context.Context, brief provision.Brief) (*models.ProvisioningResult, error)
}

// ToolServer holds the dependencies of the MCP tools.
type ToolServer struct {
	provisioner Provisioner
	resolver    *placement.Resolver
	logger      *zap.Logger
	timeout     time.Duration
}

// ResolvePlacements implements the resolve_placements tool.
func (s *ToolServer) ResolvePlacements(ctx context.Context, req *mcp.CallToolRequest, input ResolvePlacementsInput) (*mcp.CallToolResult, ResolvePlacementsOutput, error) {
	lineType := models.LineType(input.LineType)
	if lineType == "" {
		lineType = models.DetectLineType(input.Name)
	}
	res, err := s.resolver.Resolve(ctx, placement.Request{
		Filter: models.TargetingFilter{
			Sites:     input.Sites,
			Platforms: input.Platforms,
			Sections:  input.Sections,
			AdTypes:   input.AdTypes,
		},
		Sizes:    input.Sizes,
		LineType: lineType,
	})
	if err != nil {
		return nil, ResolvePlacementsOutput{}, err
	}

	out := ResolvePlacementsOutput{
		Groups:       make([]PlacementGroup, 0, len(res.Groups)),
		Sites:        res.Sites,
		Catalogs:     res.Catalogs,
		PlacementIDs: res.AllPlacementIDs(),
	}
	for _, key := range res.Keys() {
		g := res.Groups[key]
		out.Groups = append(out.Groups, PlacementGroup{Key: key, OriginalSizes: g.Sizes(), PlacementIDs: g.IDs()})
	}
	s.logger.Info("placements resolved", zap.Strings("sites", res.Sites), zap.Int("placements", len(out.PlacementIDs)))
	return nil, out, nil
}

// ProvisionLineItem implements the provision_line_item tool.
func (s *ToolServer) ProvisionLineItem(ctx context.Context, req *mcp.CallToolRequest, input ProvisionLineItemInput) (*mcp.CallToolResult, ProvisionLineItemOutput, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.provisioner.Run(ctx, provision.Brief{
		Name:    input.Name,
		OrderID: input.OrderID,
		Targeting: models.TargetingFilter{
			Sites:     input.Sites,
			Platforms: input.Platforms,
			Sections:  input.Sections,
			AdTypes:   input.AdTypes,
		},
		Sizes:             input.Sizes,
		LineType:          models.LineType(input.LineType),
		Locations:         input.Locations,
		StartDate:         input.StartDate,
		EndDate:           input.EndDate,
		Impressions:       input.Impressions,
		CPM:               input.CPM,
		Currency:          input.Currency,
		LandingPageURL:    input.LandingPageURL,
		ImpressionTracker: input.ImpressionTracker,
		ScriptPayload:     input.ScriptPayload,
		VideoURL:          input.VideoURL,
		Tags:              input.Tags,
	})
	if err != nil {
		s.logger.Warn("provision_line_item failed", zap.String("name", input.Name), zap.Error(err))
		return nil, ProvisionLineItemOutput{}, err
	}

	out := ProvisionLineItemOutput{
		RunID:            res.RunID,
		LineItemID:       res.LineItemID,
		LineItemName:     res.LineItemName,
		Creatives:        make([]CreativeOutcome, 0, len(res.Creatives)),
		FailedSizes:      res.FailedSizes,
		InvalidLocations: res.InvalidLocations,
		Degraded:         res.Degraded,
		ElapsedMillis:    res.Timings[models.PhaseTotal].Milliseconds(),
	}
	for _, c := range res.Creatives {
		out.Creatives = append(out.Creatives, CreativeOutcome(c))
	}
	return nil, out, nil
}

func newMCPServer(s *ToolServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adprovision",
		Version: observability.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_placements",
		Description: "Resolve site, platform and size targeting to inventory placement ids without touching the ad server",
	}, s.ResolvePlacements)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "provision_line_item",
		Description: "Create a line item with a unique name and one creative per requested size",
	}, s.ProvisionLineItem)

	return server
}

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "adprovision" {
		cfg.ServiceName = "adprovision-mcp"
	}

	// The logger writes to stderr; stdout carries the MCP transport.
	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, cfg); err != nil {
		logger.Error("mcp server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, observability.NewNoOpRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	server := newMCPServer(&ToolServer{
		provisioner: a,
		resolver:    a.Resolver,
		logger:      logger,
		timeout:     cfg.WriteTimeout,
	})

	logger.Info("MCP server running via stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}
