package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adprovision/internal/adserver/adservertest"
	"github.com/patrickwarner/adprovision/internal/app"
	"github.com/patrickwarner/adprovision/internal/catalog"
	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/telemetry"
)

func connect(t *testing.T) (*mcp.ClientSession, *adservertest.Fake) {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	csv := "Site,Platform,Section,Ad Type,Placement ID\nTOI,WEB,ROS,MREC_1,toi-mrec-web\nETIMES,WEB,ROS,MREC_2,etimes-mrec\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.FileName(placement.CatalogFlagship)), []byte(csv), 0o644))

	fake := adservertest.New()
	logger := zaptest.NewLogger(t)
	a, err := app.New(ctx, config.Config{
		CatalogDir:          dir,
		OrderID:             "order-1",
		TimeZone:            "UTC",
		DefaultEndDate:      "2030-12-31 23:59:00",
		CreativeMaxAttempts: 1,
	}, logger, nil, app.WithClient(fake), app.WithSink(telemetry.Nop{}))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	server := newMCPServer(&ToolServer{provisioner: a, resolver: a.Resolver, logger: logger})
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session, fake
}

func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var out T
	b, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestListTools(t *testing.T) {
	session, _ := connect(t)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"resolve_placements", "provision_line_item"}, names)
}

func TestResolvePlacementsTool(t *testing.T) {
	session, fake := connect(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "resolve_placements",
		Arguments: map[string]any{
			"sites":     []string{"toi"},
			"platforms": []string{"web"},
			"sizes":     []string{"300x250"},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	out := decode[ResolvePlacementsOutput](t, res)
	assert.Equal(t, []string{"etimes-mrec", "toi-mrec-web"}, out.PlacementIDs)
	require.Len(t, out.Groups, 1)
	assert.Equal(t, "300x250", out.Groups[0].Key)
	assert.Zero(t, fake.Calls("create_line_item"))
}

func TestProvisionLineItemTool(t *testing.T) {
	session, fake := connect(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "provision_line_item",
		Arguments: map[string]any{
			"name":           "TOI_MREC",
			"sites":          []string{"TOI"},
			"platforms":      []string{"WEB"},
			"sizes":          []string{"300x250"},
			"script_payload": `<script src="https://ads.example/mrec.js"></script>`,
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	out := decode[ProvisionLineItemOutput](t, res)
	assert.Equal(t, "li-1", out.LineItemID)
	assert.Equal(t, "TOI_MREC", out.LineItemName)
	assert.False(t, out.Degraded)
	require.Len(t, out.Creatives, 1)
	assert.NotEmpty(t, out.Creatives[0].CreativeID)
	assert.Equal(t, 1, fake.Calls("create_line_item"))
}

func TestProvisionLineItemToolReportsInputErrors(t *testing.T) {
	session, fake := connect(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "provision_line_item",
		Arguments: map[string]any{
			"name":      "TOI_MREC",
			"sites":     []string{"TOI"},
			"platforms": []string{"WEB"},
			"sizes":     []string{"banana"},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Zero(t, fake.Calls("create_line_item"))
}
