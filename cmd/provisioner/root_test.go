package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adprovision/internal/catalog"
	"github.com/patrickwarner/adprovision/internal/placement"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"provision"}, {"resolve"}, {"serve"}, {"catalog", "import"}, {"events"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	for _, name := range []string{"catalog-source", "catalogs", "presets", "assets", "tags", "order"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"resolve", "--format", "xml", "--sites", "TOI", "--platforms", "WEB", "--sizes", "300x250"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	assert.ErrorContains(t, err, `invalid format "xml"`)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("CATALOG_DIR", "/from/env")
	t.Setenv("ORDER_ID", "env-order")

	opts := &RootOptions{CatalogDir: "/from/flag"}
	cfg := opts.config()
	assert.Equal(t, "/from/flag", cfg.CatalogDir)
	assert.Equal(t, "env-order", cfg.OrderID)
}

func catalogDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	csv := "Site,Platform,Section,Ad Type,Placement ID\n" +
		"TOI,WEB,ROS,MREC_1,toi-mrec-web\n" +
		"ETIMES,\"WEB, MWEB\",ROS,MREC_2,etimes-mrec\n" +
		"TOI,WEB,ROS,LEADERBOARD,toi-lb\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.FileName(placement.CatalogFlagship)), []byte(csv), 0o644))
	return dir
}

func TestResolveCommandText(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"resolve", "--catalogs", catalogDir(t), "--sites", "toi", "--platforms", "web", "--sizes", "300x250,728x90"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "sites: TOI, ETIMES")
	assert.Contains(t, out.String(), "etimes-mrec,toi-mrec-web")
	assert.Contains(t, out.String(), "toi-lb")
}

func TestResolveCommandJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"resolve", "--format", "json", "--catalogs", catalogDir(t), "--sites", "TOI", "--platforms", "WEB", "--sizes", "300x250"})

	require.NoError(t, cmd.Execute())
	var body struct {
		PlacementIDs []string `json:"placement_ids"`
		Catalogs     []string `json:"catalogs"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, []string{"etimes-mrec", "toi-mrec-web"}, body.PlacementIDs)
	assert.Equal(t, []string{placement.CatalogFlagship}, body.Catalogs)
}

func TestResolveCommandMissingCatalog(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"resolve", "--catalogs", t.TempDir(), "--sites", "TOI", "--platforms", "WEB", "--sizes", "300x250"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, exitCode(err))
}
