package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adprovision/internal/adserver/adservertest"
	"github.com/patrickwarner/adprovision/internal/assets"
	"github.com/patrickwarner/adprovision/internal/catalog"
	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/provision"
	"github.com/patrickwarner/adprovision/internal/ratelimit"
	"github.com/patrickwarner/adprovision/internal/telemetry"
)

const flagshipCSV = `Site,Platform,Section,Ad Type,Placement ID
TOI,WEB,ROS,MREC_1,toi-mrec-web
ETIMES,"WEB, MWEB",ROS,MREC_2,etimes-mrec
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.FileName(placement.CatalogFlagship)), []byte(flagshipCSV), 0o644))
	return config.Config{
		CatalogSource:       "csv",
		CatalogDir:          dir,
		OrderID:             "order-1",
		TimeZone:            "UTC",
		DefaultEndDate:      "2030-12-31 23:59:00",
		CreativeWorkers:     2,
		CreativeMaxAttempts: 1,
		NameMaxAttempts:     3,
	}
}

func TestNewResolveOnly(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t), nil, ResolveOnly())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Resolver.Resolve(context.Background(), placement.Request{
		Filter: models.TargetingFilter{Sites: []string{"toi"}, Platforms: []string{"web"}},
		Sizes:  []string{"300x250"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"etimes-mrec", "toi-mrec-web"}, res.AllPlacementIDs())

	_, err = a.Run(context.Background(), provision.Brief{Name: "x"})
	assert.Error(t, err)
}

func TestNewRejectsUnknownCatalogSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogSource = "sheets"

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), nil, ResolveOnly())
	assert.ErrorContains(t, err, `unknown catalog source "sheets"`)
}

func TestNewRejectsBadTimeZone(t *testing.T) {
	cfg := testConfig(t)
	cfg.TimeZone = "Mars/Olympus"

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), nil, WithClient(adservertest.New()))
	assert.Error(t, err)
}

func TestRunAddsConfiguredTags(t *testing.T) {
	cfg := testConfig(t)
	cfg.TagsFile = filepath.Join(t.TempDir(), "tags.yaml")
	require.NoError(t, os.WriteFile(cfg.TagsFile, []byte(`
tags:
  - size: 300x250
    script: "<script src=\"https://ads.example/mrec.js\"></script>"
`), 0o644))

	fake := adservertest.New()
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), nil,
		WithClient(fake),
		WithSink(telemetry.Nop{}),
		WithOrchestratorOptions(provision.WithClock(func() time.Time {
			return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
		})),
	)
	require.NoError(t, err)
	defer a.Close()
	require.Len(t, a.Tags, 1)

	res, err := a.Run(context.Background(), provision.Brief{
		Name:      "TOI_MREC",
		Targeting: models.TargetingFilter{Sites: []string{"TOI"}, Platforms: []string{"WEB"}},
		Sizes:     []string{"300x250"},
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Len(t, res.CreativeIDs(), 1)
	assert.Equal(t, 1, fake.Calls("create_creative"))
	assert.Equal(t, 1, fake.Calls("associate_creative"))
}

func TestStrictMarkupRejectsUnpatchableTag(t *testing.T) {
	cfg := testConfig(t)
	cfg.StrictMarkup = true
	fake := adservertest.New()
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), nil, WithClient(fake), WithSink(telemetry.Nop{}))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background(), provision.Brief{
		Name:      "TOI_MREC",
		Targeting: models.TargetingFilter{Sites: []string{"TOI"}, Platforms: []string{"WEB"}},
		Sizes:     []string{"300x250"},
		Tags:      []assets.Tag{{Size: "300x250", Script: "<ins>dcmads</ins>"}},
	})
	require.Error(t, err)
	assert.True(t, models.IsInputError(err))
	assert.Zero(t, fake.Calls("create_line_item"))
}

func TestRateLimitStats(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdServerURL = "http://127.0.0.1:1"
	cfg.RateLimitEnabled = true
	cfg.RateLimitCapacity = 5
	cfg.RateLimitRefillRate = 5
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), nil, WithSink(telemetry.Nop{}))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, ratelimit.Stats{}, a.RateLimitStats())

	b, err := New(context.Background(), cfg, zaptest.NewLogger(t), nil, WithClient(adservertest.New()), WithSink(telemetry.Nop{}))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, ratelimit.Stats{}, b.RateLimitStats())
}

func TestDefaultTelemetrySinkIsLogOnly(t *testing.T) {
	a := &App{Logger: zaptest.NewLogger(t)}

	sink, err := a.telemetrySink(context.Background())
	require.NoError(t, err)
	multi, ok := sink.(telemetry.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 1)
}

func TestAssetStoreSelection(t *testing.T) {
	a := &App{Logger: zaptest.NewLogger(t), Config: config.Config{AssetDir: "creatives"}}
	store, err := a.assetStore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, assets.DirStore{Dir: "creatives"}, store)

	a.Config.AssetDir = ""
	store, err = a.assetStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store)
}
