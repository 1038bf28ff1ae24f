package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adprovision/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		ok    bool
		kind  models.AssetKind
		size  string
		flags models.AssetFlags
	}{
		{"300x250.png", true, models.AssetImage, "300x250", models.AssetFlags{}},
		{"Brand_728X90_2x.JPG", true, models.AssetImage, "728x90", models.AssetFlags{IsDoubleDensity: true}},
		{"300x600-nolp.webp", true, models.AssetImage, "300x600", models.AssetFlags{HasNoLandingPage: true}},
		{"970x250_ai.gif", true, models.AssetImage, "970x250", models.AssetFlags{IsScripted: true}},
		{"320x100.html", true, models.AssetMarkup, "320x100", models.AssetFlags{IsScripted: true}},
		{"email_300x250.png", true, models.AssetImage, "300x250", models.AssetFlags{}},
		{"tag.xlsx", false, "", "", models.AssetFlags{}},
		{"logo.png", false, "", "", models.AssetFlags{}},
		{"300x250.txt", false, "", "", models.AssetFlags{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := Classify(tt.name)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, tt.size, a.SizeHint.String())
			assert.Equal(t, tt.flags, a.Flags)
			assert.Empty(t, a.Content)
		})
	}
}

func TestLabelFlags(t *testing.T) {
	assert.Equal(t, models.AssetFlags{HasNoLandingPage: true}, LabelFlags("300x250_nolp"))
	assert.Equal(t, models.AssetFlags{IsDoubleDensity: true}, LabelFlags("728X90_2X"))
	assert.Equal(t, models.AssetFlags{}, LabelFlags("300x250_ai"))
	assert.Equal(t, models.AssetFlags{}, LabelFlags("300x250"))
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestDiscoverDirectory(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"300x250.png":      "png-mrec",
		"300x250_copy.png": "png-copy",
		"600x250.jpg":      "jpg-big",
		"320x100.html":     "<div>ad</div>",
		"notes.txt":        "ignore me",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "728x90"), 0o755))

	lib, err := Discover(context.Background(), DirStore{Dir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []models.Size{
		{Width: 300, Height: 250},
		{Width: 320, Height: 100},
		{Width: 600, Height: 250},
	}, lib.Sizes())
	assert.Equal(t, []string{"300x250_copy.png"}, lib.Ignored())

	mrec, ok := lib.Asset(models.MustParseSize("300x250"))
	require.True(t, ok)
	assert.Equal(t, []byte("png-mrec"), mrec.Content)

	html, ok := lib.Asset(models.MustParseSize("320x100"))
	require.True(t, ok)
	assert.Equal(t, "<div>ad</div>", html.Markup)
	assert.Nil(t, html.Content)

	_, ok = lib.Companion(models.MustParseSize("320x100"))
	assert.False(t, ok, "markup never serves as a companion")
	big, ok := lib.Companion(models.MustParseSize("600x250"))
	require.True(t, ok)
	assert.Equal(t, "600x250.jpg", big.Identifier)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	_, err := Discover(context.Background(), DirStore{Dir: filepath.Join(t.TempDir(), "missing")}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLibraryWith(t *testing.T) {
	img := &models.CreativeAsset{Identifier: "300x250.png", Kind: models.AssetImage, SizeHint: models.MustParseSize("300x250"), Content: []byte("x")}
	lib := NewLibrary(img)

	tag := Tag{Size: "300x250", Kind: TagJS, Script: "<script>x()</script>"}
	replaced := lib.With(tag.MarkupAsset(tag.Script))

	orig, _ := lib.Asset(img.SizeHint)
	assert.Same(t, img, orig)
	got, _ := replaced.Asset(img.SizeHint)
	assert.Equal(t, models.AssetMarkup, got.Kind)
	assert.True(t, got.Flags.IsScripted)
}

func TestTagNormalize(t *testing.T) {
	n, err := Tag{Size: "300X250", Script: "<ins class='dcmads'></ins>"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, TagDoubleClick, n.Kind)
	assert.Equal(t, "300x250", n.Size)
	assert.True(t, n.IsScript())

	n, err = Tag{Size: "728x90", Script: "<script src='x.js'></script>"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, TagJS, n.Kind)

	n, err = Tag{Size: "728x90", Impression: `<img src="https://t.example/i?ord=[timestamp]">`, Click: "https://c.example/c?ord=[CACHEBUSTER]"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, TagImpressionClick, n.Kind)
	assert.Equal(t, "https://t.example/i?ord=%%CACHEBUSTER%%", n.ImpressionTracker())
	assert.Equal(t, "https://c.example/c?ord=%%CACHEBUSTER%%", n.LandingPage())

	_, err = Tag{Size: "banner"}.Normalize()
	assert.True(t, models.IsInputError(err))
	_, err = Tag{Size: "300x250", Kind: TagJS}.Normalize()
	assert.True(t, models.IsInputError(err))
	_, err = Tag{Size: "300x250"}.Normalize()
	assert.True(t, models.IsInputError(err))
}

func TestLoadTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tags:
  - size: 300x250
    script: "<script>a()</script>"
  - size: 728x90
    impression: https://t.example/i
    click: https://c.example
  - size: 300x250
    kind: doubleclick
    script: "<ins class='dcmads'></ins>"
`), 0o644))

	tags, err := LoadTags(path)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, TagDoubleClick, tags[0].Kind)
	assert.Equal(t, "300x250", tags[0].Size)
	assert.Equal(t, TagImpressionClick, tags[1].Kind)
}

// fakeS3 serves path-style ListObjectsV2 and GetObject for one bucket.
func fakeS3(t *testing.T, bucket string, objects map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == bucket && r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><IsTruncated>false</IsTruncated>", bucket, prefix)
			for key, body := range objects {
				if strings.HasPrefix(key, prefix) {
					fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", key, len(body))
				}
			}
			b.WriteString("</ListBucketResult>")
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(b.String()))
			return
		}
		body, ok := objects[strings.TrimPrefix(path, bucket+"/")]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(body))
	}))
}

func TestS3StoreDiscover(t *testing.T) {
	srv := fakeS3(t, "creatives", map[string]string{
		"campaign-1/300x250.png":         "png",
		"campaign-1/728x90_2x.png":       "png2x",
		"campaign-1/archive/160x600.gif": "old",
		"campaign-2/970x250.png":         "other",
	})
	defer srv.Close()

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "creatives",
		Prefix:          "/campaign-1/",
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))

	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"300x250.png", "728x90_2x.png"}, names)

	lib, err := Discover(context.Background(), store, zaptest.NewLogger(t))
	require.NoError(t, err)
	lead, ok := lib.Asset(models.MustParseSize("728x90"))
	require.True(t, ok)
	assert.Equal(t, []byte("png2x"), lead.Content)
	assert.True(t, lead.Flags.IsDoubleDensity)

	_, err = store.Read(context.Background(), "missing.png")
	assert.Error(t, err)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"}, nil)
	assert.Error(t, err)
}
