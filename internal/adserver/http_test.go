package adserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/ratelimit"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*HTTPClient, *observability.MockMetricsRegistry) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	metrics := observability.NewMockMetricsRegistry()
	limiter := ratelimit.NewLimiter(ratelimit.Config{Capacity: 100, RefillRate: 100, Enabled: true}, metrics)
	return NewHTTPClient(srv.URL, 2*time.Second, StaticToken("secret"), limiter, zaptest.NewLogger(t), metrics), metrics
}

func TestCreateLineItem(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders/42/line-items", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var draft models.LineItemDraft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		assert.Equal(t, "Brand_Q4", draft.Name)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"9001"}`))
	})

	id, err := c.CreateLineItem(context.Background(), models.LineItemDraft{Name: "Brand_Q4", OrderID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "9001", id)
	assert.Equal(t, 1, metrics.Count("adserver:create_line_item:success"))
}

func TestCreateLineItemCollision(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"UniqueError.DUPLICATE_OBJECT","message":"name exists"}}`))
	})

	_, err := c.CreateLineItem(context.Background(), models.LineItemDraft{Name: "Brand_Q4", OrderID: "42"})
	require.Error(t, err)
	assert.True(t, IsCollision(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, metrics.Count("adserver:create_line_item:collision"))
}

func TestServerErrorsAreTransient(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err := c.CreateCreative(context.Background(), CreativeRequest{Name: "x"})
		assert.True(t, IsTransient(err), "status %d", status)
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, time.Second, nil, nil, zaptest.NewLogger(t), nil)
	err := c.AssociateCreative(context.Background(), Association{LineItemID: "1", CreativeID: "2"})
	assert.True(t, IsTransient(err))
}

func TestCreateCreativeSendsAssetBytes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body wireCreative
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Variables, 2)
		assert.Equal(t, "Banner", body.Variables[0].Name)
		assert.Equal(t, "300x250.png", body.Variables[0].FileName)
		assert.Equal(t, []byte("png-bytes"), body.Variables[0].Content)
		assert.Equal(t, "EXP1", body.Variables[1].Value)
		_, _ = w.Write([]byte(`{"id":"cr-7"}`))
	})

	asset := &models.CreativeAsset{Identifier: "300x250.png", Kind: models.AssetImage, Content: []byte("png-bytes")}
	id, err := c.CreateCreative(context.Background(), CreativeRequest{
		Name:       "creative",
		TemplateID: 12330939,
		Size:       models.Size{Width: 300, Height: 250},
		Variables: []models.TemplateVariable{
			{Name: "Banner", Kind: models.VarAsset, Asset: asset},
			{Name: "ExpressoID", Kind: models.VarString, Value: "EXP1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cr-7", id)
}

func TestFindLineItems(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Brand Q4", r.URL.Query().Get("name"))
		assert.Equal(t, "case_insensitive", r.URL.Query().Get("match"))
		_, _ = w.Write([]byte(`{"line_items":[{"id":"1","name":"brand q4"}]}`))
	})

	refs, err := c.FindLineItems(context.Background(), "42", "Brand Q4", MatchCaseInsensitive)
	require.NoError(t, err)
	assert.Equal(t, []LineItemRef{{ID: "1", Name: "brand q4"}}, refs)
}

func TestLookupGeo(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "Mumbai" {
			_, _ = w.Write([]byte(`{"id":"1007785"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	id, err := c.LookupGeo(context.Background(), "Mumbai")
	require.NoError(t, err)
	assert.Equal(t, "1007785", id)

	_, err = c.LookupGeo(context.Background(), "Atlantis")
	assert.True(t, errors.Is(err, models.ErrLocationNotFound))
}

func TestOrderAdvertiser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"advertiser_id":"adv-9"}`))
	})

	adv, err := c.OrderAdvertiser(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "adv-9", adv)
}
