package adserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/ratelimit"
)

// duplicateCode is the ad server's error code for a name collision.
const duplicateCode = "DUPLICATE_OBJECT"

// TokenProvider supplies the bearer token for ad server requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// HTTPClient implements Client against the ad server's JSON API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// NewHTTPClient creates a client. limiter may be nil to disable throttling.
func NewHTTPClient(baseURL string, timeout time.Duration, tokens TokenProvider, limiter *ratelimit.Limiter, logger *zap.Logger, metrics observability.MetricsRegistry) *HTTPClient {
	if tokens == nil {
		tokens = StaticToken("")
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:  tokens,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

type idResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusError is a non-2xx response that is neither transient nor a collision.
type statusError struct {
	Status  int
	Code    string
	Message string
}

func (e *statusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// wireVariable is the JSON shape of a template variable. Asset variables
// carry their bytes base64 encoded.
type wireVariable struct {
	Name     string              `json:"name"`
	Kind     models.VariableKind `json:"kind"`
	Value    string              `json:"value,omitempty"`
	FileName string              `json:"file_name,omitempty"`
	Content  []byte              `json:"content,omitempty"`
}

type wireCreative struct {
	Name           string         `json:"name"`
	AdvertiserID   string         `json:"advertiser_id"`
	TemplateID     int64          `json:"template_id"`
	Size           models.Size    `json:"size"`
	DestinationURL string         `json:"destination_url,omitempty"`
	Variables      []wireVariable `json:"variables"`
}

func toWire(req CreativeRequest) wireCreative {
	w := wireCreative{
		Name:           req.Name,
		AdvertiserID:   req.AdvertiserID,
		TemplateID:     req.TemplateID,
		Size:           req.Size,
		DestinationURL: req.DestinationURL,
		Variables:      make([]wireVariable, 0, len(req.Variables)),
	}
	for _, v := range req.Variables {
		wv := wireVariable{Name: v.Name, Kind: v.Kind, Value: v.Value}
		if v.Asset != nil {
			wv.FileName = v.Asset.Identifier
			wv.Content = v.Asset.Content
			if len(wv.Content) == 0 && v.Asset.Markup != "" {
				wv.Content = []byte(v.Asset.Markup)
			}
		}
		w.Variables = append(w.Variables, wv)
	}
	return w
}

// CreateLineItem implements Client.
func (c *HTTPClient) CreateLineItem(ctx context.Context, draft models.LineItemDraft) (string, error) {
	var out idResponse
	path := "/v1/orders/" + url.PathEscape(draft.OrderID) + "/line-items"
	err := c.do(ctx, "create_line_item", http.MethodPost, path, draft, &out)
	var se *statusError
	if errors.As(err, &se) && (se.Status == http.StatusConflict || strings.Contains(se.Code, duplicateCode)) {
		return "", &CollisionError{Name: draft.Name, Reason: se.Message}
	}
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// FindLineItems implements Client.
func (c *HTTPClient) FindLineItems(ctx context.Context, orderID, name string, match MatchStrategy) ([]LineItemRef, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("match", string(match))
	var out struct {
		LineItems []LineItemRef `json:"line_items"`
	}
	path := "/v1/orders/" + url.PathEscape(orderID) + "/line-items?" + q.Encode()
	if err := c.do(ctx, "find_line_items", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.LineItems, nil
}

// CreateCreative implements Client.
func (c *HTTPClient) CreateCreative(ctx context.Context, req CreativeRequest) (string, error) {
	var out idResponse
	if err := c.do(ctx, "create_creative", http.MethodPost, "/v1/creatives", toWire(req), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AssociateCreative implements Client.
func (c *HTTPClient) AssociateCreative(ctx context.Context, a Association) error {
	path := "/v1/line-items/" + url.PathEscape(a.LineItemID) + "/creatives"
	return c.do(ctx, "associate_creative", http.MethodPost, path, a, nil)
}

// OrderAdvertiser implements Client.
func (c *HTTPClient) OrderAdvertiser(ctx context.Context, orderID string) (string, error) {
	var out struct {
		AdvertiserID string `json:"advertiser_id"`
	}
	if err := c.do(ctx, "get_order", http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return "", err
	}
	if out.AdvertiserID == "" {
		return "", fmt.Errorf("order %s has no advertiser", orderID)
	}
	return out.AdvertiserID, nil
}

// LookupGeo implements Client.
func (c *HTTPClient) LookupGeo(ctx context.Context, name string) (string, error) {
	var out idResponse
	err := c.do(ctx, "lookup_geo", http.MethodGet, "/v1/geo?name="+url.QueryEscape(name), nil, &out)
	if isNotFound(err) || (err == nil && out.ID == "") {
		return "", fmt.Errorf("%q: %w", name, models.ErrLocationNotFound)
	}
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// do performs one rate-limited JSON request. body and out may be nil.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordAdServerLatency(op, time.Since(start))
		c.metrics.IncrementAdServerRequests(op, outcome)
	}()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			outcome = "failure"
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		outcome = "failure"
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	token, err := c.tokens.Token(ctx)
	if err != nil {
		outcome = "failure"
		return fmt.Errorf("%s: token: %w", op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "transient"
		return &TransientError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		outcome = "transient"
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransientError{Op: op, Err: fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &statusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Code != "" {
			se.Code = ae.Error.Code
			se.Message = ae.Error.Message
		}
		outcome = "failure"
		if resp.StatusCode == http.StatusConflict || strings.Contains(se.Code, duplicateCode) {
			outcome = "collision"
		}
		return se
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		outcome = "failure"
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
