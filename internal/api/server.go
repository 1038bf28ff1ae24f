// Package api exposes provisioning and placement resolution over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/middleware"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/provision"
)

// maxBodyBytes bounds request bodies; briefs with inline tags stay well below it.
const maxBodyBytes = 1 << 20

// Provisioner runs a brief end to end.
type Provisioner interface {
	Run(ctx context.Context, brief provision.Brief) (*models.ProvisioningResult, error)
}

// PlacementResolver resolves targeting to placement groups.
type PlacementResolver interface {
	Resolve(ctx context.Context, req placement.Request) (*placement.Resolution, error)
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Provisioner Provisioner
	Resolver    PlacementResolver
	Metrics     observability.MetricsRegistry
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, provisioner Provisioner, resolver PlacementResolver, metrics observability.MetricsRegistry) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:      logger,
		Provisioner: provisioner,
		Resolver:    resolver,
		Metrics:     metrics,
	}
}

// Router wires every route with request logging and server-side tracing.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger), middleware.AccessLog(s.Logger))

	r.HandleFunc("/v1/provision", s.ProvisionHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/placements/resolve", s.ResolveHandler).Methods(http.MethodPost)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "adprovision",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps provisioning errors onto HTTP statuses. Anything not
// attributable to the caller or the catalogs is an ad server failure.
func statusFor(err error) int {
	var input *models.InputError
	switch {
	case errors.As(err, &input):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoPlacements):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNameExhausted):
		return http.StatusConflict
	case errors.Is(err, models.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var input *models.InputError
	if errors.As(err, &input) {
		resp.Field = input.Field
	}
	writeJSON(w, status, resp)
	return status
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.NewInputError("body", "invalid json: "+err.Error())
	}
	return nil
}
