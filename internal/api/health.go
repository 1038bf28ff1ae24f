package api

import (
	"net/http"
	"time"

	"github.com/patrickwarner/adprovision/internal/ratelimit"
)

type healthResponse struct {
	Status    string           `json:"status"`
	RateLimit *ratelimit.Stats `json:"rate_limit,omitempty"`
}

// HealthHandler responds with a simple status check. When the provisioner
// shares a rate limiter with the ad server client, its counters are included.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"

	resp := healthResponse{Status: "ok"}
	if rl, ok := s.Provisioner.(interface{ RateLimitStats() ratelimit.Stats }); ok {
		stats := rl.RateLimitStats()
		resp.RateLimit = &stats
	}
	writeJSON(w, http.StatusOK, resp)

	s.Metrics.IncrementRequests(endpoint, r.Method, "200")
	s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
}
