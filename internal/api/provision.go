package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/middleware"
	"github.com/patrickwarner/adprovision/internal/provision"
)

// ProvisionHandler runs a brief posted as JSON. A fully provisioned line
// item returns 201; a line item with failed sizes returns 207 and the same
// result body.
func (s *Server) ProvisionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "provision"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	status := http.StatusCreated
	defer func() {
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}()

	var brief provision.Brief
	if err := decodeBody(w, r, &brief); err != nil {
		status = writeError(w, err)
		return
	}

	res, err := s.Provisioner.Run(r.Context(), brief)
	if err != nil {
		logger.Warn("provision request failed", zap.String("name", brief.Name), zap.Error(err))
		status = writeError(w, err)
		return
	}
	if res.Degraded {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}
