package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/placement"
)

type resolveRequest struct {
	Targeting models.TargetingFilter `json:"targeting"`
	Sizes     []string               `json:"sizes"`
	LineType  models.LineType        `json:"line_type,omitempty"`
	// Name is only used to detect the line type when LineType is empty.
	Name string `json:"name,omitempty"`
}

type resolveResponse struct {
	Groups       []*models.PlacementGroup `json:"groups"`
	Sites        []string                 `json:"sites"`
	Catalogs     []string                 `json:"catalogs"`
	PlacementIDs []string                 `json:"placement_ids"`
}

// ResolveHandler resolves targeting to placement groups without touching
// the ad server.
func (s *Server) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "resolve"

	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}()

	var req resolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		status = writeError(w, err)
		return
	}
	lineType := req.LineType
	if lineType == "" {
		lineType = models.DetectLineType(req.Name)
	}

	res, err := s.Resolver.Resolve(r.Context(), placement.Request{Filter: req.Targeting, Sizes: req.Sizes, LineType: lineType})
	if err != nil {
		status = writeError(w, err)
		return
	}
	writeJSON(w, status, newResolveResponse(res))
}

func newResolveResponse(res *placement.Resolution) resolveResponse {
	out := resolveResponse{
		Sites:        res.Sites,
		Catalogs:     res.Catalogs,
		PlacementIDs: res.AllPlacementIDs(),
	}
	for _, key := range res.Keys() {
		out.Groups = append(out.Groups, res.Groups[key])
	}
	return out
}
