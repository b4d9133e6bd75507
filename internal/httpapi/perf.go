package httpapi

import (
	"net/http"

	"github.com/ent0n29/callgate/internal/observability"
)

type perfLatencyResponse struct {
	observability.StageSnapshot
	Targets map[string]float64 `json:"targets_p95_ms"`
}

// handlePerfLatency reports the rolling latency window for ring, unlock and
// delivery stages next to their p95 targets.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	out := perfLatencyResponse{Targets: observability.StageTargets()}
	if s.metrics != nil {
		out.StageSnapshot = s.metrics.SnapshotStages()
	}
	if out.Stages == nil {
		out.Stages = []observability.StageStats{}
	}
	respondJSON(w, http.StatusOK, out)
}
