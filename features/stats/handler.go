package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ayl/internal/middleware"
)

type QuarantineCounter interface {
	Count(ctx context.Context) (int, error)
}

type BackendProbe interface {
	IsConnected(ctx context.Context) bool
}

type Handler struct {
	backend    string
	queue      string
	probe      BackendProbe
	quarantine QuarantineCounter
}

// NewHandler reports on queue for the named backend. quarantine may be nil
// when the ledger is disabled.
func NewHandler(backend, queue string, p BackendProbe, q QuarantineCounter) *Handler {
	return &Handler{backend: backend, queue: queue, probe: p, quarantine: q}
}

type StatsResponse struct {
	Backend     string `json:"backend"`
	Queue       string `json:"queue"`
	Connected   bool   `json:"connected"`
	Quarantined *int   `json:"quarantined,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	resp := StatsResponse{
		Backend:   h.backend,
		Queue:     h.queue,
		Connected: h.probe.IsConnected(ctx),
	}

	if h.quarantine != nil {
		qCount, err := h.quarantine.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count quarantined jobs", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count quarantined jobs", http.StatusInternalServerError)
			return
		}
		resp.Quarantined = &qCount
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
