package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	events    func() uint64
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. The events func reports the live
// registry size; pass nil to omit it.
func NewHealthHandler(mode string, events func() uint64, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		events:    events,
		logger:    logger,
	}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.events != nil {
		body["events"] = h.events()
	}
	writeJSON(w, http.StatusOK, body)
}
