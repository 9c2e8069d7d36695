package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// StatsProvider defines the read-side aggregation the stats handler requires.
type StatsProvider interface {
	Stats(ctx context.Context) domain.EventStats
	History(participant common.Address) []domain.ParticipantRecord
}

// StatsHandler serves the aggregate statistics and participant history
// endpoints.
type StatsHandler struct {
	stats  StatsProvider
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsProvider, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logHandler(logger, "stats"),
	}
}

// statsResponse is the JSON projection of the registry statistics.
type statsResponse struct {
	TotalEvents      uint64 `json:"total_events"`
	ActiveEvents     uint64 `json:"active_events"`
	FinalizedEvents  uint64 `json:"finalized_events"`
	TotalSubmissions uint64 `json:"total_submissions"`
}

// Stats returns aggregate registry statistics.
// GET /api/stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.stats.Stats(r.Context())
	writeJSON(w, http.StatusOK, statsResponse{
		TotalEvents:      s.TotalEvents,
		ActiveEvents:     s.ActiveEvents,
		FinalizedEvents:  s.FinalizedEvents,
		TotalSubmissions: s.TotalSubmissions,
	})
}

// historyEntry is one row of a participant's submission history.
type historyEntry struct {
	EventID     uint64            `json:"event_id"`
	Title       string            `json:"title"`
	AssetClass  domain.AssetClass `json:"asset_class"`
	State       domain.EventState `json:"state"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// History returns the submission history for a participant.
// GET /api/participants/{address}/history
func (h *StatsHandler) History(w http.ResponseWriter, r *http.Request) {
	participant, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	records := h.stats.History(participant)
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			EventID:     rec.EventID,
			Title:       rec.Title,
			AssetClass:  rec.AssetClass,
			State:       rec.State,
			SubmittedAt: rec.SubmittedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participant": participant.Hex(),
		"history":     entries,
	})
}
