package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// EventLedger defines the ledger operations the event handler requires. It
// is declared locally so the handler package does not depend on the concrete
// ledger implementation.
type EventLedger interface {
	CreateEvent(ctx context.Context, title string, assetClass domain.AssetClass, targetTime time.Time, durationHours uint32, caller common.Address) (uint64, error)
	GetEvent(eventID uint64) (domain.PredictionEvent, error)
	ListEvents(opts domain.ListOpts) []domain.PredictionEvent
	EventCount() uint64
	EndEvent(ctx context.Context, eventID uint64) error
	SetReferencePrice(ctx context.Context, eventID uint64, price uint32, caller common.Address) error
}

// EventHandler serves event lifecycle HTTP endpoints. Listing is answered
// from the durable archive; single-event reads come from the live ledger.
type EventHandler struct {
	ledger  EventLedger
	archive domain.EventArchive
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler with the given ledger, archive and
// logger.
func NewEventHandler(ledger EventLedger, archive domain.EventArchive, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		ledger:  ledger,
		archive: archive,
		logger:  logHandler(logger, "events"),
	}
}

// eventView is the JSON projection of a prediction event. The confidential
// sum is exposed only as its opaque handle.
type eventView struct {
	ID              uint64            `json:"id"`
	Title           string            `json:"title"`
	AssetClass      domain.AssetClass `json:"asset_class"`
	State           domain.EventState `json:"state"`
	TargetTime      time.Time         `json:"target_time"`
	EndTime         time.Time         `json:"end_time"`
	CreatedAt       time.Time         `json:"created_at"`
	Admin           string            `json:"admin"`
	SubmissionCount uint32            `json:"submission_count"`
	ReferencePrice  uint32            `json:"reference_price,omitempty"`
	RevealedAverage uint32            `json:"revealed_average,omitempty"`
	SumHandle       string            `json:"sum_handle,omitempty"`
	PendingRequest  string            `json:"pending_request_id,omitempty"`
}

func viewOf(e domain.PredictionEvent) eventView {
	v := eventView{
		ID:              e.ID,
		Title:           e.Title,
		AssetClass:      e.AssetClass,
		State:           e.State(),
		TargetTime:      e.TargetTime,
		EndTime:         e.EndTime,
		CreatedAt:       e.CreatedAt,
		Admin:           e.Admin.Hex(),
		SubmissionCount: e.SubmissionCount,
		ReferencePrice:  e.ReferencePrice,
		RevealedAverage: e.RevealedAverage,
		PendingRequest:  e.PendingRequestID,
	}
	if e.Sum != nil {
		v.SumHandle = e.Sum.Handle()
	}
	return v
}

// createEventRequest is the JSON body for event creation.
type createEventRequest struct {
	Title         string `json:"title"`
	AssetClass    string `json:"asset_class"`
	TargetTime    string `json:"target_time"` // RFC 3339
	DurationHours uint32 `json:"duration_hours"`
	Admin         string `json:"admin"`
}

// CreateEvent registers a new prediction event.
// POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	admin, err := parseAddress(req.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid admin address")
		return
	}

	targetTime, err := time.Parse(time.RFC3339, req.TargetTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "target_time must be RFC 3339")
		return
	}

	id, err := h.ledger.CreateEvent(r.Context(), req.Title, domain.AssetClass(req.AssetClass), targetTime, req.DurationHours, admin)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create event failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"event_id": id})
}

// GetEvent returns the live ledger view of a single event.
// GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := h.ledger.GetEvent(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(e))
}

// listEventsResponse wraps the list endpoint output with metadata.
type listEventsResponse struct {
	Events []eventView `json:"events"`
	Total  uint64      `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListEvents returns events with pagination, preferring the durable archive
// and falling back to the in-memory registry when none is wired.
// GET /api/events?limit=50&offset=0
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var events []domain.PredictionEvent
	if h.archive != nil {
		var err error
		events, err = h.archive.List(r.Context(), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list events failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list events")
			return
		}
	} else {
		events = h.ledger.ListEvents(opts)
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, viewOf(e))
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: views,
		Total:  h.ledger.EventCount(),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// EndEvent closes an event for submissions. Callable by anyone once the
// submission deadline has passed.
// POST /api/events/{id}/end
func (h *EventHandler) EndEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ledger.EndEvent(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// setPriceRequest is the JSON body for reference price settlement.
type setPriceRequest struct {
	Price  uint32 `json:"price"` // cents
	Caller string `json:"caller"`
}

// SetReferencePrice records the admin-supplied settlement price.
// POST /api/events/{id}/price
func (h *EventHandler) SetReferencePrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.ledger.SetReferencePrice(r.Context(), id, req.Price, caller); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "price_set"})
}
