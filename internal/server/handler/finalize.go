package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/crypto"
	"github.com/veilcast/veilcast/internal/domain"
)

// oracleSignatureHeader carries the HMAC signature over a callback delivery.
const oracleSignatureHeader = "X-Oracle-Signature"

// FinalizeLedger defines the ledger operations the finalization handler
// requires.
type FinalizeLedger interface {
	Finalize(ctx context.Context, eventID uint64, caller common.Address) (string, error)
	OnDecryptionComplete(ctx context.Context, requestID string, cleartext []byte) error
	PendingRequest(eventID uint64) (string, error)
}

// FinalizeHandler serves finalization endpoints, including the oracle's
// decryption callback entry point.
type FinalizeHandler struct {
	ledger   FinalizeLedger
	archiver domain.Archiver
	auth     *crypto.CallbackAuth
	logger   *slog.Logger
}

// NewFinalizeHandler creates a FinalizeHandler. The archiver may be nil when
// no blob store is configured; the snapshot endpoint then returns 404.
func NewFinalizeHandler(ledger FinalizeLedger, archiver domain.Archiver, auth *crypto.CallbackAuth, logger *slog.Logger) *FinalizeHandler {
	return &FinalizeHandler{
		ledger:   ledger,
		archiver: archiver,
		auth:     auth,
		logger:   logHandler(logger, "finalize"),
	}
}

// finalizeRequest is the JSON body for triggering finalization.
type finalizeRequest struct {
	Caller string `json:"caller"`
}

// Finalize triggers the asynchronous reveal of an event's average. The
// response carries the decryption request ID; the result lands later via the
// oracle callback.
// POST /api/events/{id}/finalize
func (h *FinalizeHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	requestID, err := h.ledger.Finalize(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "decryption_requested",
		"request_id": requestID,
	})
}

// PendingRequest reports the outstanding decryption request for an event.
// GET /api/events/{id}/finalize
func (h *FinalizeHandler) PendingRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestID, err := h.ledger.PendingRequest(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"request_id": requestID})
}

// callbackRequest is the JSON body the oracle posts on decryption completion.
type callbackRequest struct {
	RequestID string `json:"request_id"`
	Cleartext string `json:"cleartext"` // base64 standard encoding
}

// OracleCallback receives a decryption result and reconciles it with the
// pending finalization. Deliveries must be HMAC-signed; an unknown request ID
// yields 404 so the oracle can stop redelivering retired requests.
// POST /api/oracle/callback
func (h *FinalizeHandler) OracleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, "missing request_id")
		return
	}

	cleartext, err := base64.StdEncoding.DecodeString(req.Cleartext)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cleartext must be base64")
		return
	}

	if !h.auth.Verify(req.RequestID, cleartext, r.Header.Get(oracleSignatureHeader)) {
		h.logger.WarnContext(r.Context(), "callback rejected: bad signature",
			slog.String("request_id", req.RequestID),
		)
		writeError(w, http.StatusUnauthorized, "invalid callback signature")
		return
	}

	if err := h.ledger.OnDecryptionComplete(r.Context(), req.RequestID, cleartext); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

// Snapshot returns the archived finalization record for an event from the
// blob store.
// GET /api/events/{id}/snapshot
func (h *FinalizeHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.archiver == nil {
		writeError(w, http.StatusNotFound, "archival not configured")
		return
	}

	snapshot, err := h.archiver.ReadFinalization(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The snapshot is stored as JSON; serve it verbatim.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(snapshot)
}
