package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/crypto"
	"github.com/veilcast/veilcast/internal/domain"
)

// maxSubmissionBody caps the request body so oversized ciphertexts cannot
// exhaust memory.
const maxSubmissionBody = 1 << 20

// signatureHeader carries the participant's personal-sign signature over the
// raw request body.
const signatureHeader = "X-Veilcast-Signature"

// SubmissionLedger defines the ledger operations the submission handler
// requires.
type SubmissionLedger interface {
	Submit(ctx context.Context, eventID uint64, participant common.Address, value domain.ConfidentialValue) error
	SubmitBatch(ctx context.Context, participant common.Address, items []domain.BatchItem) error
	HasSubmitted(eventID uint64, participant common.Address) bool
}

// SubmissionHandler serves prediction submission endpoints. Ciphertexts are
// verified against their binding proof before they reach the ledger.
type SubmissionHandler struct {
	ledger     SubmissionLedger
	arithmetic domain.ConfidentialArithmetic
	requireSig bool
	logger     *slog.Logger
}

// NewSubmissionHandler creates a SubmissionHandler. When requireSig is true,
// every write must carry a personal-sign signature over the request body that
// recovers to the claimed participant address.
func NewSubmissionHandler(ledger SubmissionLedger, arithmetic domain.ConfidentialArithmetic, requireSig bool, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		ledger:     ledger,
		arithmetic: arithmetic,
		requireSig: requireSig,
		logger:     logHandler(logger, "submissions"),
	}
}

// ciphertextPayload is the wire form of a confidential value.
type ciphertextPayload struct {
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
	Proof      string `json:"proof"`      // base64 standard encoding
}

func (p ciphertextPayload) decode() (ciphertext, proof []byte, err error) {
	ciphertext, err = base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return nil, nil, err
	}
	proof, err = base64.StdEncoding.DecodeString(p.Proof)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, proof, nil
}

// submitRequest is the JSON body for a single submission.
type submitRequest struct {
	Participant string `json:"participant"`
	ciphertextPayload
}

// verifyBody checks the personal-sign signature header against the raw body
// when signature enforcement is enabled.
func (h *SubmissionHandler) verifyBody(r *http.Request, body []byte, participant common.Address) bool {
	if !h.requireSig {
		return true
	}
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return false
	}
	return crypto.VerifySigner(body, sig, participant)
}

// Submit records one confidential prediction for an event.
// POST /api/events/{id}/submissions
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	participant, err := parseAddress(req.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	if !h.verifyBody(r, body, participant) {
		writeError(w, http.StatusUnauthorized, "missing or invalid request signature")
		return
	}

	ciphertext, proof, err := req.decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, "ciphertext and proof must be base64")
		return
	}

	value, err := h.arithmetic.FromCiphertext(r.Context(), ciphertext, proof, participant)
	if err != nil {
		h.logger.WarnContext(r.Context(), "ciphertext rejected",
			slog.Uint64("event_id", id),
			slog.String("participant", participant.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "ciphertext verification failed")
		return
	}

	if err := h.ledger.Submit(r.Context(), id, participant, value); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// batchSubmitRequest is the JSON body for an all-or-nothing batch.
type batchSubmitRequest struct {
	Participant string `json:"participant"`
	Items       []struct {
		EventID uint64 `json:"event_id"`
		ciphertextPayload
	} `json:"items"`
}

// SubmitBatch records predictions for several events atomically. Any invalid
// item rejects the whole batch.
// POST /api/submissions/batch
func (h *SubmissionHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req batchSubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	participant, err := parseAddress(req.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	if !h.verifyBody(r, body, participant) {
		writeError(w, http.StatusUnauthorized, "missing or invalid request signature")
		return
	}

	items := make([]domain.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		ciphertext, proof, err := item.decode()
		if err != nil {
			writeError(w, http.StatusBadRequest, "ciphertext and proof must be base64")
			return
		}
		value, err := h.arithmetic.FromCiphertext(r.Context(), ciphertext, proof, participant)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ciphertext verification failed")
			return
		}
		items = append(items, domain.BatchItem{EventID: item.EventID, Value: value})
	}

	if err := h.ledger.SubmitBatch(r.Context(), participant, items); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "recorded",
		"count":  len(items),
	})
}

// HasSubmitted reports whether a participant already submitted to an event.
// GET /api/events/{id}/submissions/{address}
func (h *SubmissionHandler) HasSubmitted(w http.ResponseWriter, r *http.Request) {
	id, err := pathEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	participant, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"submitted": h.ledger.HasSubmitted(id, participant),
	})
}
