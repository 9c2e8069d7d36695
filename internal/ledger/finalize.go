package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// Finalize issues the decryption request for an ended event's confidential
// sum and returns the oracle's request identifier. The call does not block
// on decryption: the cleartext arrives later through OnDecryptionComplete,
// matched back to the event via the correlation table recorded here.
func (l *Ledger) Finalize(ctx context.Context, eventID uint64, caller common.Address) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.eventByID(eventID)
	if err != nil {
		return "", err
	}
	if err := l.requireAdmin(e, caller); err != nil {
		return "", err
	}
	if e.Finalized {
		return "", domain.NewStateError(domain.ReasonAlreadyFinalized)
	}
	if e.Active {
		return "", domain.NewStateError(domain.ReasonStillActive)
	}
	if e.SubmissionCount == 0 {
		return "", domain.NewStateError(domain.ReasonNoSubmissions)
	}
	if e.PendingRequestID != "" {
		return "", domain.NewStateError(domain.ReasonAlreadyRequested)
	}

	requestID, err := l.arith.RequestDecryption(ctx, e.Sum)
	if err != nil {
		return "", fmt.Errorf("ledger: request decryption for event %d: %w", e.ID, err)
	}

	l.correlations[requestID] = e.ID
	e.PendingRequestID = requestID

	now := l.clock.Now()
	l.logger.InfoContext(ctx, "finalization requested",
		slog.Uint64("event_id", e.ID),
		slog.String("request_id", requestID),
	)
	l.emit(ctx, domain.Notification{
		Type:            domain.NotificationFinalizationRequested,
		EventID:         e.ID,
		RequestID:       requestID,
		SubmissionCount: e.SubmissionCount,
		At:              now,
	})
	l.archiveEvent(ctx, e)

	return requestID, nil
}

// OnDecryptionComplete is the oracle's callback entry point. It resolves the
// event through the correlation table, re-checks the event state (stale or
// duplicate deliveries are rejected, never reapplied), parses the decrypted
// sum from the first 4 bytes of the payload, and publishes the truncated
// integer average. Fractional cents are discarded, not rounded.
func (l *Ledger) OnDecryptionComplete(ctx context.Context, requestID string, cleartext []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	eventID, ok := l.correlations[requestID]
	if !ok {
		return fmt.Errorf("ledger: no event correlated with request %s: %w", requestID, domain.ErrNotFound)
	}

	e, err := l.eventByID(eventID)
	if err != nil {
		return err
	}
	if e.Finalized {
		return domain.NewStateError(domain.ReasonAlreadyFinalized)
	}
	if e.Active {
		return domain.NewStateError(domain.ReasonStillActive)
	}

	// The payload layout is capability-specific; single-value requests carry
	// the cleartext in the first 4 bytes, big-endian. A short payload leaves
	// the correlation intact so a well-formed delivery can still land.
	if len(cleartext) < 4 {
		return fmt.Errorf("ledger: cleartext payload too short (%d bytes): %w", len(cleartext), domain.ErrInvalidParameter)
	}
	decryptedSum := binary.BigEndian.Uint32(cleartext[:4])

	average := decryptedSum / e.SubmissionCount

	e.RevealedAverage = average
	e.Finalized = true
	e.PendingRequestID = ""
	delete(l.correlations, requestID)

	now := l.clock.Now()
	l.logger.InfoContext(ctx, "finalization completed",
		slog.Uint64("event_id", e.ID),
		slog.String("request_id", requestID),
		slog.Uint64("average", uint64(average)),
		slog.Uint64("submissions", uint64(e.SubmissionCount)),
	)
	l.emit(ctx, domain.Notification{
		Type:            domain.NotificationFinalizationCompleted,
		EventID:         e.ID,
		Title:           e.Title,
		RequestID:       requestID,
		RevealedAverage: average,
		ReferencePrice:  e.ReferencePrice,
		At:              now,
	})

	l.archiveEvent(ctx, e)
	if l.finalArchive != nil {
		rec := domain.FinalizationRecord{
			EventID:         e.ID,
			RequestID:       requestID,
			RevealedAverage: average,
			ReferencePrice:  e.ReferencePrice,
			SubmissionCount: e.SubmissionCount,
			FinalizedAt:     now,
		}
		if err := l.finalArchive.Insert(ctx, rec); err != nil {
			l.logger.WarnContext(ctx, "finalization archive write failed",
				slog.Uint64("event_id", e.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// PendingRequest reports the outstanding decryption request for an event, if
// any. An ended, non-finalized event with a pending request is the
// diagnostic signature of a stuck finalization; the ledger offers no retry.
func (l *Ledger) PendingRequest(eventID uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.eventByID(eventID)
	if err != nil {
		return "", err
	}
	return e.PendingRequestID, nil
}
