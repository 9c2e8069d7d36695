package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// Submit records a participant's confidential forecast for an active event.
// Exactly-once participation is the core fairness guarantee: a second
// submission for the same (event, participant) pair fails with
// ErrDuplicateSubmission and changes nothing.
func (l *Ledger) Submit(ctx context.Context, eventID uint64, participant common.Address, value domain.ConfidentialValue) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submitLocked(ctx, eventID, participant, value)
}

// HasSubmitted reports whether participant has already submitted to eventID.
func (l *Ledger) HasSubmitted(eventID uint64, participant common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs, ok := l.submissions[eventID]
	if !ok {
		return false
	}
	_, ok = subs[participant]
	return ok
}

// SubmitBatch applies up to MaxBatchSize submissions for one participant as
// a set: every item is validated (including duplicates within the batch
// itself) before any item is applied, so a single bad entry rejects the
// whole batch with no state change.
func (l *Ledger) SubmitBatch(ctx context.Context, participant common.Address, items []domain.BatchItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(items) == 0 {
		return fmt.Errorf("ledger: empty batch: %w", domain.ErrInvalidParameter)
	}
	if len(items) > domain.MaxBatchSize {
		return fmt.Errorf("ledger: batch of %d exceeds limit %d: %w", len(items), domain.MaxBatchSize, domain.ErrInvalidParameter)
	}

	// Validation pass: no writes.
	seen := make(map[uint64]bool, len(items))
	for i, item := range items {
		if item.Value == nil {
			return fmt.Errorf("ledger: batch item %d has no value: %w", i, domain.ErrInvalidParameter)
		}
		e, err := l.eventByID(item.EventID)
		if err != nil {
			return err
		}
		if err := l.requireActive(e); err != nil {
			return err
		}
		if seen[item.EventID] {
			return fmt.Errorf("ledger: event %d repeated in batch: %w", item.EventID, domain.ErrDuplicateSubmission)
		}
		if _, ok := l.submissions[item.EventID][participant]; ok {
			return fmt.Errorf("ledger: participant %s already submitted to event %d: %w",
				participant.Hex(), item.EventID, domain.ErrDuplicateSubmission)
		}
		seen[item.EventID] = true
	}

	// Aggregation pass: compute every new sum and grant before committing
	// any ledger write, so an arithmetic failure aborts the batch cleanly.
	sums := make([]domain.ConfidentialValue, len(items))
	for i, item := range items {
		e := l.events[item.EventID]
		sum, err := l.accumulate(ctx, e, item.Value)
		if err != nil {
			return err
		}
		sums[i] = sum
	}

	// Commit pass.
	now := l.clock.Now()
	receipts := make([]domain.SubmissionReceipt, 0, len(items))
	for i, item := range items {
		e := l.events[item.EventID]
		l.commitSubmission(ctx, e, participant, item.Value, sums[i], now)
		receipts = append(receipts, domain.SubmissionReceipt{
			EventID:     item.EventID,
			Participant: participant,
			SubmittedAt: now,
		})
	}

	if l.subArchive != nil {
		if err := l.subArchive.InsertBatch(ctx, receipts); err != nil {
			l.logger.WarnContext(ctx, "submission archive batch write failed",
				slog.Int("count", len(receipts)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// submitLocked performs a single submission with l.mu held.
func (l *Ledger) submitLocked(ctx context.Context, eventID uint64, participant common.Address, value domain.ConfidentialValue) error {
	if value == nil {
		return fmt.Errorf("ledger: missing value: %w", domain.ErrInvalidParameter)
	}

	e, err := l.eventByID(eventID)
	if err != nil {
		return err
	}
	if err := l.requireActive(e); err != nil {
		return err
	}
	if _, ok := l.submissions[eventID][participant]; ok {
		return fmt.Errorf("ledger: participant %s already submitted to event %d: %w",
			participant.Hex(), eventID, domain.ErrDuplicateSubmission)
	}

	sum, err := l.accumulate(ctx, e, value)
	if err != nil {
		return err
	}

	now := l.clock.Now()
	l.commitSubmission(ctx, e, participant, value, sum, now)
	l.archiveReceipt(ctx, domain.SubmissionReceipt{
		EventID:     eventID,
		Participant: participant,
		SubmittedAt: now,
	})
	return nil
}

// accumulate folds value into the event's running sum and re-grants the
// admin's read access on the result. The first submission seeds the sum
// directly instead of adding to an encrypted zero. No ledger state is
// mutated; the caller commits the returned sum.
func (l *Ledger) accumulate(ctx context.Context, e *domain.PredictionEvent, value domain.ConfidentialValue) (domain.ConfidentialValue, error) {
	sum := value
	if e.Sum != nil {
		var err error
		sum, err = l.arith.Add(ctx, e.Sum, value)
		if err != nil {
			return nil, fmt.Errorf("ledger: homomorphic add for event %d: %w", e.ID, err)
		}
	}

	// Grants do not survive mutation, so the admin is re-granted on every
	// updated sum.
	if err := l.arith.GrantAccess(ctx, sum, e.Admin); err != nil {
		return nil, fmt.Errorf("ledger: grant admin access for event %d: %w", e.ID, err)
	}
	return sum, nil
}

// commitSubmission applies the precomputed result of a validated submission.
func (l *Ledger) commitSubmission(ctx context.Context, e *domain.PredictionEvent, participant common.Address, value, sum domain.ConfidentialValue, now time.Time) {
	l.submissions[e.ID][participant] = &domain.Submission{
		EventID:     e.ID,
		Participant: participant,
		Value:       value,
		SubmittedAt: now,
	}
	e.Sum = sum
	e.SubmissionCount++

	l.logger.InfoContext(ctx, "submission recorded",
		slog.Uint64("event_id", e.ID),
		slog.String("participant", participant.Hex()),
		slog.Uint64("count", uint64(e.SubmissionCount)),
	)
	l.emit(ctx, domain.Notification{
		Type:            domain.NotificationSubmissionRecorded,
		EventID:         e.ID,
		Participant:     &participant,
		SubmissionCount: e.SubmissionCount,
		At:              now,
	})
}
