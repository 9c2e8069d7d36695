package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// EndEvent closes an event for submissions once its end time has passed.
// Deliberately not admin-gated: anyone may end an expired event, so the
// lifecycle never depends on the admin being alive. A second call fails with
// ErrInvalidState rather than silently succeeding.
func (l *Ledger) EndEvent(ctx context.Context, eventID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.eventByID(eventID)
	if err != nil {
		return err
	}
	if e.Finalized {
		return domain.NewStateError(domain.ReasonAlreadyFinalized)
	}
	if !e.Active {
		return domain.NewStateError(domain.ReasonAlreadyEnded)
	}
	now := l.clock.Now()
	if now.Before(e.EndTime) {
		return domain.NewStateError(domain.ReasonEndTimeNotReached)
	}

	e.Active = false

	l.logger.InfoContext(ctx, "event ended",
		slog.Uint64("event_id", e.ID),
		slog.Uint64("submissions", uint64(e.SubmissionCount)),
	)
	l.emit(ctx, domain.Notification{
		Type:            domain.NotificationEventEnded,
		EventID:         e.ID,
		Title:           e.Title,
		SubmissionCount: e.SubmissionCount,
		At:              now,
	})
	l.archiveEvent(ctx, e)
	return nil
}

// SetReferencePrice records the admin-observed ground-truth price in cents.
// Allowed once the target time has passed and until the event finalizes;
// re-setting before finalization overwrites the previous value so an entry
// mistake can be corrected while the average is still sealed.
func (l *Ledger) SetReferencePrice(ctx context.Context, eventID uint64, price uint32, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.eventByID(eventID)
	if err != nil {
		return err
	}
	if err := l.requireAdmin(e, caller); err != nil {
		return err
	}
	if price == 0 {
		return fmt.Errorf("ledger: reference price must be positive: %w", domain.ErrInvalidParameter)
	}
	if e.Finalized {
		return domain.NewStateError(domain.ReasonAlreadyFinalized)
	}
	now := l.clock.Now()
	if now.Before(e.TargetTime) {
		return domain.NewStateError(domain.ReasonTargetNotReached)
	}

	e.ReferencePrice = price

	l.logger.InfoContext(ctx, "reference price set",
		slog.Uint64("event_id", e.ID),
		slog.Uint64("price", uint64(price)),
	)
	l.emit(ctx, domain.Notification{
		Type:           domain.NotificationReferencePriceSet,
		EventID:        e.ID,
		Title:          e.Title,
		ReferencePrice: price,
		At:             now,
	})
	l.archiveEvent(ctx, e)
	return nil
}
