package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// The guard checks below are small and independent so each operation can
// assemble exactly the preconditions it needs. All of them assume l.mu is
// held by the caller.

// eventByID resolves an event or fails with ErrNotFound.
func (l *Ledger) eventByID(eventID uint64) (*domain.PredictionEvent, error) {
	if eventID >= uint64(len(l.events)) {
		return nil, fmt.Errorf("ledger: event %d: %w", eventID, domain.ErrNotFound)
	}
	return l.events[eventID], nil
}

// requireActive checks that the event is inside its submission window. The
// failure reason distinguishes an explicitly ended event, an expired window,
// and a finalized event, so callers can surface the right message.
func (l *Ledger) requireActive(e *domain.PredictionEvent) error {
	if e.Finalized {
		return domain.NewStateError(domain.ReasonAlreadyFinalized)
	}
	if !e.Active {
		return domain.NewStateError(domain.ReasonNotActive)
	}
	if !l.clock.Now().Before(e.EndTime) {
		return domain.NewStateError(domain.ReasonExpired)
	}
	return nil
}

// requireAdmin checks that caller is the event's admin.
func (l *Ledger) requireAdmin(e *domain.PredictionEvent, caller common.Address) error {
	if e.Admin != caller {
		return fmt.Errorf("ledger: %s is not the admin of event %d: %w", caller.Hex(), e.ID, domain.ErrPermissionDenied)
	}
	return nil
}
