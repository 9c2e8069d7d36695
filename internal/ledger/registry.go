package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// CreateEvent registers a new prediction event and returns its sequential
// identifier. The event opens immediately and accepts submissions until
// durationHours from now; targetTime must lie in the future.
func (l *Ledger) CreateEvent(ctx context.Context, title string, assetClass domain.AssetClass, targetTime time.Time, durationHours uint32, caller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("ledger: empty title: %w", domain.ErrInvalidParameter)
	}
	if !assetClass.Valid() {
		return 0, fmt.Errorf("ledger: unknown asset class %q: %w", assetClass, domain.ErrInvalidParameter)
	}
	if !targetTime.After(now) {
		return 0, fmt.Errorf("ledger: target time must be in the future: %w", domain.ErrInvalidParameter)
	}
	if durationHours == 0 {
		return 0, fmt.Errorf("ledger: duration must be positive: %w", domain.ErrInvalidParameter)
	}

	e := &domain.PredictionEvent{
		ID:         uint64(len(l.events)),
		Title:      title,
		AssetClass: assetClass,
		TargetTime: targetTime,
		EndTime:    now.Add(time.Duration(durationHours) * time.Hour),
		CreatedAt:  now,
		Active:     true,
		Admin:      caller,
	}
	l.events = append(l.events, e)
	l.submissions[e.ID] = make(map[common.Address]*domain.Submission)

	l.logger.InfoContext(ctx, "event created",
		slog.Uint64("event_id", e.ID),
		slog.String("asset_class", string(e.AssetClass)),
		slog.String("admin", e.Admin.Hex()),
	)

	l.emit(ctx, domain.Notification{
		Type:       domain.NotificationEventCreated,
		EventID:    e.ID,
		Title:      e.Title,
		AssetClass: e.AssetClass,
		EndTime:    e.EndTime,
		At:         now,
	})
	l.archiveEvent(ctx, e)

	return e.ID, nil
}

// GetEvent returns a snapshot of the event with the given id.
func (l *Ledger) GetEvent(eventID uint64) (domain.PredictionEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.eventByID(eventID)
	if err != nil {
		return domain.PredictionEvent{}, err
	}
	return *e, nil
}

// ListEvents returns a page of event snapshots ordered by id descending, so
// the most recent events come first. It serves the list endpoint when no
// durable archive is wired.
func (l *Ledger) ListEvents(opts domain.ListOpts) []domain.PredictionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := len(l.events)
	start := total - opts.Offset
	out := make([]domain.PredictionEvent, 0, opts.Limit)
	for i := start - 1; i >= 0 && len(out) < opts.Limit; i-- {
		out = append(out, *l.events[i])
	}
	return out
}

// EventCount returns the number of events ever created. Identifiers are
// never reused, so every id below the count resolves.
func (l *Ledger) EventCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.events))
}
