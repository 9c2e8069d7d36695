package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/veilcast/veilcast/internal/domain"
	"github.com/veilcast/veilcast/internal/ledger"
	"github.com/veilcast/veilcast/internal/notify"
	"github.com/veilcast/veilcast/internal/server/ws"
	"github.com/veilcast/veilcast/internal/service"
)

// notificationStream is the durable stream every ledger notification is
// appended to, giving late consumers an ordered replay.
const notificationStream = "veilcast:notifications"

// fanOutTimeout bounds the background work done per notification.
const fanOutTimeout = 10 * time.Second

// deliveryQueueSize bounds undelivered notifications; Emit drops (with a
// log line) rather than block the ledger when the queue is full.
const deliveryQueueSize = 256

// fanOutSink distributes ledger notifications to the signal bus, the chat
// notifier, the stats cache, and the blob archiver. The ledger emits with
// its mutex held, so Emit only enqueues; a single worker goroutine delivers,
// which keeps the durable stream in ledger order.
type fanOutSink struct {
	bus      domain.SignalBus
	notifier *notify.Notifier
	stats    *service.StatsService
	archiver domain.Archiver
	ledger   *ledger.Ledger
	logger   *slog.Logger
	queue    chan domain.Notification
}

// newFanOutSink creates a sink with no ledger bound yet and starts its
// delivery worker. Bind must be called before the first Emit; the two-step
// construction breaks the cycle between the ledger (which needs a sink) and
// the sink (which reads the ledger back).
func newFanOutSink(bus domain.SignalBus, notifier *notify.Notifier, archiver domain.Archiver, logger *slog.Logger) *fanOutSink {
	s := &fanOutSink{
		bus:      bus,
		notifier: notifier,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "emitter")),
		queue:    make(chan domain.Notification, deliveryQueueSize),
	}
	go s.run()
	return s
}

func (s *fanOutSink) run() {
	for n := range s.queue {
		s.deliver(n)
	}
}

// Bind attaches the ledger and stats service the sink reads from.
func (s *fanOutSink) Bind(l *ledger.Ledger, stats *service.StatsService) {
	s.ledger = l
	s.stats = stats
}

// Emit implements domain.EventSink. It returns immediately; delivery is
// best-effort and failures are logged, never surfaced to the ledger.
func (s *fanOutSink) Emit(_ context.Context, n domain.Notification) {
	select {
	case s.queue <- n:
	default:
		s.logger.Warn("notification dropped: delivery queue full",
			slog.String("type", string(n.Type)),
			slog.Uint64("event_id", n.EventID),
		)
	}
}

func (s *fanOutSink) deliver(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), fanOutTimeout)
	defer cancel()

	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal notification failed",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, ws.ChannelFor(n.Type), payload); err != nil {
			s.logger.WarnContext(ctx, "signal publish failed",
				slog.String("type", string(n.Type)),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, notificationStream, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("type", string(n.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	// Every notification reflects a registry mutation, so the cached stats
	// are stale from here on.
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}

	if s.notifier != nil {
		title, message := notify.Format(n)
		if err := s.notifier.Notify(ctx, string(n.Type), title, message); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("type", string(n.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	if n.Type == domain.NotificationFinalizationCompleted {
		s.archiveSnapshot(ctx, n)
	}
}

// archiveSnapshot uploads the finalization audit snapshot to the blob store.
func (s *fanOutSink) archiveSnapshot(ctx context.Context, n domain.Notification) {
	if s.archiver == nil || s.ledger == nil {
		return
	}

	event, err := s.ledger.GetEvent(n.EventID)
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot skipped: event lookup failed",
			slog.Uint64("event_id", n.EventID),
			slog.String("error", err.Error()),
		)
		return
	}

	rec := domain.FinalizationRecord{
		EventID:         n.EventID,
		RequestID:       n.RequestID,
		RevealedAverage: n.RevealedAverage,
		ReferencePrice:  n.ReferencePrice,
		SubmissionCount: event.SubmissionCount,
		FinalizedAt:     n.At,
	}

	path, err := s.archiver.ArchiveFinalization(ctx, rec, event)
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot archive failed",
			slog.Uint64("event_id", n.EventID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.InfoContext(ctx, "finalization snapshot archived",
		slog.Uint64("event_id", n.EventID),
		slog.String("path", path),
	)
}
