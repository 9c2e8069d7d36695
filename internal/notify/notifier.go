// Package notify delivers ledger notifications to operator chat channels.
// Senders are fan-out targets (telegram, discord); the Notifier filters by
// notification type so operators subscribe to the lifecycle moments they
// care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to every sender, filtered by type. An
// empty filter passes everything.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier delivering to senders; types lists the
// notification types to forward, empty meaning all.
func NewNotifier(senders []Sender, types []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[strings.TrimSpace(t)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers title/message to every sender if typ passes the filter.
// One sender failing does not stop delivery to the rest; the failures come
// back joined.
func (n *Notifier) Notify(ctx context.Context, typ, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[typ] {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notification delivery failed",
				slog.String("sender", s.Name()),
				slog.String("type", typ),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
