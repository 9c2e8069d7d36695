package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NotificationType enumerates the fire-and-forget observability signals the
// ledger emits. They are consumed by external observers (notifier channels,
// the signal bus, WebSocket clients), never by the ledger itself.
type NotificationType string

const (
	NotificationEventCreated          NotificationType = "event_created"
	NotificationSubmissionRecorded    NotificationType = "submission_recorded"
	NotificationEventEnded            NotificationType = "event_ended"
	NotificationReferencePriceSet     NotificationType = "reference_price_set"
	NotificationFinalizationRequested NotificationType = "finalization_requested"
	NotificationFinalizationCompleted NotificationType = "finalization_completed"
)

// NotificationTypes lists every notification type, for consumers that open
// one subscription per type.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationEventCreated,
		NotificationSubmissionRecorded,
		NotificationEventEnded,
		NotificationReferencePriceSet,
		NotificationFinalizationRequested,
		NotificationFinalizationCompleted,
	}
}

// Notification is one ledger observability signal. Confidential values are
// never carried; the only numeric payloads are the post-reveal average and
// the public reference price.
type Notification struct {
	Type        NotificationType `json:"type"`
	EventID     uint64           `json:"event_id"`
	Title       string           `json:"title,omitempty"`
	AssetClass  AssetClass       `json:"asset_class,omitempty"`
	Participant *common.Address  `json:"participant,omitempty"`
	RequestID   string           `json:"request_id,omitempty"`

	SubmissionCount uint32    `json:"submission_count,omitempty"`
	EndTime         time.Time `json:"end_time,omitzero"`

	// RevealedAverage and ReferencePrice are set on finalization_completed
	// only. ReferencePrice may still be zero (unset) at that point.
	RevealedAverage uint32 `json:"revealed_average,omitempty"`
	ReferencePrice  uint32 `json:"reference_price,omitempty"`

	At time.Time `json:"at"`
}

// EventSink receives ledger notifications. Implementations must not block
// the caller; delivery is fire-and-forget.
type EventSink interface {
	Emit(ctx context.Context, n Notification)
}

// StreamMessage represents a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out and durable, ordered streams for
// notification payloads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
