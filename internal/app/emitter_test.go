package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilcast/veilcast/internal/domain"
)

// recordingBus captures StreamAppend payloads in arrival order.
type recordingBus struct {
	mu       sync.Mutex
	appended [][]byte
}

func (b *recordingBus) Publish(context.Context, string, []byte) error { return nil }

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *recordingBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended = append(b.appended, payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) snapshot() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.appended...)
}

func TestEmitPreservesStreamOrder(t *testing.T) {
	bus := &recordingBus{}
	sink := newFanOutSink(bus, nil, nil, slog.New(slog.DiscardHandler))
	sink.Bind(nil, nil)

	ctx := context.Background()
	const count = 50
	for i := uint64(0); i < count; i++ {
		sink.Emit(ctx, domain.Notification{
			Type:    domain.NotificationSubmissionRecorded,
			EventID: i,
		})
	}

	require.Eventually(t, func() bool {
		return len(bus.snapshot()) == count
	}, 2*time.Second, 10*time.Millisecond)

	for i, payload := range bus.snapshot() {
		var n domain.Notification
		require.NoError(t, json.Unmarshal(payload, &n))
		require.EqualValues(t, i, n.EventID)
	}
}
