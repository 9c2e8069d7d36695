package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/veilcast/veilcast/internal/domain"
)

// memoryBus is an in-process SignalBus: one buffered channel per
// subscription, publishes routed by exact channel name.
type memoryBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newMemoryBus() *memoryBus {
	return &memoryBus{subs: make(map[string]chan []byte)}
}

func (b *memoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[channel]; ok {
		ch <- payload
	}
	return nil
}

func (b *memoryBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = ch
	b.mu.Unlock()
	return ch, nil
}

func (b *memoryBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memoryBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memoryBus) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type hubEnv struct {
	bus  *memoryBus
	conn *websocket.Conn
}

func dialHub(t *testing.T) *hubEnv {
	t.Helper()

	bus := newMemoryBus()
	hub := NewHub(bus, slog.New(slog.DiscardHandler), Config{Mode: "test"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	// Every per-type bus subscription must be open before publishing.
	require.Eventually(t, func() bool {
		return bus.subscriptions() == len(domain.NotificationTypes())
	}, time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/", nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// The first frame is the connection status envelope.
	var status struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "ledger_status", status.Type)

	return &hubEnv{bus: bus, conn: conn}
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func TestHubForwardsAllTypesByDefault(t *testing.T) {
	e := dialHub(t)
	ctx := context.Background()

	payload := []byte(`{"type":"event_ended","event_id":3}`)
	require.NoError(t, e.bus.Publish(ctx, ChannelFor(domain.NotificationEventEnded), payload))
	require.Equal(t, payload, readFrame(t, e.conn))
}

func TestHubHonorsNarrowedSubscription(t *testing.T) {
	e := dialHub(t)
	ctx := context.Background()

	require.NoError(t, e.conn.WriteJSON(map[string][]string{
		"unsubscribe": {ChannelPrefix + "*"},
		"subscribe":   {ChannelFor(domain.NotificationEventCreated)},
	}))
	// The control frame is applied on the read pump; give it a moment.
	time.Sleep(250 * time.Millisecond)

	ended := []byte(`{"type":"event_ended","event_id":1}`)
	created := []byte(`{"type":"event_created","event_id":2}`)
	require.NoError(t, e.bus.Publish(ctx, ChannelFor(domain.NotificationEventEnded), ended))
	require.NoError(t, e.bus.Publish(ctx, ChannelFor(domain.NotificationEventCreated), created))

	// Only the subscribed type comes through, even though the other was
	// published first.
	require.Equal(t, created, readFrame(t, e.conn))

	require.NoError(t, e.conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := e.conn.ReadMessage()
	require.Error(t, err)
}

func decodeType(t *testing.T, data []byte) string {
	t.Helper()
	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame.Type
}

func TestHubResubscribeRestoresDelivery(t *testing.T) {
	e := dialHub(t)
	ctx := context.Background()

	require.NoError(t, e.conn.WriteJSON(map[string][]string{
		"unsubscribe": {ChannelPrefix + "*"},
	}))
	time.Sleep(250 * time.Millisecond)

	require.NoError(t, e.conn.WriteJSON(map[string][]string{
		"subscribe": {ChannelFor(domain.NotificationFinalizationCompleted)},
	}))
	time.Sleep(250 * time.Millisecond)

	payload := []byte(`{"type":"finalization_completed","event_id":9}`)
	require.NoError(t, e.bus.Publish(ctx, ChannelFor(domain.NotificationFinalizationCompleted), payload))
	require.Equal(t, "finalization_completed", decodeType(t, readFrame(t, e.conn)))
}
