package ledger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/veilcast/veilcast/internal/confidential"
	"github.com/veilcast/veilcast/internal/domain"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// captureSink records emitted notifications for assertions.
type captureSink struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (s *captureSink) Emit(_ context.Context, n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *captureSink) byType(t domain.NotificationType) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type env struct {
	ledger *Ledger
	clock  *clock.Mock
	engine *confidential.Engine
	sink   *captureSink
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	engine := confidential.NewEngine()
	sink := &captureSink{}

	l := New(Config{
		Arithmetic: engine,
		Clock:      clk,
		Sink:       sink,
		Logger:     slog.New(slog.DiscardHandler),
	})
	return &env{ledger: l, clock: clk, engine: engine, sink: sink}
}

// createEvent makes a standard 24h event targeting now+24h.
func (e *env) createEvent(t *testing.T) uint64 {
	t.Helper()
	id, err := e.ledger.CreateEvent(context.Background(), "BTC close",
		domain.AssetClassBTC, e.clock.Now().Add(24*time.Hour), 24, admin)
	require.NoError(t, err)
	return id
}

// encrypt wraps a plaintext into a confidential value bound to the submitter.
func (e *env) encrypt(t *testing.T, v uint32, submitter common.Address) domain.ConfidentialValue {
	t.Helper()
	cv, err := e.engine.EncryptAndBind(context.Background(), v, submitter)
	require.NoError(t, err)
	return cv
}

// deliverCallback drains one decryption request from the engine and feeds it
// back into the ledger, playing the oracle's role synchronously.
func (e *env) deliverCallback(t *testing.T) (string, error) {
	t.Helper()
	select {
	case req := <-e.engine.Requests():
		return req.ID, e.ledger.OnDecryptionComplete(context.Background(), req.ID, req.Cleartext)
	default:
		t.Fatal("no pending decryption request")
		return "", nil
	}
}

func TestCreateEventValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	future := e.clock.Now().Add(time.Hour)

	tests := []struct {
		name     string
		title    string
		class    domain.AssetClass
		target   time.Time
		duration uint32
	}{
		{"empty title", "  ", domain.AssetClassBTC, future, 24},
		{"bad asset class", "t", domain.AssetClass("xrp"), future, 24},
		{"target in the past", "t", domain.AssetClassBTC, e.clock.Now().Add(-time.Minute), 24},
		{"target is now", "t", domain.AssetClassBTC, e.clock.Now(), 24},
		{"zero duration", "t", domain.AssetClassBTC, future, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ledger.CreateEvent(ctx, tt.title, tt.class, tt.target, tt.duration, admin)
			require.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}
	require.EqualValues(t, 0, e.ledger.EventCount())
}

func TestCreateEventAssignsSequentialIDs(t *testing.T) {
	e := newEnv(t)

	first := e.createEvent(t)
	second := e.createEvent(t)

	require.EqualValues(t, 0, first)
	require.EqualValues(t, 1, second)
	require.EqualValues(t, 2, e.ledger.EventCount())

	ev, err := e.ledger.GetEvent(first)
	require.NoError(t, err)
	require.Equal(t, admin, ev.Admin)
	require.True(t, ev.Active)
	require.False(t, ev.Finalized)
	require.Equal(t, domain.EventStateActive, ev.State())
	require.Equal(t, e.clock.Now().Add(24*time.Hour), ev.EndTime)
	require.Len(t, e.sink.byType(domain.NotificationEventCreated), 2)
}

func TestGetEventNotFound(t *testing.T) {
	e := newEnv(t)
	e.createEvent(t)

	_, err := e.ledger.GetEvent(5)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
