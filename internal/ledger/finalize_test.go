package ledger

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilcast/veilcast/internal/domain"
)

func TestFinalizeRevealsExactAverage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)

	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 500000, alice)))
	require.NoError(t, e.ledger.Submit(ctx, id, bob, e.encrypt(t, 520000, bob)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))

	requestID, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	// Finalize is non-blocking: the event is still unfinalized until the
	// oracle calls back.
	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.False(t, ev.Finalized)
	require.Equal(t, requestID, ev.PendingRequestID)

	delivered, err := e.deliverCallback(t)
	require.NoError(t, err)
	require.Equal(t, requestID, delivered)

	ev, err = e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.True(t, ev.Finalized)
	require.EqualValues(t, 510000, ev.RevealedAverage)
	require.Empty(t, ev.PendingRequestID)
	require.Equal(t, domain.EventStateFinalized, ev.State())

	notes := e.sink.byType(domain.NotificationFinalizationCompleted)
	require.Len(t, notes, 1)
	require.EqualValues(t, 510000, notes[0].RevealedAverage)
}

func TestFinalizeAverageTruncates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)

	// 100 + 101 + 103 = 304; 304/3 = 101.33 -> truncated to 101.
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 100, alice)))
	require.NoError(t, e.ledger.Submit(ctx, id, bob, e.encrypt(t, 101, bob)))
	require.NoError(t, e.ledger.Submit(ctx, id, carol, e.encrypt(t, 103, carol)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	_, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)
	_, err = e.deliverCallback(t)
	require.NoError(t, err)

	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.EqualValues(t, 101, ev.RevealedAverage)
}

func TestFinalizeGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 100, alice)))

	// Not the admin.
	_, err := e.ledger.Finalize(ctx, id, alice)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	// Still active.
	_, err = e.ledger.Finalize(ctx, id, admin)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonStillActive, domain.ReasonOf(err))

	// No submissions: a fresh event that ended without participants can
	// never reach the decryption oracle.
	empty, err := e.ledger.CreateEvent(ctx, "empty", domain.AssetClassETH,
		e.clock.Now().Add(48*time.Hour), 24, admin)
	require.NoError(t, err)

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	require.NoError(t, e.ledger.EndEvent(ctx, empty))

	_, err = e.ledger.Finalize(ctx, empty, admin)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonNoSubmissions, domain.ReasonOf(err))
	select {
	case req := <-e.engine.Requests():
		t.Fatalf("unexpected decryption request %s", req.ID)
	default:
	}

	// Double-finalize while the first request is outstanding.
	_, err = e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)
	_, err = e.ledger.Finalize(ctx, id, admin)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonAlreadyRequested, domain.ReasonOf(err))

	// And after completion.
	_, err = e.deliverCallback(t)
	require.NoError(t, err)
	_, err = e.ledger.Finalize(ctx, id, admin)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonAlreadyFinalized, domain.ReasonOf(err))
}

func TestCallbackUnknownRequest(t *testing.T) {
	e := newEnv(t)
	err := e.ledger.OnDecryptionComplete(context.Background(), "no-such-request", []byte{0, 0, 0, 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCallbackDuplicateDeliveryRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 100, alice)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	requestID, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)

	_, err = e.deliverCallback(t)
	require.NoError(t, err)

	// Redelivery of the consumed request: the correlation is retired, so the
	// ledger cannot recompute anything.
	err = e.ledger.OnDecryptionComplete(ctx, requestID, []byte{0, 0, 0, 200})
	require.ErrorIs(t, err, domain.ErrNotFound)

	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.EqualValues(t, 100, ev.RevealedAverage)
}

func TestCallbackShortPayloadKeepsCorrelation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 700, alice)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	requestID, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)

	err = e.ledger.OnDecryptionComplete(ctx, requestID, []byte{0x01})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	// A well-formed redelivery for the same request still lands.
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, 700)
	require.NoError(t, e.ledger.OnDecryptionComplete(ctx, requestID, payload))

	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.True(t, ev.Finalized)
	require.EqualValues(t, 700, ev.RevealedAverage)
}

func TestFinalizationWithoutReferencePrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 100, alice)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	_, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)
	_, err = e.deliverCallback(t)
	require.NoError(t, err)

	// Finalization does not require a reference price; the completion
	// notification simply carries zero.
	notes := e.sink.byType(domain.NotificationFinalizationCompleted)
	require.Len(t, notes, 1)
	require.EqualValues(t, 0, notes[0].ReferencePrice)
}

func TestPendingRequestDiagnostic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 100, alice)))

	pending, err := e.ledger.PendingRequest(id)
	require.NoError(t, err)
	require.Empty(t, pending)

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	requestID, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)

	pending, err = e.ledger.PendingRequest(id)
	require.NoError(t, err)
	require.Equal(t, requestID, pending)
}
