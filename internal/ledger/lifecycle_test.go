package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilcast/veilcast/internal/domain"
)

func TestEndEventBeforeDeadline(t *testing.T) {
	e := newEnv(t)
	id := e.createEvent(t)

	err := e.ledger.EndEvent(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonEndTimeNotReached, domain.ReasonOf(err))
}

func TestEndEventOnceThenRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	e.clock.Add(24 * time.Hour)

	require.NoError(t, e.ledger.EndEvent(ctx, id))
	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.False(t, ev.Active)
	require.Equal(t, domain.EventStateEnded, ev.State())

	err = e.ledger.EndEvent(ctx, id)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonAlreadyEnded, domain.ReasonOf(err))
	require.Len(t, e.sink.byType(domain.NotificationEventEnded), 1)
}

func TestSetReferencePriceRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	e.clock.Add(25 * time.Hour)

	err := e.ledger.SetReferencePrice(ctx, id, 510000, alice)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.EqualValues(t, 0, ev.ReferencePrice)
}

func TestSetReferencePriceBeforeTargetTime(t *testing.T) {
	e := newEnv(t)
	id := e.createEvent(t)

	err := e.ledger.SetReferencePrice(context.Background(), id, 510000, admin)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonTargetNotReached, domain.ReasonOf(err))
}

func TestSetReferencePriceRejectsZero(t *testing.T) {
	e := newEnv(t)
	id := e.createEvent(t)
	e.clock.Add(25 * time.Hour)

	err := e.ledger.SetReferencePrice(context.Background(), id, 0, admin)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestSetReferencePriceOverwriteUntilFinalized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 500000, alice)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.SetReferencePrice(ctx, id, 500000, admin))
	require.NoError(t, e.ledger.SetReferencePrice(ctx, id, 510000, admin))

	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.EqualValues(t, 510000, ev.ReferencePrice)

	// Once finalized, the reference price is frozen.
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	_, err = e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)
	_, err = e.deliverCallback(t)
	require.NoError(t, err)

	err = e.ledger.SetReferencePrice(ctx, id, 520000, admin)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonAlreadyFinalized, domain.ReasonOf(err))
}

// The observed state sequence is always a forward-only subsequence of
// Active -> Ended -> PriceSet -> Finalized.
func TestLifecycleIsMonotonic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createEvent(t)
	require.NoError(t, e.ledger.Submit(ctx, id, alice, e.encrypt(t, 100, alice)))

	states := []domain.EventState{}
	record := func() {
		ev, err := e.ledger.GetEvent(id)
		require.NoError(t, err)
		if len(states) == 0 || states[len(states)-1] != ev.State() {
			states = append(states, ev.State())
		}
	}

	record()
	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, id))
	record()
	require.NoError(t, e.ledger.SetReferencePrice(ctx, id, 510000, admin))
	record()
	_, err := e.ledger.Finalize(ctx, id, admin)
	require.NoError(t, err)
	_, err = e.deliverCallback(t)
	require.NoError(t, err)
	record()

	require.Equal(t, []domain.EventState{
		domain.EventStateActive,
		domain.EventStateEnded,
		domain.EventStatePriceSet,
		domain.EventStateFinalized,
	}, states)

	// No transition can be replayed once the event is finalized.
	require.ErrorIs(t, e.ledger.EndEvent(ctx, id), domain.ErrInvalidState)
	err = e.ledger.Submit(ctx, id, bob, e.encrypt(t, 1, bob))
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, domain.ReasonAlreadyFinalized, domain.ReasonOf(err))
}
