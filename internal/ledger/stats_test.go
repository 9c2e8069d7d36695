package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatsCountsByState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	active := e.createEvent(t)
	ended := e.createEvent(t)
	done := e.createEvent(t)

	require.NoError(t, e.ledger.Submit(ctx, active, alice, e.encrypt(t, 1, alice)))
	require.NoError(t, e.ledger.Submit(ctx, ended, alice, e.encrypt(t, 2, alice)))
	require.NoError(t, e.ledger.Submit(ctx, done, alice, e.encrypt(t, 3, alice)))
	require.NoError(t, e.ledger.Submit(ctx, done, bob, e.encrypt(t, 5, bob)))

	e.clock.Add(25 * time.Hour)
	require.NoError(t, e.ledger.EndEvent(ctx, ended))
	require.NoError(t, e.ledger.EndEvent(ctx, done))
	_, err := e.ledger.Finalize(ctx, done, admin)
	require.NoError(t, err)
	_, err = e.deliverCallback(t)
	require.NoError(t, err)

	s := e.ledger.Stats()
	require.EqualValues(t, 3, s.TotalEvents)
	require.EqualValues(t, 1, s.ActiveEvents)
	require.EqualValues(t, 1, s.FinalizedEvents)
	require.EqualValues(t, 4, s.TotalSubmissions)
}

func TestParticipantHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.createEvent(t)
	second := e.createEvent(t)
	e.createEvent(t) // carol never submits here

	require.NoError(t, e.ledger.Submit(ctx, first, carol, e.encrypt(t, 1, carol)))
	e.clock.Add(time.Hour)
	require.NoError(t, e.ledger.Submit(ctx, second, carol, e.encrypt(t, 2, carol)))

	history := e.ledger.ParticipantHistory(carol)
	require.Len(t, history, 2)
	require.EqualValues(t, first, history[0].EventID)
	require.EqualValues(t, second, history[1].EventID)
	require.True(t, history[1].SubmittedAt.After(history[0].SubmittedAt))

	require.Empty(t, e.ledger.ParticipantHistory(bob))
}
