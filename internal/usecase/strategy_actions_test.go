package usecase

import (
	"context"
	"strings"
	"testing"

	"FinExec/internal/domain/models"
	"FinExec/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrategyActions(t *testing.T) (*StrategyActions, *ledgerFixture, *eventRecorder) {
	f := newLedgerFixture(t)
	ev := &eventRecorder{}
	return NewStrategyActions(logger.NewNop(), f.ledger, f.store, ev, f.clock), f, ev
}

func TestStrategyActions_ReplayAppliesOnce(t *testing.T) {
	sa, f, ev := newTestStrategyActions(t)
	ctx := context.Background()
	_, err := sa.Create(ctx, "s1", "momentum")
	require.NoError(t, err)

	first, err := sa.Transition(ctx, "s1", models.StrategyStart, "alice", "req-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, models.StrategyDraft, first.PrevStatus)
	assert.Equal(t, models.StrategyActive, first.NewStatus)

	// pause in between; replaying req-1 must not restart the strategy
	_, err = sa.Transition(ctx, "s1", models.StrategyPause, "alice", "req-2")
	require.NoError(t, err)

	again, err := sa.Transition(ctx, "s1", models.StrategyStart, "alice", "req-1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.NewStatus, again.NewStatus)
	assert.Equal(t, "req-1", again.IdempotencyKey)

	st, err := sa.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyPaused, st.Status)

	var started int
	for _, e := range f.entries(t) {
		if e.Action == "strategy.started" {
			started++
			assert.Equal(t, "alice", e.Actor)
			assert.Contains(t, string(e.Payload), `"prevStatus":"draft"`)
		}
	}
	assert.Equal(t, 1, started)
	assert.Len(t, ev.ofType(models.EventStrategyChanged), 2)
}

func TestStrategyActions_UnknownStrategyCanBeRetried(t *testing.T) {
	sa, _, _ := newTestStrategyActions(t)
	ctx := context.Background()

	_, err := sa.Transition(ctx, "ghost", models.StrategyStop, "", "req-9")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = sa.Create(ctx, "ghost", "")
	require.NoError(t, err)
	tr, err := sa.Transition(ctx, "ghost", models.StrategyStop, "", "req-9")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyStopped, tr.NewStatus)
}

func TestStrategyActions_DerivesKeyAndRejectsUnknownAction(t *testing.T) {
	sa, _, _ := newTestStrategyActions(t)
	ctx := context.Background()
	_, err := sa.Create(ctx, "s2", "")
	require.NoError(t, err)

	tr, err := sa.Transition(ctx, "s2", models.StrategyPause, "", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tr.IdempotencyKey, "strategy_pause_s2_"))

	_, err = sa.Transition(ctx, "s2", models.StrategyAction("delete"), "", "")
	assert.ErrorIs(t, err, models.ErrInvalidAction)
}
