package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/pkg/database"
	"FinExec/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormLedgerStore {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	s := NewGormLedgerStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestGormLedgerStore_AppendChainsSequentially(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, func(prevHash string, seq int64) (models.AuditLogEntry, error) {
				return models.AuditLogEntry{
					ID:        fmt.Sprintf("e-%d", i),
					Seq:       seq,
					Action:    "test.append",
					Actor:     "tester",
					Payload:   json.RawMessage(`{}`),
					PrevHash:  prevHash,
					Hash:      fmt.Sprintf("h-%d", seq),
					Timestamp: time.Now(),
				}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var seqs []int64
	prev := ""
	require.NoError(t, s.Scan(ctx, func(e models.AuditLogEntry) bool {
		assert.Equal(t, prev, e.PrevHash)
		prev = e.Hash
		seqs = append(seqs, e.Seq)
		return true
	}))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seqs)

	last, err := s.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.EqualValues(t, 10, last.Seq)
}

func TestGormLedgerStore_LastOnEmptyChain(t *testing.T) {
	s := newTestStore(t)
	last, err := s.Last(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestGormLedgerStore_IdempotencyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	k, err := s.Get(ctx, "strategy_start_s1_1")
	require.NoError(t, err)
	assert.Nil(t, k)

	require.NoError(t, s.CreatePending(ctx, "strategy_start_s1_1", now.Add(time.Hour)))
	assert.ErrorIs(t, s.CreatePending(ctx, "strategy_start_s1_1", now.Add(time.Hour)), models.ErrRequestInFlight)

	require.NoError(t, s.Complete(ctx, "strategy_start_s1_1", []byte(`{"ok":true}`)))
	k, err = s.Get(ctx, "strategy_start_s1_1")
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.Equal(t, models.IdempotencyCompleted, k.Status)
	assert.JSONEq(t, `{"ok":true}`, string(k.Result))

	assert.ErrorIs(t, s.Fail(ctx, "missing", nil), models.ErrNotFound)

	require.NoError(t, s.CreatePending(ctx, "old", now.Add(-time.Minute)))
	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.Delete(ctx, "strategy_start_s1_1"))
	k, err = s.Get(ctx, "strategy_start_s1_1")
	require.NoError(t, err)
	assert.Nil(t, k)
}

func TestGormLedgerStore_Strategies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateStrategy(ctx, &models.Strategy{ID: "s1", Name: "mean reversion"}))
	st, err := s.GetStrategy(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyDraft, st.Status)

	st, err = s.UpdateStrategyStatus(ctx, "s1", models.StrategyActive)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyActive, st.Status)

	_, err = s.GetStrategy(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.UpdateStrategyStatus(ctx, "nope", models.StrategyPaused)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
