package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/internal/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/database"
	"FinExec/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	ledger *Ledger
	store  *repository.GormLedgerStore
	db     *gorm.DB
	clock  *clock.Fake
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "ledger.db")}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	store := repository.NewGormLedgerStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	clk := clock.NewFake(testStart)
	l := NewLedger(logger.NewNop(), LedgerConfig{KeyTTL: 24 * time.Hour}, store, store, nil, clk)
	return &ledgerFixture{ledger: l, store: store, db: db, clock: clk}
}

func (f *ledgerFixture) entries(t *testing.T) []models.AuditLogEntry {
	t.Helper()
	var out []models.AuditLogEntry
	require.NoError(t, f.store.Scan(context.Background(), func(e models.AuditLogEntry) bool {
		out = append(out, e)
		return true
	}))
	return out
}

func TestDeriveKey(t *testing.T) {
	assert.Equal(t, "strategy_start_s1_1728561600000", DeriveKey("strategy_start", "s1", testStart))
}

func TestLedger_ExecuteRunsOnce(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) (interface{}, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	raw, replayed, err := f.ledger.Execute(ctx, "k1", fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.JSONEq(t, `{"calls":1}`, string(raw))

	raw, replayed, err = f.ledger.Execute(ctx, "k1", fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.JSONEq(t, `{"calls":1}`, string(raw))
	assert.Equal(t, 1, calls)
}

func TestLedger_ExecuteRetriesFailedKey(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.ledger.Execute(ctx, "k2", func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	rec, err := f.store.Get(ctx, "k2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.IdempotencyFailed, rec.Status)
	assert.JSONEq(t, `{"error":"boom"}`, string(rec.Result))

	raw, replayed, err := f.ledger.Execute(ctx, "k2", func(context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.JSONEq(t, `"ok"`, string(raw))
}

func TestLedger_ExecutePendingKey(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreatePending(ctx, "k3", testStart.Add(time.Minute)))

	_, _, err := f.ledger.Execute(ctx, "k3", func(context.Context) (interface{}, error) {
		t.Fatal("must not run while another request holds the key")
		return nil, nil
	})
	assert.ErrorIs(t, err, models.ErrRequestInFlight)

	// an abandoned pending key is taken over after its ttl
	f.clock.Advance(2 * time.Minute)
	_, replayed, err := f.ledger.Execute(ctx, "k3", func(context.Context) (interface{}, error) { return 1, nil })
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestLedger_ExecuteRecoversPanic(t *testing.T) {
	f := newLedgerFixture(t)
	_, _, err := f.ledger.Execute(context.Background(), "k4", func(context.Context) (interface{}, error) {
		panic("bad")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestLedger_AppendAndVerify(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.ledger.Append(ctx, "test.event", "", map[string]int{"i": i})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	es := f.entries(t)
	require.Len(t, es, 3)
	assert.Empty(t, es[0].PrevHash)
	assert.Equal(t, es[0].Hash, es[1].PrevHash)
	assert.Equal(t, es[1].Hash, es[2].PrevHash)
	assert.Equal(t, "system", es[0].Actor)

	v, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, int64(3), v.Entries)

	require.NoError(t, f.db.Model(&models.AuditLogEntry{}).Where("seq = ?", 2).Update("payload", `{"i":42}`).Error)
	v, err = f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, int64(2), v.BrokenAt)
}

func TestLedger_VerifyEmptyChain(t *testing.T) {
	f := newLedgerFixture(t)
	v, err := f.ledger.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Zero(t, v.Entries)
}

func TestLedger_PurgeExpired(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.ledger.Execute(ctx, "old", func(context.Context) (interface{}, error) { return 1, nil })
	require.NoError(t, err)
	f.clock.Advance(12 * time.Hour)
	_, _, err = f.ledger.Execute(ctx, "new", func(context.Context) (interface{}, error) { return 2, nil })
	require.NoError(t, err)

	f.clock.Advance(13 * time.Hour)
	n, err := f.ledger.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := f.store.Get(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestLedger_AuditOrder(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	order := models.ExecutionOrder{Symbol: "BTCUSDT", Side: models.SideBuy, Quantity: 0.01, ClientOrderID: "sig-1-abc"}

	f.ledger.AuditOrder(ctx, "executor", order, &models.ExecutionResult{OrderID: "o1", Status: models.OrderFilled}, nil)
	f.ledger.AuditOrder(ctx, "twap", order, nil, errors.New("exchange down"))

	es := f.entries(t)
	require.Len(t, es, 2)
	assert.Equal(t, "order.placed", es[0].Action)
	assert.Equal(t, "executor", es[0].Actor)
	assert.Equal(t, "order.rejected", es[1].Action)
	assert.True(t, strings.Contains(string(es[1].Payload), "exchange down"))

	v, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, v.OK)
}

func TestLedger_AuditSignalOutcomes(t *testing.T) {
	f := newLedgerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	weak := testSignal("weak", models.ActionBuy, 0.3, models.PriorityNormal)
	weak.StrategyID = "momentum"
	f.ledger.AuditSignal(ctx, weak, models.SignalProcessingResult{
		SignalID: "weak", Status: models.StatusRejected, RiskScore: 0.42, Error: "Confidence too low",
	})
	f.ledger.AuditSignal(ctx, testSignal("dry", models.ActionSell, 0.9, models.PriorityHigh),
		models.SignalProcessingResult{SignalID: "dry", Status: models.StatusDryRun})
	cancel()
	f.ledger.AuditSignal(ctx, testSignal("late", models.ActionBuy, 0.9, models.PriorityHigh),
		models.SignalProcessingResult{SignalID: "late", Status: models.StatusFailed, Error: "twap still running"})

	es := f.entries(t)
	require.Len(t, es, 3)
	assert.Equal(t, "signal.rejected", es[0].Action)
	assert.Equal(t, "momentum", es[0].Actor)
	assert.JSONEq(t, `{"signalId":"weak","symbol":"BTCUSDT","action":"buy","status":"REJECTED",
		"strategyId":"momentum","riskScore":0.42,"error":"Confidence too low"}`, string(es[0].Payload))
	assert.Equal(t, "signal.dry_run", es[1].Action)
	assert.Equal(t, "processor", es[1].Actor)
	assert.Equal(t, "signal.failed", es[2].Action)

	v, err := f.ledger.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, v.OK)
}
