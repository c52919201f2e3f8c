package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
	"FinExec/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditRecorder struct {
	mu      sync.Mutex
	entries []string
	signals []string
}

func (a *auditRecorder) AuditSignal(_ context.Context, sig models.TradingSignal, res models.SignalProcessingResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signals = append(a.signals, "signal."+strings.ToLower(string(res.Status))+":"+sig.ID)
}

func (a *auditRecorder) signalEntries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.signals...)
}

func (a *auditRecorder) AuditOrder(_ context.Context, actor string, o models.ExecutionOrder, res *models.ExecutionResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := "placed"
	if err != nil || res == nil {
		status = "rejected"
	}
	a.entries = append(a.entries, actor+":"+o.ClientOrderID+":"+status)
}

func newTestExecutor(ex *fakeExchange, cfg ExecutorConfig) (*SignalExecutor, *eventRecorder, *auditRecorder) {
	ev := &eventRecorder{}
	au := &auditRecorder{}
	e := NewSignalExecutor(logger.NewNop(), cfg, ex, ev, metrics.Nop{}, au, clock.NewFake(testStart))
	return e, ev, au
}

func TestSignalExecutor_RefusesWhenStopped(t *testing.T) {
	ex := newFakeExchange()
	e, ev, _ := newTestExecutor(ex, ExecutorConfig{})

	res := e.Execute(context.Background(), testSignal("s1", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Success)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, models.ErrExecutorStopped.Error(), res.Error)
	assert.Empty(t, ex.placed())
	assert.Empty(t, e.GetExecutionHistory(0))
	assert.Empty(t, ev.ofType(models.EventSignalFailed))
}

func TestSignalExecutor_BuySellQuantity(t *testing.T) {
	cases := []struct {
		level models.RiskLevel
		side  models.Action
		want  float64
	}{
		{models.RiskLow, models.ActionBuy, 0.004},
		{models.RiskMedium, models.ActionBuy, 0.008},
		{models.RiskHigh, models.ActionSell, 0.012},
	}
	for _, tc := range cases {
		t.Run(string(tc.level), func(t *testing.T) {
			ex := newFakeExchange()
			e, ev, au := newTestExecutor(ex, ExecutorConfig{BaseQuantity: 0.01})
			e.Start()

			sig := testSignal("s-"+string(tc.level), tc.side, 0.85, models.PriorityNormal)
			sig.RiskLevel = tc.level
			res := e.Execute(context.Background(), sig)

			require.True(t, res.Success, res.Error)
			assert.Equal(t, models.StatusExecuted, res.Status)
			assert.Equal(t, "ord-1", res.OrderID)
			orders := ex.placed()
			require.Len(t, orders, 1)
			assert.InDelta(t, tc.want, orders[0].Quantity, 1e-12)
			assert.Equal(t, models.OrderMarket, orders[0].OrderType)
			assert.False(t, orders[0].ReduceOnly)
			assert.Len(t, ev.ofType(models.EventSignalExecuted), 1)
			assert.Len(t, au.entries, 1)
		})
	}
}

func TestSignalExecutor_CloseUsesOppositeReduceOnly(t *testing.T) {
	ex := newFakeExchange()
	e, _, _ := newTestExecutor(ex, ExecutorConfig{})
	e.Start()
	ctx := context.Background()

	ex.positions["BTCUSDT"] = -0.2
	res := e.Execute(ctx, testSignal("c1", models.ActionClose, 0.9, models.PriorityNormal))
	require.True(t, res.Success, res.Error)
	orders := ex.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, models.SideBuy, orders[0].Side)
	assert.True(t, orders[0].ReduceOnly)
	assert.InDelta(t, 0.2, orders[0].Quantity, 1e-12)

	res = e.Execute(ctx, testSignal("c2", models.ActionClose, 0.9, models.PriorityNormal))
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrNoPosition.Error(), res.Error)
}

func TestSignalExecutor_HoldPlacesNothing(t *testing.T) {
	ex := newFakeExchange()
	e, _, _ := newTestExecutor(ex, ExecutorConfig{})
	e.Start()

	res := e.Execute(context.Background(), testSignal("h1", models.ActionHold, 0.5, models.PriorityLow))
	assert.True(t, res.Success)
	assert.Empty(t, res.OrderID)
	assert.Empty(t, ex.placed())
}

func TestSignalExecutor_FailuresBecomeResults(t *testing.T) {
	ex := newFakeExchange()
	ex.failAfter = 0
	e, ev, au := newTestExecutor(ex, ExecutorConfig{})
	e.Start()

	res := e.Execute(context.Background(), testSignal("f1", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "exchange unavailable")
	assert.Len(t, ev.ofType(models.EventSignalFailed), 1)
	assert.Contains(t, au.entries[0], ":rejected")

	ex.failAfter = -1
	ex.status = models.OrderRejected
	res = e.Execute(context.Background(), testSignal("f2", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Success)
	assert.Equal(t, "order rejected", res.Error)
	assert.Empty(t, e.GetActiveSignals())
}

func TestSignalExecutor_OrderTimeout(t *testing.T) {
	ex := newFakeExchange()
	ex.block = make(chan struct{})
	e, _, _ := newTestExecutor(ex, ExecutorConfig{OrderTimeout: 20 * time.Millisecond})
	e.Start()

	res := e.Execute(context.Background(), testSignal("t1", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestSignalExecutor_RejectsDuplicateInFlight(t *testing.T) {
	ex := newFakeExchange()
	ex.block = make(chan struct{})
	e, _, _ := newTestExecutor(ex, ExecutorConfig{})
	e.Start()
	sig := testSignal("dup", models.ActionBuy, 0.9, models.PriorityNormal)

	first := make(chan models.SignalProcessingResult, 1)
	go func() { first <- e.Execute(context.Background(), sig) }()
	require.Eventually(t, func() bool { return e.ActiveCount() == 1 }, time.Second, time.Millisecond)

	second := e.Execute(context.Background(), sig)
	assert.False(t, second.Success)
	assert.Equal(t, models.ErrDuplicateSignal.Error(), second.Error)

	close(ex.block)
	assert.True(t, (<-first).Success)
	assert.Len(t, ex.placed(), 1)
}

func TestSignalExecutor_BoundedHistoryAndStats(t *testing.T) {
	ex := newFakeExchange()
	e, _, _ := newTestExecutor(ex, ExecutorConfig{HistorySize: 3})
	e.Start()
	ctx := context.Background()

	for i, a := range []models.Action{models.ActionHold, models.ActionHold, models.ActionClose, models.ActionHold, models.ActionClose} {
		e.Execute(ctx, testSignal(string(rune('a'+i)), a, 0.9, models.PriorityNormal))
	}
	hist := e.GetExecutionHistory(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "c", hist[0].SignalID)

	st := e.GetExecutionStats()
	assert.Equal(t, 3, st.TotalExecutions)
	assert.InDelta(t, 1.0/3.0, st.SuccessRate, 1e-9)
	assert.Equal(t, testStart, st.LastExecutionTime)

	assert.Len(t, e.GetExecutionHistory(2), 2)
	e.ClearHistory()
	assert.Zero(t, e.GetExecutionStats().TotalExecutions)
}
