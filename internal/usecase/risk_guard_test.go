package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"FinExec/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskGuard_AllowsCleanSignal(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	res := f.guard.CheckSignal(context.Background(), testSignal("s1", models.ActionBuy, 0.85, models.PriorityCritical))

	require.True(t, res.Allowed, res.Reason)
	assert.InDelta(t, 0.0972, res.RiskScore, 1e-9)
	assert.Equal(t, []string{"Enable guarded orders with stop-loss"}, res.Recommendations)
	assert.Empty(t, f.events.ofType(models.EventRiskBlocked))
}

func TestRiskGuard_SellRecommendsReduceOnly(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	res := f.guard.CheckSignal(context.Background(), testSignal("s1", models.ActionSell, 0.9, models.PriorityNormal))
	require.True(t, res.Allowed)
	assert.Contains(t, res.Recommendations, "Use reduce-only orders for safety")
}

func TestRiskGuard_EmergencyStopBlocksFirst(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	ctx := context.Background()
	require.NoError(t, f.guard.SetEmergencyStop(ctx, true, "manual"))
	f.portfolio.set(models.PortfolioStatus{}, errors.New("must not be called"))

	for _, p := range []models.Priority{models.PriorityLow, models.PriorityCritical} {
		res := f.guard.CheckSignal(ctx, testSignal("s", models.ActionBuy, 1, p))
		assert.False(t, res.Allowed)
		assert.Equal(t, 1.0, res.RiskScore)
		assert.Equal(t, "Emergency stop active", res.Reason)
	}
	status, err := f.guard.GetRiskStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.EmergencyStop)
	assert.Nil(t, status.Portfolio, "portfolio is not refreshed while stopped")

	require.NoError(t, f.guard.SetEmergencyStop(ctx, false, ""))
	f.portfolio.set(models.PortfolioStatus{TotalBalance: 100000}, nil)
	assert.True(t, f.guard.CheckSignal(ctx, testSignal("s", models.ActionBuy, 0.9, models.PriorityNormal)).Allowed)
}

func TestRiskGuard_InfrastructureErrorsBlock(t *testing.T) {
	ctx := context.Background()

	f := newRiskFixture(models.DefaultRiskConfig())
	f.portfolio.set(models.PortfolioStatus{}, errors.New("timeout"))
	res := f.guard.CheckSignal(ctx, testSignal("s1", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Allowed)
	assert.Equal(t, 1.0, res.RiskScore)
	assert.Contains(t, res.Reason, "portfolio status")

	f = newRiskFixture(models.DefaultRiskConfig())
	f.vol.err = errors.New("no candles")
	res = f.guard.CheckSignal(ctx, testSignal("s2", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Allowed)
	assert.Equal(t, 1.0, res.RiskScore)
	assert.Len(t, f.events.ofType(models.EventRiskBlocked), 1)
}

func TestRiskGuard_FailedChecksJoinReasons(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	f.vol.v = 0.08
	res := f.guard.CheckSignal(context.Background(), testSignal("s1", models.ActionBuy, 0.5, models.PriorityNormal))

	assert.False(t, res.Allowed)
	assert.Equal(t, "Signal confidence too low (50.0% < 70.0%), Market too volatile (8.0% > 5.0%)", res.Reason)
	assert.Contains(t, res.Recommendations, "Wait for higher confidence signal")
	assert.Contains(t, res.Recommendations, "Wait for market to stabilize")
}

func TestRiskGuard_PositionSizeAndDrawdown(t *testing.T) {
	ctx := context.Background()
	f := newRiskFixture(models.DefaultRiskConfig())

	f.portfolio.set(models.PortfolioStatus{TotalBalance: 10000}, nil)
	res := f.guard.CheckSignal(ctx, testSignal("s1", models.ActionBuy, 0.85, models.PriorityCritical))
	assert.False(t, res.Allowed)
	assert.Equal(t, "Position size too large (17.0% > 10.0%)", res.Reason)

	f.portfolio.set(models.PortfolioStatus{TotalBalance: 100000, MaxDrawdown: -0.042}, nil)
	res = f.guard.CheckSignal(ctx, testSignal("s2", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.True(t, res.Allowed)
	alerts := f.guard.GetRiskAlerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, "High drawdown warning: 4.2%", alerts[len(alerts)-1].Message)

	f.portfolio.set(models.PortfolioStatus{TotalBalance: 100000, MaxDrawdown: -0.06}, nil)
	res = f.guard.CheckSignal(ctx, testSignal("s3", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Allowed)
	assert.Equal(t, "Maximum drawdown exceeded (6.0% >= 5.0%)", res.Reason)
}

func TestRiskGuard_DailyCounterResetsOncePerDate(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.MaxDailyTrades = 2
	cfg.CooldownPeriod = 0
	f := newRiskFixture(cfg)
	ctx := context.Background()
	sig := testSignal("s", models.ActionBuy, 0.9, models.PriorityNormal)

	require.NoError(t, f.guard.RecordTrade(ctx))
	require.NoError(t, f.guard.RecordTrade(ctx))
	res := f.guard.CheckSignal(ctx, sig)
	assert.False(t, res.Allowed)
	assert.Equal(t, "Daily trade limit exceeded (2/2)", res.Reason)

	f.clock.Advance(24 * time.Hour)
	assert.True(t, f.guard.CheckSignal(ctx, sig).Allowed)

	require.NoError(t, f.guard.RecordTrade(ctx))
	assert.True(t, f.guard.CheckSignal(ctx, sig).Allowed)
	status, err := f.guard.GetRiskStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.DailyTradeCount, "later calls on the same date keep the count")

	require.NoError(t, f.guard.RecordTrade(ctx))
	assert.False(t, f.guard.CheckSignal(ctx, sig).Allowed)
}

func TestRiskGuard_ReserveHoldsDailySlots(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.MaxDailyTrades = 2
	cfg.CooldownPeriod = 0
	f := newRiskFixture(cfg)
	ctx := context.Background()
	sig := testSignal("s", models.ActionBuy, 0.9, models.PriorityNormal)

	res1, slot1 := f.guard.Reserve(ctx, sig)
	require.True(t, res1.Allowed)
	require.NotNil(t, slot1)
	res2, slot2 := f.guard.Reserve(ctx, sig)
	require.True(t, res2.Allowed)

	res3, slot3 := f.guard.Reserve(ctx, sig)
	assert.False(t, res3.Allowed)
	assert.Nil(t, slot3)
	assert.Equal(t, "Daily trade limit exceeded (2/2)", res3.Reason)
	assert.False(t, f.guard.CheckSignal(ctx, sig).Allowed)

	slot2.Release()
	slot2.Release()
	assert.True(t, f.guard.CheckSignal(ctx, sig).Allowed)

	require.NoError(t, slot1.Commit(ctx))
	status, err := f.guard.GetRiskStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.DailyTradeCount)

	_, slot4 := f.guard.Reserve(ctx, sig)
	require.NotNil(t, slot4)
	res5, _ := f.guard.Reserve(ctx, sig)
	assert.False(t, res5.Allowed)
	slot4.Release()
}

func TestRiskGuard_BlockedSignalReleasesSlot(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.MaxDailyTrades = 1
	f := newRiskFixture(cfg)
	ctx := context.Background()

	res, slot := f.guard.Reserve(ctx, testSignal("weak", models.ActionBuy, 0.3, models.PriorityNormal))
	assert.False(t, res.Allowed)
	assert.Nil(t, slot)

	res, slot = f.guard.Reserve(ctx, testSignal("ok", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.True(t, res.Allowed)
	slot.Release()
}

func TestRiskGuard_Cooldown(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	ctx := context.Background()
	sig := testSignal("s", models.ActionBuy, 0.9, models.PriorityNormal)

	require.NoError(t, f.guard.RecordTrade(ctx))
	f.clock.Advance(4 * time.Minute)
	res := f.guard.CheckSignal(ctx, sig)
	assert.False(t, res.Allowed)
	assert.Equal(t, "Cooldown period active (60s remaining)", res.Reason)

	f.clock.Advance(time.Minute)
	assert.True(t, f.guard.CheckSignal(ctx, sig).Allowed)
}

func TestRiskGuard_ScoreAlwaysInUnitInterval(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.MaxDailyTrades = 1
	f := newRiskFixture(cfg)
	ctx := context.Background()

	priorities := []models.Priority{models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityCritical}
	for i, dd := range []float64{0, -0.03, -0.2, -1} {
		f.portfolio.set(models.PortfolioStatus{TotalBalance: float64(100 + i*50000), MaxDrawdown: dd}, nil)
		for _, vol := range []float64{0, 0.04, 0.5} {
			f.vol.v = vol
			for _, conf := range []float64{0, 0.5, 1} {
				for _, p := range priorities {
					res := f.guard.CheckSignal(ctx, testSignal("s", models.ActionBuy, conf, p))
					assert.GreaterOrEqual(t, res.RiskScore, 0.0)
					assert.LessOrEqual(t, res.RiskScore, 1.0)
				}
			}
		}
		require.NoError(t, f.guard.RecordTrade(ctx))
	}
}

func TestRiskGuard_DailyLossTripsEmergencyStop(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	ctx := context.Background()
	f.portfolio.set(models.PortfolioStatus{TotalBalance: 100000, DailyPnL: -12000}, nil)

	res := f.guard.CheckSignal(ctx, testSignal("s", models.ActionBuy, 0.9, models.PriorityNormal))
	assert.False(t, res.Allowed)
	assert.Equal(t, 1.0, res.RiskScore)
	on, err := f.state.EmergencyStop(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, f.events.ofType(models.EventEmergencyStop), 1)
}

func TestRiskGuard_AlertsAreBoundedAndResetClears(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	ctx := context.Background()
	for i := 0; i < 130; i++ {
		require.NoError(t, f.guard.SetEmergencyStop(ctx, i%2 == 0, fmt.Sprintf("r%d", i)))
	}
	alerts := f.guard.GetRiskAlerts()
	require.Len(t, alerts, 100)
	assert.Contains(t, alerts[99].Message, "r129")

	require.NoError(t, f.guard.RecordTrade(ctx))
	require.NoError(t, f.guard.SetEmergencyStop(ctx, true, ""))
	require.NoError(t, f.guard.Reset(ctx))
	assert.Empty(t, f.guard.GetRiskAlerts())
	status, err := f.guard.GetRiskStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.EmergencyStop)
	assert.Zero(t, status.DailyTradeCount)
	assert.True(t, status.LastTradeTime.IsZero())
}

func TestRiskGuard_UpdateConfigMerges(t *testing.T) {
	f := newRiskFixture(models.DefaultRiskConfig())
	minConf := 0.95
	cfg := f.guard.UpdateRiskConfig(models.RiskConfigPatch{MinConfidence: &minConf})
	assert.Equal(t, 0.95, cfg.MinConfidence)
	assert.Equal(t, 10, cfg.MaxDailyTrades)
	assert.False(t, f.guard.CheckSignal(context.Background(), testSignal("s", models.ActionBuy, 0.9, models.PriorityNormal)).Allowed)
}
