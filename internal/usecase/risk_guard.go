package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
)

const maxRiskAlerts = 100

// check weights, in evaluation order
var riskWeights = [...]float64{0.20, 0.30, 0.20, 0.15, 0.10, 0.05}

type checkResult struct {
	passed          bool
	reason          string
	risk            float64
	recommendations []string
}

// RiskGuard scores a signal against portfolio and trading state and decides
// whether it may be executed. Shared state lives in the RiskStateStore;
// config, the last portfolio snapshot and alerts are local.
type RiskGuard struct {
	log       *logger.Logger
	state     drepo.RiskStateStore
	portfolio drepo.PortfolioProvider
	vol       drepo.VolatilitySource
	events    drepo.EventSink
	metrics   drepo.Metrics
	clock     clock.Clock

	mu            sync.RWMutex
	cfg           models.RiskConfig
	lastPortfolio *models.PortfolioStatus
	alerts        []models.RiskAlert
	lastDateKey   string

	// slots held by approved signals that have not executed yet
	slotMu   sync.Mutex
	reserved int
}

// TradeSlot is a daily trade slot held between approval and execution.
// Commit counts the trade; Release gives the slot back. Both are safe on nil.
type TradeSlot struct {
	g    *RiskGuard
	once sync.Once
}

func (s *TradeSlot) Commit(ctx context.Context) error {
	if s == nil {
		return nil
	}
	err := s.g.RecordTrade(ctx)
	s.Release()
	return err
}

func (s *TradeSlot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.g.slotMu.Lock()
		s.g.reserved--
		s.g.slotMu.Unlock()
	})
}

func NewRiskGuard(
	lgr *logger.Logger,
	cfg models.RiskConfig,
	state drepo.RiskStateStore,
	portfolio drepo.PortfolioProvider,
	vol drepo.VolatilitySource,
	events drepo.EventSink,
	metrics drepo.Metrics,
	clk clock.Clock,
) *RiskGuard {
	return &RiskGuard{
		log:       lgr.With("risk-guard"),
		state:     state,
		portfolio: portfolio,
		vol:       vol,
		events:    events,
		metrics:   metrics,
		clock:     clk,
		cfg:       cfg,
	}
}

// CheckSignal never returns an error: infrastructure failures block the
// signal with the maximum risk score.
func (g *RiskGuard) CheckSignal(ctx context.Context, sig models.TradingSignal) models.RiskGuardResult {
	res, _ := g.evaluate(ctx, sig, false)
	return res
}

// Reserve evaluates sig like CheckSignal and, when it is allowed, holds one
// daily trade slot so concurrent approvals cannot overshoot MaxDailyTrades.
// The slot is nil when the signal is blocked.
func (g *RiskGuard) Reserve(ctx context.Context, sig models.TradingSignal) (models.RiskGuardResult, *TradeSlot) {
	return g.evaluate(ctx, sig, true)
}

func (g *RiskGuard) evaluate(ctx context.Context, sig models.TradingSignal, reserve bool) (res models.RiskGuardResult, slot *TradeSlot) {
	stopped, err := g.state.EmergencyStop(ctx)
	if err != nil {
		return g.infraFailure(sig, "emergency stop", err), nil
	}
	if stopped {
		res = models.RiskGuardResult{
			Allowed:         false,
			Reason:          "Emergency stop active",
			RiskScore:       1.0,
			Recommendations: []string{"Wait for emergency stop to be cleared"},
		}
		g.blocked(sig, res)
		return res, nil
	}

	cfg := g.Config()
	pf, err := g.portfolio.GetPortfolioStatus(ctx)
	if err != nil {
		return g.infraFailure(sig, "portfolio status", err), nil
	}
	g.mu.Lock()
	g.lastPortfolio = &pf
	g.mu.Unlock()

	if tripped, err := g.maybeTripEmergencyStop(ctx, cfg, pf); err != nil {
		return g.infraFailure(sig, "emergency stop", err), nil
	} else if tripped {
		res = models.RiskGuardResult{
			Allowed:         false,
			Reason:          "Emergency stop active",
			RiskScore:       1.0,
			Recommendations: []string{"Wait for emergency stop to be cleared"},
		}
		g.blocked(sig, res)
		return res, nil
	}

	daily, held, err := g.checkDailyLimit(ctx, cfg, reserve)
	if err != nil {
		return g.infraFailure(sig, "daily trade count", err), nil
	}
	if held {
		slot = &TradeSlot{g: g}
		defer func() {
			if !res.Allowed {
				slot.Release()
				slot = nil
			}
		}()
	}
	volatility, err := g.vol.Volatility(ctx, sig.Symbol)
	if err != nil {
		return g.infraFailure(sig, "volatility", err), slot
	}
	cooldown, err := g.checkCooldown(ctx, cfg)
	if err != nil {
		return g.infraFailure(sig, "last trade time", err), slot
	}

	checks := [...]checkResult{
		daily,
		g.checkDrawdown(cfg, pf, sig),
		checkPositionSize(cfg, pf, sig),
		checkConfidence(cfg, sig),
		checkVolatility(cfg, volatility),
		cooldown,
	}

	score := riskScore(checks[:], sig.Priority)
	g.metrics.RiskScore(score)

	var reasons, recs []string
	for _, c := range checks {
		if !c.passed {
			reasons = append(reasons, c.reason)
			recs = append(recs, c.recommendations...)
		}
	}
	if len(reasons) > 0 {
		res = models.RiskGuardResult{
			Allowed:         false,
			Reason:          strings.Join(reasons, ", "),
			RiskScore:       score,
			Recommendations: recs,
		}
		g.blocked(sig, res)
		return res, slot
	}

	if score > 0.7 {
		g.addAlert(models.SeverityWarning, "risk_warning", sig.ID,
			fmt.Sprintf("High risk signal %s %s: score %.2f", sig.Symbol, sig.Action, score))
		g.events.Publish(models.Event{
			Type:      models.EventRiskWarning,
			Symbol:    sig.Symbol,
			Timestamp: g.clock.Now(),
			Payload:   models.RiskEvent{SignalID: sig.ID, RiskScore: score},
		})
	}
	return models.RiskGuardResult{
		Allowed:         true,
		RiskScore:       score,
		Recommendations: allowedRecommendations(cfg, sig, score),
	}, slot
}

// RecordTrade counts an executed trade and starts the cooldown.
func (g *RiskGuard) RecordTrade(ctx context.Context) error {
	now := g.clock.Now()
	if _, err := g.state.IncrementDaily(ctx, clock.DateKey(now)); err != nil {
		return err
	}
	return g.state.SetLastTradeTime(ctx, now)
}

func (g *RiskGuard) SetEmergencyStop(ctx context.Context, active bool, reason string) error {
	if err := g.state.SetEmergencyStop(ctx, active); err != nil {
		return fmt.Errorf("set emergency stop: %w", err)
	}
	msg := "Emergency stop cleared"
	sev := models.SeverityInfo
	if active {
		msg, sev = "Emergency stop activated", models.SeverityCritical
	}
	if reason != "" {
		msg += ": " + reason
	}
	g.addAlert(sev, "emergency_stop", "", msg)
	g.events.Publish(models.Event{
		Type:      models.EventEmergencyStop,
		Timestamp: g.clock.Now(),
		Payload:   models.RiskEvent{Reason: reason, RiskScore: 1.0, Active: &active},
	})
	g.log.Warn("emergency stop changed", logger.Bool("active", active), logger.String("reason", reason))
	return nil
}

func (g *RiskGuard) Config() models.RiskConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

func (g *RiskGuard) UpdateRiskConfig(p models.RiskConfigPatch) models.RiskConfig {
	g.mu.Lock()
	g.cfg = g.cfg.Merge(p)
	cfg := g.cfg
	g.mu.Unlock()
	g.log.Info("risk config updated", logger.Any("config", cfg))
	return cfg
}

func (g *RiskGuard) GetRiskStatus(ctx context.Context) (models.RiskStatus, error) {
	stopped, err := g.state.EmergencyStop(ctx)
	if err != nil {
		return models.RiskStatus{}, err
	}
	count, err := g.state.DailyCount(ctx, clock.DateKey(g.clock.Now()))
	if err != nil {
		return models.RiskStatus{}, err
	}
	last, err := g.state.LastTradeTime(ctx)
	if err != nil {
		return models.RiskStatus{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	st := models.RiskStatus{
		EmergencyStop:   stopped,
		DailyTradeCount: count,
		MaxDailyTrades:  g.cfg.MaxDailyTrades,
		LastTradeTime:   last,
		Config:          g.cfg,
		AlertCount:      len(g.alerts),
	}
	if g.lastPortfolio != nil {
		pf := *g.lastPortfolio
		st.Portfolio = &pf
	}
	return st, nil
}

// GetRiskAlerts returns the retained alerts, oldest first.
func (g *RiskGuard) GetRiskAlerts() []models.RiskAlert {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.RiskAlert, len(g.alerts))
	copy(out, g.alerts)
	return out
}

// Reset clears the daily count, last trade time, emergency stop and alerts.
func (g *RiskGuard) Reset(ctx context.Context) error {
	if err := g.state.Reset(ctx); err != nil {
		return fmt.Errorf("reset risk state: %w", err)
	}
	g.mu.Lock()
	g.alerts = nil
	g.lastPortfolio = nil
	g.lastDateKey = ""
	g.mu.Unlock()
	g.log.Info("risk guard reset")
	return nil
}

// checkDailyLimit counts stored trades plus held slots. With reserve set a
// passing check takes a slot under the same lock.
func (g *RiskGuard) checkDailyLimit(ctx context.Context, cfg models.RiskConfig, reserve bool) (checkResult, bool, error) {
	dateKey := clock.DateKey(g.clock.Now())
	g.mu.Lock()
	if g.lastDateKey != dateKey {
		if g.lastDateKey != "" {
			g.log.Info("daily trade counter rolled over",
				logger.String("from", g.lastDateKey),
				logger.String("to", dateKey))
		}
		g.lastDateKey = dateKey
	}
	g.mu.Unlock()

	g.slotMu.Lock()
	defer g.slotMu.Unlock()
	count, err := g.state.DailyCount(ctx, dateKey)
	if err != nil {
		return checkResult{}, false, err
	}
	count += g.reserved
	if count >= cfg.MaxDailyTrades {
		return checkResult{
			reason:          fmt.Sprintf("Daily trade limit exceeded (%d/%d)", count, cfg.MaxDailyTrades),
			risk:            0.9,
			recommendations: []string{"Wait for next trading day or increase daily limit"},
		}, false, nil
	}
	if reserve {
		g.reserved++
	}
	return checkResult{passed: true, risk: 0.1}, reserve, nil
}

func (g *RiskGuard) checkDrawdown(cfg models.RiskConfig, pf models.PortfolioStatus, sig models.TradingSignal) checkResult {
	dd := math.Abs(pf.MaxDrawdown)
	if dd >= cfg.MaxDrawdown {
		return checkResult{
			reason: fmt.Sprintf("Maximum drawdown exceeded (%.1f%% >= %.1f%%)", dd*100, cfg.MaxDrawdown*100),
			risk:   0.95,
			recommendations: []string{
				"Close some positions to reduce risk",
				"Review trading strategy",
				"Consider emergency stop",
			},
		}
	}
	if dd >= cfg.MaxDrawdown*0.8 {
		g.addAlert(models.SeverityWarning, "drawdown", sig.ID, fmt.Sprintf("High drawdown warning: %.1f%%", dd*100))
	}
	return checkResult{passed: true, risk: clamp01(dd / cfg.MaxDrawdown)}
}

func checkPositionSize(cfg models.RiskConfig, pf models.PortfolioStatus, sig models.TradingSignal) checkResult {
	if pf.TotalBalance <= 0 {
		return checkResult{
			reason:          "Portfolio balance unavailable",
			risk:            0.8,
			recommendations: []string{"Fund the account before trading"},
		}
	}
	ratio := EstimatePositionValue(cfg, sig) / pf.TotalBalance
	if ratio > cfg.MaxPositionSize {
		return checkResult{
			reason: fmt.Sprintf("Position size too large (%.1f%% > %.1f%%)", ratio*100, cfg.MaxPositionSize*100),
			risk:   0.8,
			recommendations: []string{
				"Reduce position size",
				"Split order into smaller parts",
				"Wait for better entry point",
			},
		}
	}
	return checkResult{passed: true, risk: clamp01(ratio / cfg.MaxPositionSize)}
}

// EstimatePositionValue is the notional the gate assumes a signal will trade.
func EstimatePositionValue(cfg models.RiskConfig, sig models.TradingSignal) float64 {
	mult := 1.0
	switch sig.Priority {
	case models.PriorityCritical:
		mult = 2.0
	case models.PriorityHigh:
		mult = 1.5
	}
	return cfg.BasePositionValue * sig.Confidence * mult
}

func checkConfidence(cfg models.RiskConfig, sig models.TradingSignal) checkResult {
	if sig.Confidence < cfg.MinConfidence {
		return checkResult{
			reason: fmt.Sprintf("Signal confidence too low (%.1f%% < %.1f%%)", sig.Confidence*100, cfg.MinConfidence*100),
			risk:   0.7,
			recommendations: []string{
				"Wait for higher confidence signal",
				"Review signal generation logic",
				"Adjust confidence threshold if needed",
			},
		}
	}
	return checkResult{passed: true, risk: clamp01(1 - sig.Confidence)}
}

func checkVolatility(cfg models.RiskConfig, vol float64) checkResult {
	if vol > cfg.VolatilityThreshold {
		return checkResult{
			reason: fmt.Sprintf("Market too volatile (%.1f%% > %.1f%%)", vol*100, cfg.VolatilityThreshold*100),
			risk:   0.6,
			recommendations: []string{
				"Wait for market to stabilize",
				"Use smaller position sizes",
				"Consider hedging strategies",
			},
		}
	}
	return checkResult{passed: true, risk: clamp01(vol / cfg.VolatilityThreshold)}
}

func (g *RiskGuard) checkCooldown(ctx context.Context, cfg models.RiskConfig) (checkResult, error) {
	last, err := g.state.LastTradeTime(ctx)
	if err != nil {
		return checkResult{}, err
	}
	if !last.IsZero() {
		if elapsed := g.clock.Now().Sub(last); elapsed < cfg.CooldownPeriod {
			remaining := math.Ceil((cfg.CooldownPeriod - elapsed).Seconds())
			return checkResult{
				reason:          fmt.Sprintf("Cooldown period active (%.0fs remaining)", remaining),
				risk:            0.4,
				recommendations: []string{"Wait for cooldown period to end"},
			}, nil
		}
	}
	return checkResult{passed: true, risk: 0.1}, nil
}

// maybeTripEmergencyStop activates the stop when today's loss reaches the
// configured share of the balance.
func (g *RiskGuard) maybeTripEmergencyStop(ctx context.Context, cfg models.RiskConfig, pf models.PortfolioStatus) (bool, error) {
	if cfg.EmergencyStopThreshold <= 0 || pf.TotalBalance <= 0 || pf.DailyPnL >= 0 {
		return false, nil
	}
	loss := -pf.DailyPnL / pf.TotalBalance
	if loss < cfg.EmergencyStopThreshold {
		return false, nil
	}
	reason := fmt.Sprintf("daily loss %.1f%% reached threshold %.1f%%", loss*100, cfg.EmergencyStopThreshold*100)
	return true, g.SetEmergencyStop(ctx, true, reason)
}

func riskScore(checks []checkResult, p models.Priority) float64 {
	var sum, total float64
	for i, c := range checks {
		sum += c.risk * riskWeights[i]
		total += riskWeights[i]
	}
	score := sum / total
	switch p {
	case models.PriorityCritical:
		score *= 0.8
	case models.PriorityHigh:
		score *= 0.9
	case models.PriorityLow:
		score *= 1.2
	}
	return clamp01(score)
}

func allowedRecommendations(cfg models.RiskConfig, sig models.TradingSignal, score float64) []string {
	var recs []string
	if score > 0.7 {
		recs = append(recs, "Consider reducing position size", "Monitor closely for early exit")
	}
	if cfg.EnableReduceOnly && sig.Action == models.ActionSell {
		recs = append(recs, "Use reduce-only orders for safety")
	}
	if cfg.EnableGuardedOrders {
		recs = append(recs, "Enable guarded orders with stop-loss")
	}
	return recs
}

func (g *RiskGuard) infraFailure(sig models.TradingSignal, what string, err error) models.RiskGuardResult {
	g.log.Error("risk check failed",
		logger.String("signal_id", sig.ID),
		logger.String("stage", what),
		logger.Error(err))
	g.metrics.RecordError("risk_" + strings.ReplaceAll(what, " ", "_"))
	res := models.RiskGuardResult{
		Allowed:         false,
		Reason:          fmt.Sprintf("Risk check failed: %s: %v", what, err),
		RiskScore:       1.0,
		Recommendations: []string{"Retry once the risk data source recovers"},
	}
	g.blocked(sig, res)
	return res
}

func (g *RiskGuard) blocked(sig models.TradingSignal, res models.RiskGuardResult) {
	g.metrics.RiskScore(res.RiskScore)
	g.events.Publish(models.Event{
		Type:      models.EventRiskBlocked,
		Symbol:    sig.Symbol,
		Timestamp: g.clock.Now(),
		Payload:   models.RiskEvent{SignalID: sig.ID, Reason: res.Reason, RiskScore: res.RiskScore},
	})
	g.log.Info("signal blocked",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("reason", res.Reason),
		logger.Float64("risk_score", res.RiskScore))
}

func (g *RiskGuard) addAlert(sev models.AlertSeverity, kind, signalID, msg string) {
	alert := models.RiskAlert{Type: kind, Severity: sev, Message: msg, SignalID: signalID, Timestamp: g.clock.Now()}
	g.mu.Lock()
	g.alerts = append(g.alerts, alert)
	if n := len(g.alerts); n > maxRiskAlerts {
		g.alerts = append(g.alerts[:0:0], g.alerts[n-maxRiskAlerts:]...)
	}
	g.mu.Unlock()
	g.events.Publish(models.Event{Type: models.EventRiskAlert, Timestamp: alert.Timestamp, Payload: alert})
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(0, math.Min(1, v))
}
