package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"

	"github.com/google/uuid"
)

// OrderAuditor records order placements in the audit log.
type OrderAuditor interface {
	AuditOrder(ctx context.Context, actor string, order models.ExecutionOrder, res *models.ExecutionResult, err error)
}

type ExecutorConfig struct {
	BaseQuantity float64
	OrderTimeout time.Duration
	HistorySize  int
}

// SignalExecutor turns an approved signal into an exchange order. A signal
// id is held in the active set from dispatch until its result is recorded.
type SignalExecutor struct {
	log      *logger.Logger
	exchange drepo.Exchange
	events   drepo.EventSink
	metrics  drepo.Metrics
	audit    OrderAuditor
	clock    clock.Clock
	cfg      ExecutorConfig

	mu      sync.RWMutex
	running bool
	active  map[string]time.Time
	history []models.SignalProcessingResult
}

func NewSignalExecutor(
	lgr *logger.Logger,
	cfg ExecutorConfig,
	exchange drepo.Exchange,
	events drepo.EventSink,
	metrics drepo.Metrics,
	audit OrderAuditor,
	clk clock.Clock,
) *SignalExecutor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if cfg.BaseQuantity <= 0 {
		cfg.BaseQuantity = 0.01
	}
	return &SignalExecutor{
		log:      lgr.With("signal-executor"),
		exchange: exchange,
		events:   events,
		metrics:  metrics,
		audit:    audit,
		clock:    clk,
		cfg:      cfg,
		active:   make(map[string]time.Time),
	}
}

func (e *SignalExecutor) Start() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	e.log.Info("signal executor started")
}

// Stop refuses new executions; in-flight ones finish.
func (e *SignalExecutor) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.log.Info("signal executor stopped")
}

func (e *SignalExecutor) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Execute never returns an error; failures are reported in the result.
func (e *SignalExecutor) Execute(ctx context.Context, sig models.TradingSignal) (res models.SignalProcessingResult) {
	start := time.Now()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return e.failure(sig, start, models.ErrExecutorStopped)
	}
	if _, busy := e.active[sig.ID]; busy {
		e.mu.Unlock()
		return e.failure(sig, start, models.ErrDuplicateSignal)
	}
	e.active[sig.ID] = e.clock.Now()
	e.metrics.ActiveSignals(len(e.active))
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("execute panic", logger.String("signal_id", sig.ID), logger.Any("panic", r))
			res = e.failure(sig, start, fmt.Errorf("execution panic: %v", r))
		}
		e.finish(sig, res)
	}()

	var (
		order *models.ExecutionResult
		err   error
	)
	switch sig.Action {
	case models.ActionBuy:
		order, err = e.marketOrder(ctx, sig, models.SideBuy)
	case models.ActionSell:
		order, err = e.marketOrder(ctx, sig, models.SideSell)
	case models.ActionClose:
		order, err = e.closePosition(ctx, sig)
	case models.ActionHold:
	default:
		err = fmt.Errorf("%w: unknown action %q", models.ErrInvalidSignal, sig.Action)
	}

	if err != nil {
		return e.failure(sig, start, err)
	}
	res = models.SignalProcessingResult{
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		Success:       true,
		Status:        models.StatusExecuted,
		ExecutionTime: time.Since(start),
		Timestamp:     e.clock.Now(),
		Metadata:      map[string]interface{}{"action": string(sig.Action)},
	}
	if order != nil {
		res.OrderID = order.OrderID
		res.Metadata["price"] = order.Price
		res.Metadata["quantity"] = order.Quantity
		res.Metadata["fees"] = order.Fees
		if order.Status != models.OrderFilled {
			res.Success = false
			res.Status = models.StatusFailed
			res.Error = fmt.Sprintf("order %s", order.Status)
		}
	}
	return res
}

// PlanQuantity is the base quantity a buy or sell signal would trade before step rounding.
func (e *SignalExecutor) PlanQuantity(sig models.TradingSignal) float64 {
	return e.cfg.BaseQuantity * sig.Confidence * riskMultiplier(sig.RiskLevel)
}

func (e *SignalExecutor) marketOrder(ctx context.Context, sig models.TradingSignal, side models.OrderSide) (*models.ExecutionResult, error) {
	filters, err := e.exchange.GetSymbolFilters(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol filters: %w", err)
	}
	qty := floorToStep(e.PlanQuantity(sig), filters.StepSize)
	if qty <= 0 {
		return nil, fmt.Errorf("quantity below step size %v", filters.StepSize)
	}
	return e.place(ctx, models.ExecutionOrder{
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      qty,
		OrderType:     models.OrderMarket,
		ClientOrderID: clientOrderID(sig.ID),
		Metadata:      map[string]interface{}{"signalId": sig.ID, "confidence": sig.Confidence},
	})
}

func (e *SignalExecutor) closePosition(ctx context.Context, sig models.TradingSignal) (*models.ExecutionResult, error) {
	pos, err := e.exchange.GetPositionSize(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("position size: %w", err)
	}
	if pos == 0 {
		return nil, models.ErrNoPosition
	}
	side := models.SideSell
	if pos < 0 {
		side = models.SideBuy
	}
	return e.place(ctx, models.ExecutionOrder{
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      math.Abs(pos),
		OrderType:     models.OrderMarket,
		ReduceOnly:    true,
		ClientOrderID: clientOrderID(sig.ID),
		Metadata:      map[string]interface{}{"signalId": sig.ID, "close": true},
	})
}

func (e *SignalExecutor) place(ctx context.Context, order models.ExecutionOrder) (*models.ExecutionResult, error) {
	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()

	res, err := e.exchange.PlaceOrder(octx, order)
	if e.audit != nil {
		var rp *models.ExecutionResult
		if err == nil {
			rp = &res
		}
		e.audit.AuditOrder(ctx, "executor", order, rp, err)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("place order: timed out after %s", e.cfg.OrderTimeout)
		}
		return nil, fmt.Errorf("place order: %w", err)
	}
	e.metrics.OrderPlaced(order.Symbol, order.Side, res.Status)
	return &res, nil
}

func (e *SignalExecutor) failure(sig models.TradingSignal, start time.Time, err error) models.SignalProcessingResult {
	return models.SignalProcessingResult{
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		Success:       false,
		Status:        models.StatusFailed,
		ExecutionTime: time.Since(start),
		Timestamp:     e.clock.Now(),
		Error:         err.Error(),
		Metadata:      map[string]interface{}{"action": string(sig.Action)},
	}
}

func (e *SignalExecutor) finish(sig models.TradingSignal, res models.SignalProcessingResult) {
	e.mu.Lock()
	delete(e.active, sig.ID)
	e.metrics.ActiveSignals(len(e.active))
	e.history = append(e.history, res)
	if n := len(e.history); n > e.cfg.HistorySize {
		e.history = append(e.history[:0:0], e.history[n-e.cfg.HistorySize:]...)
	}
	e.mu.Unlock()

	evType := models.EventSignalExecuted
	if !res.Success {
		evType = models.EventSignalFailed
	}
	e.events.Publish(models.Event{
		Type:      evType,
		Symbol:    sig.Symbol,
		Timestamp: res.Timestamp,
		Payload:   models.ExecutionEvent{Signal: sig, Result: res},
	})
	e.log.Info("signal executed",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("action", string(sig.Action)),
		logger.String("status", string(res.Status)),
		logger.String("order_id", res.OrderID),
		logger.Duration("latency_ms", res.ExecutionTime))
}

func (e *SignalExecutor) GetActiveSignals() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.active))
	for id := range e.active {
		out = append(out, id)
	}
	return out
}

func (e *SignalExecutor) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active)
}

// GetExecutionHistory returns up to limit most recent results, newest last.
func (e *SignalExecutor) GetExecutionHistory(limit int) []models.SignalProcessingResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	from := 0
	if limit > 0 && len(e.history) > limit {
		from = len(e.history) - limit
	}
	out := make([]models.SignalProcessingResult, len(e.history)-from)
	copy(out, e.history[from:])
	return out
}

func (e *SignalExecutor) GetExecutionStats() models.ExecutionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := models.ExecutionStats{TotalExecutions: len(e.history), ActiveSignals: len(e.active)}
	if len(e.history) == 0 {
		return st
	}
	var ok int
	var total time.Duration
	for _, r := range e.history {
		if r.Success {
			ok++
		}
		total += r.ExecutionTime
	}
	st.SuccessRate = float64(ok) / float64(len(e.history))
	st.AverageExecutionTime = float64(total.Microseconds()) / float64(len(e.history)) / 1000
	st.LastExecutionTime = e.history[len(e.history)-1].Timestamp
	return st
}

func (e *SignalExecutor) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

// clientOrderID is unique per dispatch; the signal id prefix keeps orders traceable.
func clientOrderID(signalID string) string {
	id := uuid.NewString()
	if signalID == "" {
		return id
	}
	return fmt.Sprintf("sig-%s-%s", signalID, id[:8])
}
