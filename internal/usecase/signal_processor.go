package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
	"FinExec/pkg/queue"
)

// TwapRouting holds the plan shape used when a signal is too large for a single order.
type TwapRouting struct {
	Slices int
	MinMs  int
	MaxMs  int
}

// SignalAuditor records each processing outcome in the audit log.
type SignalAuditor interface {
	AuditSignal(ctx context.Context, sig models.TradingSignal, res models.SignalProcessingResult)
}

// SignalProcessor admits signals into a priority queue and drains them on a
// ticker, at most MaxConcurrentSignals at a time, through the risk gate and
// into the executor or TWAP scheduler.
type SignalProcessor struct {
	log      *logger.Logger
	risk     *RiskGuard
	executor *SignalExecutor
	twap     *TwapScheduler
	exchange drepo.Exchange
	events   drepo.EventSink
	metrics  drepo.Metrics
	sink     drepo.ResultSink
	audit    SignalAuditor
	clock    clock.Clock
	routing  TwapRouting

	queue *queue.PriorityQueue[models.TradingSignal]

	mu       sync.RWMutex
	cfg      models.ProcessorConfig
	running  bool
	active   int
	stopLoop context.CancelFunc
	loopDone chan struct{}
	history  *signalHistory
	counters processorCounters

	workCtx    context.Context
	workCancel context.CancelFunc
	inflight   sync.WaitGroup
}

type processorCounters struct {
	total, validated, rejected, executed, failed, processed int64
	processingTime                                           time.Duration
	lastSignal                                               time.Time
}

func DefaultProcessorConfig() models.ProcessorConfig {
	return models.ProcessorConfig{
		MaxConcurrentSignals: 3,
		ProcessingInterval:   time.Second,
		MaxQueueSize:         100,
		EnableAutoExecution:  true,
		EnableRiskGuards:     true,
		EnableMetrics:        true,
		HistorySize:          1000,
	}
}

func NewSignalProcessor(
	lgr *logger.Logger,
	cfg models.ProcessorConfig,
	routing TwapRouting,
	risk *RiskGuard,
	executor *SignalExecutor,
	twap *TwapScheduler,
	exchange drepo.Exchange,
	events drepo.EventSink,
	metrics drepo.Metrics,
	sink drepo.ResultSink,
	audit SignalAuditor,
	clk clock.Clock,
) *SignalProcessor {
	def := DefaultProcessorConfig()
	if cfg.MaxConcurrentSignals <= 0 {
		cfg.MaxConcurrentSignals = def.MaxConcurrentSignals
	}
	if cfg.ProcessingInterval <= 0 {
		cfg.ProcessingInterval = def.ProcessingInterval
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if routing.Slices <= 0 {
		routing.Slices = 10
	}
	workCtx, workCancel := context.WithCancel(context.Background())
	return &SignalProcessor{
		log:        lgr.With("signal-processor"),
		risk:       risk,
		executor:   executor,
		twap:       twap,
		exchange:   exchange,
		events:     events,
		metrics:    metrics,
		sink:       sink,
		audit:      audit,
		clock:      clk,
		routing:    routing,
		queue:      queue.NewPriorityQueue[models.TradingSignal](cfg.MaxQueueSize),
		cfg:        cfg,
		history:    newSignalHistory(cfg.HistorySize),
		workCtx:    workCtx,
		workCancel: workCancel,
	}
}

// SubmitSignal reports whether the signal was queued.
func (p *SignalProcessor) SubmitSignal(sig models.TradingSignal) bool {
	return p.Submit(sig) == nil
}

// Submit validates and queues a signal. It never waits on risk evaluation.
// Signals are accepted while the processor is stopped and drained on Start.
func (p *SignalProcessor) Submit(sig models.TradingSignal) error {
	if err := sig.Validate(); err != nil {
		p.rejectSubmit(sig, err)
		return err
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = p.clock.Now()
	}
	sig.Executed = false

	if err := p.queue.Push(int(sig.Priority), sig); err != nil {
		p.rejectSubmit(sig, err)
		return err
	}

	p.mu.Lock()
	p.counters.total++
	p.counters.lastSignal = p.clock.Now()
	p.mu.Unlock()

	p.metrics.SignalSubmitted(true)
	p.metrics.QueueDepth(p.queue.Len())
	p.log.Debug("signal queued",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("action", string(sig.Action)),
		logger.String("priority", sig.Priority.String()))
	return nil
}

func (p *SignalProcessor) rejectSubmit(sig models.TradingSignal, err error) {
	p.metrics.SignalSubmitted(false)
	level := p.log.Warn
	if errors.Is(err, queue.ErrQueueFull) {
		level = p.log.Error
	}
	level("signal not queued",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.Error(err))
}

func (p *SignalProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := p.workCtx.Err(); err != nil {
		return fmt.Errorf("processor shut down: %w", err)
	}
	p.executor.Start()

	loopCtx, cancel := context.WithCancel(context.Background())
	p.stopLoop = cancel
	p.loopDone = make(chan struct{})
	p.running = true
	go p.loop(loopCtx, p.loopDone)

	p.log.Info("signal processor started",
		logger.Int("max_concurrent", p.cfg.MaxConcurrentSignals),
		logger.Duration("interval_ms", p.cfg.ProcessingInterval),
		logger.Bool("auto_execution", p.cfg.EnableAutoExecution),
		logger.Bool("risk_guards", p.cfg.EnableRiskGuards))
	return nil
}

// Stop halts draining. Signals already dispatched run to completion.
func (p *SignalProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopLoop()
	done := p.loopDone
	p.mu.Unlock()

	<-done
	p.log.Info("signal processor stopped", logger.Int("queued", p.queue.Len()))
}

// Shutdown stops draining, waits for in-flight signals until ctx expires and
// then stops the executor.
func (p *SignalProcessor) Shutdown(ctx context.Context) error {
	p.Stop()
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight signals: %w", ctx.Err())
	}
	p.workCancel()
	p.executor.Stop()
	return err
}

func (p *SignalProcessor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := p.Config().ProcessingInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
			if next := p.Config().ProcessingInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (p *SignalProcessor) tick() {
	p.mu.Lock()
	free := p.cfg.MaxConcurrentSignals - p.active
	if free <= 0 {
		p.mu.Unlock()
		return
	}
	batch := p.queue.PopN(free)
	p.active += len(batch)
	cfg := p.cfg
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	p.metrics.QueueDepth(p.queue.Len())

	for _, sig := range batch {
		p.inflight.Add(1)
		go func(sig models.TradingSignal) {
			defer p.inflight.Done()
			defer func() {
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
			}()
			p.process(p.workCtx, cfg, sig)
		}(sig)
	}
}

func (p *SignalProcessor) process(ctx context.Context, cfg models.ProcessorConfig, sig models.TradingSignal) {
	start := time.Now()
	var res models.SignalProcessingResult

	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("signal processing panic", logger.String("signal_id", sig.ID), logger.Any("panic", r))
				res = p.result(sig, start, models.StatusFailed, fmt.Errorf("processing panic: %v", r))
			}
		}()
		res = p.evaluate(ctx, cfg, sig, start)
	}()

	if res.Success {
		sig.Executed = true
	}
	p.record(ctx, cfg, sig, res)
}

func (p *SignalProcessor) evaluate(ctx context.Context, cfg models.ProcessorConfig, sig models.TradingSignal, start time.Time) models.SignalProcessingResult {
	var risk models.RiskGuardResult
	var slot *TradeSlot
	if cfg.EnableRiskGuards {
		risk, slot = p.risk.Reserve(ctx, sig)
		if !risk.Allowed {
			res := p.result(sig, start, models.StatusRejected, errors.New(risk.Reason))
			res.RiskScore = risk.RiskScore
			return res
		}
		defer slot.Release()
	}

	p.mu.Lock()
	p.counters.validated++
	p.mu.Unlock()

	if !cfg.EnableAutoExecution {
		res := p.result(sig, start, models.StatusDryRun, nil)
		res.RiskScore = risk.RiskScore
		res.Metadata["recommendations"] = risk.Recommendations
		return res
	}

	var res models.SignalProcessingResult
	if plan, ok := p.twapPlan(ctx, cfg, sig); ok {
		res = p.routeTwap(ctx, sig, plan, start)
	} else {
		res = p.executor.Execute(ctx, sig)
	}
	res.RiskScore = risk.RiskScore

	if res.Success {
		if err := slot.Commit(ctx); err != nil {
			p.log.Error("record trade", logger.String("signal_id", sig.ID), logger.Error(err))
		}
	}
	return res
}

// twapPlan decides whether a buy or sell is large enough to slice.
func (p *SignalProcessor) twapPlan(ctx context.Context, cfg models.ProcessorConfig, sig models.TradingSignal) (models.TwapPlan, bool) {
	if p.twap == nil || cfg.TwapNotionalThreshold <= 0 {
		return models.TwapPlan{}, false
	}
	if sig.Action != models.ActionBuy && sig.Action != models.ActionSell {
		return models.TwapPlan{}, false
	}
	price, err := p.exchange.GetPrice(ctx, sig.Symbol)
	if err != nil || price <= 0 {
		p.log.Warn("price unavailable, skipping twap routing", logger.String("symbol", sig.Symbol), logger.Error(err))
		return models.TwapPlan{}, false
	}
	qty := p.executor.PlanQuantity(sig)
	if qty*price <= cfg.TwapNotionalThreshold {
		return models.TwapPlan{}, false
	}
	side := models.SideBuy
	if sig.Action == models.ActionSell {
		side = models.SideSell
	}
	return models.TwapPlan{
		Symbol:   sig.Symbol,
		Side:     side,
		TotalQty: qty,
		Slices:   p.routing.Slices,
		MinMs:    p.routing.MinMs,
		MaxMs:    p.routing.MaxMs,
		Type:     models.OrderMarket,
		SignalID: sig.ID,
	}, true
}

// routeTwap runs the plan to completion while holding the signal's slot. The
// signal counts as executed once at least one slice was sent; an abort after
// that is reported on the result but keeps it executed.
func (p *SignalProcessor) routeTwap(ctx context.Context, sig models.TradingSignal, plan models.TwapPlan, start time.Time) models.SignalProcessingResult {
	h, err := p.twap.CreateTwap(ctx, plan)
	if err != nil {
		return p.result(sig, start, models.StatusFailed, fmt.Errorf("create twap: %w", err))
	}
	p.log.Info("signal routed to twap",
		logger.String("signal_id", sig.ID),
		logger.String("twap_id", h.ID),
		logger.Float64("qty", plan.TotalQty))

	var runErr error
	select {
	case <-h.Done():
		// Err is closed before Done
		runErr = <-h.Err()
	case <-ctx.Done():
		runErr = fmt.Errorf("twap still running: %w", ctx.Err())
	}
	st := h.Snapshot().State

	var res models.SignalProcessingResult
	switch {
	case st.Sent > 0:
		res = p.result(sig, start, models.StatusExecuted, runErr)
	case runErr != nil:
		res = p.result(sig, start, models.StatusFailed, fmt.Errorf("twap %s: %w", h.ID, runErr))
	default:
		res = p.result(sig, start, models.StatusFailed, fmt.Errorf("twap %s cancelled before any slice", h.ID))
	}
	res.Metadata["twapId"] = h.ID
	res.Metadata["quantity"] = plan.TotalQty
	res.Metadata["slices"] = plan.Slices
	res.Metadata["slicesSent"] = st.Sent
	res.Metadata["filled"] = st.Filled
	if st.Sent > 0 && st.Sent < plan.Slices {
		res.Metadata["partial"] = true
	}
	return res
}

func (p *SignalProcessor) result(sig models.TradingSignal, start time.Time, status models.ResultStatus, err error) models.SignalProcessingResult {
	res := models.SignalProcessingResult{
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		Success:       status == models.StatusExecuted,
		Status:        status,
		ExecutionTime: time.Since(start),
		Timestamp:     p.clock.Now(),
		Metadata:      map[string]interface{}{"action": string(sig.Action)},
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (p *SignalProcessor) record(ctx context.Context, cfg models.ProcessorConfig, sig models.TradingSignal, res models.SignalProcessingResult) {
	p.mu.Lock()
	p.history.add(sig, res)
	p.counters.processed++
	p.counters.processingTime += res.ExecutionTime
	switch res.Status {
	case models.StatusExecuted:
		p.counters.executed++
	case models.StatusRejected:
		p.counters.rejected++
	case models.StatusFailed:
		p.counters.failed++
	}
	p.mu.Unlock()

	if p.audit != nil {
		p.audit.AuditSignal(ctx, sig, res)
	}
	if cfg.EnableMetrics {
		p.metrics.SignalProcessed(res.Status, sig.Symbol, res.ExecutionTime)
	}
	p.events.Publish(models.Event{
		Type:      models.EventSignalProcessed,
		Symbol:    sig.Symbol,
		Timestamp: res.Timestamp,
		Payload:   models.ExecutionEvent{Signal: sig, Result: res},
	})
	if p.sink != nil {
		if err := p.sink.Store(ctx, sig, res); err != nil {
			p.metrics.RecordError("result_sink")
			p.log.Warn("store signal result", logger.String("signal_id", sig.ID), logger.Error(err))
		}
	}

	fields := []logger.Field{
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("status", string(res.Status)),
		logger.Float64("risk_score", res.RiskScore),
		logger.Duration("latency_ms", res.ExecutionTime),
	}
	switch res.Status {
	case models.StatusFailed:
		p.log.Error("signal failed", append(fields, logger.String("error", res.Error))...)
	case models.StatusRejected:
		p.log.Warn("signal rejected", append(fields, logger.String("reason", res.Error))...)
	default:
		p.log.Info("signal processed", fields...)
	}
}

// ClearQueue drops queued signals and returns how many were removed.
func (p *SignalProcessor) ClearQueue() int {
	n := p.queue.Clear()
	p.metrics.QueueDepth(0)
	p.log.Info("signal queue cleared", logger.Int("dropped", n))
	return n
}

func (p *SignalProcessor) GetStatus() models.ProcessorStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state := models.ProcessorStopped
	if p.running {
		state = models.ProcessorRunning
	}
	return models.ProcessorStatus{
		State:         state,
		QueueSize:     p.queue.Len(),
		ActiveSignals: p.active,
		IsRunning:     p.running,
	}
}

func (p *SignalProcessor) GetMetrics() models.ProcessorMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := p.counters
	m := models.ProcessorMetrics{
		TotalSignals:     c.total,
		ValidatedSignals: c.validated,
		RejectedSignals:  c.rejected,
		ExecutedSignals:  c.executed,
		FailedSignals:    c.failed,
		LastSignalTime:   c.lastSignal,
		QueueSize:        p.queue.Len(),
		ActiveSignals:    p.active,
	}
	if c.processed > 0 {
		m.AverageProcessingTime = float64(c.processingTime.Microseconds()) / float64(c.processed) / 1000
		m.SuccessRate = float64(c.executed) / float64(c.processed)
	}
	return m
}

func (p *SignalProcessor) GetSignalHistory(symbol string, limit int) []models.TradingSignal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.signals(symbol, limit)
}

func (p *SignalProcessor) GetExecutionHistory(signalID string, limit int) []models.SignalProcessingResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.results(signalID, limit)
}

func (p *SignalProcessor) Config() models.ProcessorConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// UpdateConfig merges patch into the running config; the next tick uses it.
// An invalid result leaves the config unchanged and wraps models.ErrInvalidConfig.
func (p *SignalProcessor) UpdateConfig(patch models.ProcessorConfigPatch) (models.ProcessorConfig, error) {
	p.mu.Lock()
	next := p.cfg.Merge(patch)
	if err := next.Validate(); err != nil {
		cur := p.cfg
		p.mu.Unlock()
		return cur, err
	}
	if next.MaxQueueSize != p.cfg.MaxQueueSize {
		if err := p.queue.SetCapacity(next.MaxQueueSize); err != nil {
			cur := p.cfg
			p.mu.Unlock()
			return cur, fmt.Errorf("%w: %w", models.ErrInvalidConfig, err)
		}
	}
	p.cfg = next
	cfg := p.cfg
	p.mu.Unlock()

	p.log.Info("processor config updated",
		logger.Int("max_concurrent", cfg.MaxConcurrentSignals),
		logger.Int("max_queue", cfg.MaxQueueSize),
		logger.Bool("auto_execution", cfg.EnableAutoExecution),
		logger.Bool("risk_guards", cfg.EnableRiskGuards))
	return cfg, nil
}
