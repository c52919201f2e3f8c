package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"

	"github.com/google/uuid"
)

type TwapConfig struct {
	SliceTimeout   time.Duration
	RetainFinished time.Duration
}

// TwapHandle lets the caller follow a running plan. Err yields the abort
// error, if any, and is closed when the plan finishes.
type TwapHandle struct {
	ID   string
	done chan struct{}
	errs chan error
	run  *twapRun
}

func (h *TwapHandle) Done() <-chan struct{} { return h.done }
func (h *TwapHandle) Err() <-chan error     { return h.errs }
func (h *TwapHandle) Cancel()               { h.run.requestCancel() }

// Snapshot returns the plan's current progress.
func (h *TwapHandle) Snapshot() models.TwapSnapshot { return h.run.snapshot() }

type twapRun struct {
	mu       sync.Mutex
	plan     models.TwapPlan
	state    models.TwapState
	cancelCh chan struct{}
	once     sync.Once
}

func (r *twapRun) requestCancel() {
	r.once.Do(func() {
		r.mu.Lock()
		r.state.Cancelled = true
		r.mu.Unlock()
		close(r.cancelCh)
	})
}

func (r *twapRun) cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Cancelled
}

func (r *twapRun) snapshot() models.TwapSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state
	if st.FinishedAt != nil {
		t := *st.FinishedAt
		st.FinishedAt = &t
	}
	return models.TwapSnapshot{Plan: r.plan, State: st}
}

// TwapScheduler slices parent orders into jittered child orders. Each plan
// runs in its own supervised goroutine; the first failed slice aborts the
// rest of that plan.
type TwapScheduler struct {
	log      *logger.Logger
	exchange drepo.Exchange
	events   drepo.EventSink
	metrics  drepo.Metrics
	audit    OrderAuditor
	clock    clock.Clock
	cfg      TwapConfig

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	runs  map[string]*twapRun
	stats models.TwapStats
	rng   *rand.Rand
}

func NewTwapScheduler(
	lgr *logger.Logger,
	cfg TwapConfig,
	exchange drepo.Exchange,
	events drepo.EventSink,
	metrics drepo.Metrics,
	audit OrderAuditor,
	clk clock.Clock,
) *TwapScheduler {
	if cfg.SliceTimeout <= 0 {
		cfg.SliceTimeout = 10 * time.Second
	}
	if cfg.RetainFinished <= 0 {
		cfg.RetainFinished = time.Hour
	}
	root, cancel := context.WithCancel(context.Background())
	return &TwapScheduler{
		log:      lgr.With("twap"),
		exchange: exchange,
		events:   events,
		metrics:  metrics,
		audit:    audit,
		clock:    clk,
		cfg:      cfg,
		root:     root,
		cancel:   cancel,
		runs:     make(map[string]*twapRun),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateTwap validates and starts a plan. The plan outlives ctx; use the
// handle or CancelTwap to stop it.
func (s *TwapScheduler) CreateTwap(ctx context.Context, plan models.TwapPlan) (*TwapHandle, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if plan.Type == "" {
		plan.Type = models.OrderMarket
	}
	if err := s.root.Err(); err != nil {
		return nil, fmt.Errorf("twap scheduler closed: %w", err)
	}
	plan.ID = uuid.NewString()

	run := &twapRun{
		plan:     plan,
		state:    models.TwapState{StartedAt: s.clock.Now()},
		cancelCh: make(chan struct{}),
	}
	h := &TwapHandle{ID: plan.ID, done: make(chan struct{}), errs: make(chan error, 1), run: run}

	s.mu.Lock()
	s.purgeLocked(s.clock.Now())
	s.runs[plan.ID] = run
	s.stats.Started++
	s.mu.Unlock()

	s.events.Publish(models.Event{
		Type:      models.EventTwapStarted,
		Symbol:    plan.Symbol,
		Timestamp: run.state.StartedAt,
		Payload:   models.TwapEvent{PlanID: plan.ID},
	})
	s.log.Info("twap started",
		logger.String("plan_id", plan.ID),
		logger.String("symbol", plan.Symbol),
		logger.String("side", string(plan.Side)),
		logger.Float64("total_qty", plan.TotalQty),
		logger.Int("slices", plan.Slices))

	s.wg.Add(1)
	go s.supervise(run, h)
	return h, nil
}

func (s *TwapScheduler) CancelTwap(id string) bool {
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	run.requestCancel()
	return true
}

func (s *TwapScheduler) GetTwap(id string) (models.TwapSnapshot, error) {
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return models.TwapSnapshot{}, fmt.Errorf("%w: %s", models.ErrUnknownTwap, id)
	}
	return run.snapshot(), nil
}

func (s *TwapScheduler) Stats() models.TwapStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	for _, r := range s.runs {
		r.mu.Lock()
		if !r.state.Done {
			st.Active++
		}
		r.mu.Unlock()
	}
	return st
}

// Purge drops finished plans older than RetainFinished and returns how many were removed.
func (s *TwapScheduler) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.clock.Now())
}

func (s *TwapScheduler) purgeLocked(now time.Time) int {
	n := 0
	for id, r := range s.runs {
		r.mu.Lock()
		expired := r.state.Done && r.state.FinishedAt != nil && now.Sub(*r.state.FinishedAt) >= s.cfg.RetainFinished
		r.mu.Unlock()
		if expired {
			delete(s.runs, id)
			n++
		}
	}
	return n
}

// Close aborts every running plan, including in-flight orders, and waits for them.
func (s *TwapScheduler) Close(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for twap plans: %w", ctx.Err())
	}
}

func (s *TwapScheduler) supervise(run *twapRun, h *TwapHandle) {
	defer s.wg.Done()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("twap panic: %v", r)
		}
		s.finish(run, err)
		if err != nil {
			h.errs <- err
		}
		close(h.errs)
		close(h.done)
	}()
	err = s.runSlices(run)
}

func (s *TwapScheduler) runSlices(run *twapRun) error {
	plan := run.plan
	filters, err := s.exchange.GetSymbolFilters(s.root, plan.Symbol)
	if err != nil {
		return fmt.Errorf("symbol filters: %w", err)
	}
	qty := floorToStep(math.Max(plan.TotalQty/float64(plan.Slices), filters.StepSize), filters.StepSize)
	if qty <= 0 {
		return fmt.Errorf("slice quantity below step size %v", filters.StepSize)
	}

	for i := 0; i < plan.Slices; i++ {
		if run.cancelled() {
			return nil
		}
		if err := s.root.Err(); err != nil {
			return err
		}

		res, err := s.placeSlice(plan, i, qty)
		if err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}

		run.mu.Lock()
		run.state.Sent++
		run.state.Filled += res.Quantity
		sent := run.state.Sent
		run.mu.Unlock()

		s.mu.Lock()
		s.stats.SlicesSent++
		s.mu.Unlock()
		s.metrics.TwapSlice(plan.Symbol)
		s.events.Publish(models.Event{
			Type:      models.EventTwapSlice,
			Symbol:    plan.Symbol,
			Timestamp: s.clock.Now(),
			Payload:   models.TwapEvent{PlanID: plan.ID, Slice: i, Qty: res.Quantity, OrderID: res.OrderID, Sent: sent},
		})

		if i < plan.Slices-1 {
			s.sleep(run, s.jitter(plan.MinMs, plan.MaxMs))
		}
	}
	return nil
}

func (s *TwapScheduler) placeSlice(plan models.TwapPlan, i int, qty float64) (models.ExecutionResult, error) {
	order := models.ExecutionOrder{
		Symbol:        plan.Symbol,
		Side:          plan.Side,
		Quantity:      qty,
		OrderType:     plan.Type,
		ClientOrderID: fmt.Sprintf("twap-%s-%d", plan.ID, i),
		Metadata:      map[string]interface{}{"twapId": plan.ID, "slice": i},
	}
	if plan.Type == models.OrderLimit {
		order.Price = plan.LimitPrice
	}
	if plan.SignalID != "" {
		order.Metadata["signalId"] = plan.SignalID
	}

	ctx, cancel := context.WithTimeout(s.root, s.cfg.SliceTimeout)
	defer cancel()
	res, err := s.exchange.PlaceOrder(ctx, order)
	if s.audit != nil {
		var rp *models.ExecutionResult
		if err == nil {
			rp = &res
		}
		s.audit.AuditOrder(s.root, "twap", order, rp, err)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, fmt.Errorf("place order: timed out after %s", s.cfg.SliceTimeout)
		}
		return res, fmt.Errorf("place order: %w", err)
	}
	s.metrics.OrderPlaced(order.Symbol, order.Side, res.Status)
	if res.Status == models.OrderRejected || res.Status == models.OrderCancelled {
		return res, fmt.Errorf("order %s", res.Status)
	}
	return res, nil
}

// sleep returns early on cancellation or shutdown; the loop re-checks at the top.
func (s *TwapScheduler) sleep(run *twapRun, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-run.cancelCh:
	case <-s.root.Done():
	}
}

func (s *TwapScheduler) jitter(minMs, maxMs int) time.Duration {
	ms := minMs
	if maxMs > minMs {
		s.mu.Lock()
		ms += s.rng.Intn(maxMs - minMs + 1)
		s.mu.Unlock()
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *TwapScheduler) finish(run *twapRun, err error) {
	now := s.clock.Now()
	run.mu.Lock()
	run.state.Done = true
	run.state.FinishedAt = &now
	if err != nil {
		run.state.Err = err.Error()
	}
	cancelled := run.state.Cancelled
	sent := run.state.Sent
	run.mu.Unlock()

	outcome := "completed"
	s.mu.Lock()
	switch {
	case err != nil:
		outcome = "errored"
		s.stats.Errored++
	case cancelled && sent < run.plan.Slices:
		outcome = "cancelled"
		s.stats.Cancelled++
	default:
		s.stats.Completed++
	}
	s.mu.Unlock()
	s.metrics.TwapFinished(outcome)

	ev := models.TwapEvent{PlanID: run.plan.ID, Sent: sent}
	fields := []logger.Field{
		logger.String("plan_id", run.plan.ID),
		logger.String("outcome", outcome),
		logger.Int("sent", sent),
		logger.Int("slices", run.plan.Slices),
	}
	if err != nil {
		ev.Error = err.Error()
		s.log.Error("twap aborted", append(fields, logger.Error(err))...)
	} else {
		s.log.Info("twap finished", fields...)
	}
	s.events.Publish(models.Event{Type: models.EventTwapFinished, Symbol: run.plan.Symbol, Timestamp: now, Payload: ev})
}
