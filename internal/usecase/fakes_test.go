package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/internal/repository"
	"FinExec/pkg/cache"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
	"FinExec/pkg/metrics"
)

var testStart = time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

type fakePortfolio struct {
	mu     sync.Mutex
	status models.PortfolioStatus
	err    error
}

func (f *fakePortfolio) GetPortfolioStatus(context.Context) (models.PortfolioStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.err
}

func (f *fakePortfolio) set(s models.PortfolioStatus, err error) {
	f.mu.Lock()
	f.status, f.err = s, err
	f.mu.Unlock()
}

type fakeVolatility struct {
	mu  sync.Mutex
	v   float64
	err error
}

func (f *fakeVolatility) Volatility(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v, f.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Publish(e models.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeExchange fills every order at a fixed price unless told to fail.
type fakeExchange struct {
	mu        sync.Mutex
	price     float64
	step      float64
	positions map[string]float64
	orders    []models.ExecutionOrder
	failAfter int // fail orders once this many were placed; <0 never
	status    models.OrderStatus
	block     chan struct{}
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		price:     50000,
		step:      0.001,
		positions: make(map[string]float64),
		failAfter: -1,
		status:    models.OrderFilled,
	}
}

func (f *fakeExchange) GetSymbolFilters(_ context.Context, symbol string) (models.SymbolFilters, error) {
	return models.SymbolFilters{Symbol: symbol, StepSize: f.step, TickSize: 0.01}, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, o models.ExecutionOrder) (models.ExecutionResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.ExecutionResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.orders) >= f.failAfter {
		return models.ExecutionResult{}, fmt.Errorf("exchange unavailable")
	}
	f.orders = append(f.orders, o)
	if o.Side == models.SideBuy {
		f.positions[o.Symbol] += o.Quantity
	} else {
		f.positions[o.Symbol] -= o.Quantity
	}
	return models.ExecutionResult{
		OrderID:   fmt.Sprintf("ord-%d", len(f.orders)),
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  o.Quantity,
		Price:     f.price,
		Status:    f.status,
		Timestamp: testStart,
	}, nil
}

func (f *fakeExchange) GetPrice(context.Context, string) (float64, error) { return f.price, nil }

func (f *fakeExchange) GetKlines(context.Context, string, string, int) ([]models.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) GetPositionSize(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[symbol], nil
}

func (f *fakeExchange) placed() []models.ExecutionOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ExecutionOrder, len(f.orders))
	copy(out, f.orders)
	return out
}

type riskFixture struct {
	guard     *RiskGuard
	state     *repository.CacheRiskState
	portfolio *fakePortfolio
	vol       *fakeVolatility
	events    *eventRecorder
	clock     *clock.Fake
}

func newRiskFixture(cfg models.RiskConfig) *riskFixture {
	f := &riskFixture{
		state:     repository.NewCacheRiskState(cache.NewMemoryCache(), "risk"),
		portfolio: &fakePortfolio{status: models.PortfolioStatus{TotalBalance: 100000, RiskLevel: models.RiskLow}},
		vol:       &fakeVolatility{v: 0.02},
		events:    &eventRecorder{},
		clock:     clock.NewFake(testStart),
	}
	f.guard = NewRiskGuard(logger.NewNop(), cfg, f.state, f.portfolio, f.vol, f.events, metrics.Nop{}, f.clock)
	return f
}

func testSignal(id string, action models.Action, conf float64, p models.Priority) models.TradingSignal {
	return models.TradingSignal{
		ID:         id,
		Symbol:     "BTCUSDT",
		Action:     action,
		Confidence: conf,
		Priority:   p,
		RiskLevel:  models.RiskMedium,
		Timeframe:  models.TimeframeShort,
		Timestamp:  testStart,
	}
}
