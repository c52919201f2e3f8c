package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoPrice       = errors.New("no price for symbol")
	ErrUnknownSymbol = errors.New("unknown symbol")
)

var (
	_ drepo.Exchange          = (*PaperExchange)(nil)
	_ drepo.PortfolioProvider = (*PaperExchange)(nil)
)

type PaperConfig struct {
	StartingBalance float64
	FeeRate         float64
	StepSize        float64
	TickSize        float64
	MinQty          float64
	MinNotional     float64
	// Symbols restricts trading to these instruments; empty allows any symbol with a price.
	Symbols      []string
	KlineHistory int
}

type position struct {
	qty      decimal.Decimal
	avgPrice decimal.Decimal
}

// PaperExchange fills orders against the last streamed price and tracks cash,
// positions and PnL. It also serves as the portfolio provider.
type PaperExchange struct {
	log   *logger.Logger
	cfg   PaperConfig
	clock clock.Clock
	fee   decimal.Decimal

	mu          sync.RWMutex
	prices      map[string]float64
	candles     *candleBook
	positions   map[string]*position
	cash        decimal.Decimal
	realized    decimal.Decimal
	peakEquity  decimal.Decimal
	dayKey      string
	dayStartEq  decimal.Decimal
	allowed     map[string]bool
	orderCount  int64
	rejectCount int64
}

func NewPaperExchange(lgr *logger.Logger, cfg PaperConfig, clk clock.Clock) *PaperExchange {
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = 100000
	}
	if cfg.FeeRate <= 0 {
		cfg.FeeRate = 0.001
	}
	if cfg.StepSize <= 0 {
		cfg.StepSize = 0.001
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	start := decimal.NewFromFloat(cfg.StartingBalance)
	p := &PaperExchange{
		log:        lgr.With("paper-exchange"),
		cfg:        cfg,
		clock:      clk,
		fee:        decimal.NewFromFloat(cfg.FeeRate),
		prices:     make(map[string]float64),
		candles:    newCandleBook(cfg.KlineHistory),
		positions:  make(map[string]*position),
		cash:       start,
		peakEquity: start,
		dayKey:     clock.DateKey(clk.Now()),
		dayStartEq: start,
	}
	if len(cfg.Symbols) > 0 {
		p.allowed = make(map[string]bool, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			p.allowed[strings.ToUpper(s)] = true
		}
	}
	return p
}

// OnTrade updates the price book from a market print.
func (p *PaperExchange) OnTrade(t models.Trade) {
	if t.Price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[t.Symbol] = t.Price
	p.candles.add(t)
	p.markLocked()
}

func (p *PaperExchange) GetSymbolFilters(_ context.Context, symbol string) (models.SymbolFilters, error) {
	if p.allowed != nil && !p.allowed[strings.ToUpper(symbol)] {
		return models.SymbolFilters{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return models.SymbolFilters{
		Symbol:      symbol,
		StepSize:    p.cfg.StepSize,
		TickSize:    p.cfg.TickSize,
		MinQty:      p.cfg.MinQty,
		MinNotional: p.cfg.MinNotional,
	}, nil
}

func (p *PaperExchange) GetPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	px, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return px, nil
}

func (p *PaperExchange) GetKlines(_ context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.candles.klines(symbol, interval, limit)
}

func (p *PaperExchange) GetPositionSize(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[symbol]; ok {
		return pos.qty.InexactFloat64(), nil
	}
	return 0, nil
}

// PlaceOrder fills market orders at the last price. Limit orders fill at
// their limit when marketable and are cancelled otherwise. Business
// rejections come back as a result with status rejected.
func (p *PaperExchange) PlaceOrder(ctx context.Context, o models.ExecutionOrder) (models.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ExecutionResult{}, err
	}
	if _, err := p.GetSymbolFilters(ctx, o.Symbol); err != nil {
		return models.ExecutionResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := models.ExecutionResult{
		OrderID:   uuid.NewString(),
		Symbol:    o.Symbol,
		Side:      o.Side,
		Timestamp: p.clock.Now(),
		Metadata:  map[string]interface{}{"clientOrderId": o.ClientOrderID},
	}
	last, ok := p.prices[o.Symbol]
	if !ok {
		return models.ExecutionResult{}, fmt.Errorf("%w: %s", ErrNoPrice, o.Symbol)
	}

	qty := decimal.NewFromFloat(o.Quantity)
	if !qty.IsPositive() || o.Quantity < p.cfg.MinQty {
		return p.rejectLocked(res, "quantity below minimum"), nil
	}

	price := decimal.NewFromFloat(last)
	if o.OrderType == models.OrderLimit {
		limit := decimal.NewFromFloat(o.Price)
		marketable := (o.Side == models.SideBuy && limit.GreaterThanOrEqual(price)) ||
			(o.Side == models.SideSell && limit.LessThanOrEqual(price))
		if !marketable {
			res.Status = models.OrderCancelled
			res.Price = o.Price
			res.Metadata["reason"] = "limit not marketable"
			return res, nil
		}
		price = limit
	}

	pos := p.positions[o.Symbol]
	if pos == nil {
		pos = &position{}
		p.positions[o.Symbol] = pos
	}
	signed := qty
	if o.Side == models.SideSell {
		signed = qty.Neg()
	}
	if o.ReduceOnly {
		if pos.qty.IsZero() || pos.qty.Sign() == signed.Sign() || qty.GreaterThan(pos.qty.Abs()) {
			return p.rejectLocked(res, "reduce-only order would increase position"), nil
		}
	}

	notional := qty.Mul(price)
	fee := notional.Mul(p.fee)
	if o.Side == models.SideBuy && !o.ReduceOnly && p.cash.LessThan(notional.Add(fee)) {
		return p.rejectLocked(res, "insufficient balance"), nil
	}
	if p.cfg.MinNotional > 0 && notional.LessThan(decimal.NewFromFloat(p.cfg.MinNotional)) {
		return p.rejectLocked(res, "notional below minimum"), nil
	}

	p.applyFillLocked(pos, signed, price)
	if o.Side == models.SideBuy {
		p.cash = p.cash.Sub(notional).Sub(fee)
	} else {
		p.cash = p.cash.Add(notional).Sub(fee)
	}
	p.realized = p.realized.Sub(fee)
	p.orderCount++
	p.markLocked()

	res.Quantity = o.Quantity
	res.Price = price.InexactFloat64()
	res.Fees = fee.InexactFloat64()
	res.Status = models.OrderFilled
	p.log.Debug("paper fill",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", res.Quantity),
		logger.Float64("price", res.Price),
		logger.String("client_order_id", o.ClientOrderID))
	return res, nil
}

func (p *PaperExchange) rejectLocked(res models.ExecutionResult, reason string) models.ExecutionResult {
	p.rejectCount++
	res.Status = models.OrderRejected
	res.Metadata["reason"] = reason
	return res
}

// applyFillLocked moves a position by signed qty at price, realizing PnL on the closed part.
func (p *PaperExchange) applyFillLocked(pos *position, signed, price decimal.Decimal) {
	switch {
	case pos.qty.IsZero() || pos.qty.Sign() == signed.Sign():
		total := pos.qty.Add(signed)
		cost := pos.avgPrice.Mul(pos.qty.Abs()).Add(price.Mul(signed.Abs()))
		pos.avgPrice = cost.Div(total.Abs())
		pos.qty = total
	default:
		closed := decimal.Min(pos.qty.Abs(), signed.Abs())
		pnl := price.Sub(pos.avgPrice).Mul(closed)
		if pos.qty.IsNegative() {
			pnl = pnl.Neg()
		}
		p.realized = p.realized.Add(pnl)
		pos.qty = pos.qty.Add(signed)
		switch {
		case pos.qty.IsZero():
			pos.avgPrice = decimal.Zero
		case pos.qty.Sign() == signed.Sign():
			// flipped through zero; the remainder opened at price
			pos.avgPrice = price
		}
	}
}

func (p *PaperExchange) equityLocked() decimal.Decimal {
	eq := p.cash
	for sym, pos := range p.positions {
		if pos.qty.IsZero() {
			continue
		}
		px, ok := p.prices[sym]
		if !ok {
			px = pos.avgPrice.InexactFloat64()
		}
		eq = eq.Add(pos.qty.Mul(decimal.NewFromFloat(px)))
	}
	return eq
}

func (p *PaperExchange) markLocked() {
	eq := p.equityLocked()
	if eq.GreaterThan(p.peakEquity) {
		p.peakEquity = eq
	}
	if key := clock.DateKey(p.clock.Now()); key != p.dayKey {
		p.dayKey = key
		p.dayStartEq = eq
	}
}

func (p *PaperExchange) GetPortfolioStatus(context.Context) (models.PortfolioStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markLocked()

	eq := p.equityLocked()
	start := decimal.NewFromFloat(p.cfg.StartingBalance)
	drawdown := decimal.Zero
	if p.peakEquity.IsPositive() {
		drawdown = p.peakEquity.Sub(eq).Div(p.peakEquity)
	}
	open := 0
	for _, pos := range p.positions {
		if !pos.qty.IsZero() {
			open++
		}
	}
	dd := drawdown.InexactFloat64()
	level := models.RiskLow
	switch {
	case dd >= 0.04:
		level = models.RiskHigh
	case dd >= 0.02:
		level = models.RiskMedium
	}
	return models.PortfolioStatus{
		TotalBalance:  eq.InexactFloat64(),
		TotalPnL:      eq.Sub(start).InexactFloat64(),
		OpenPositions: open,
		DailyPnL:      eq.Sub(p.dayStartEq).InexactFloat64(),
		MaxDrawdown:   dd,
		RiskLevel:     level,
	}, nil
}

type PaperStats struct {
	Orders   int64   `json:"orders"`
	Rejected int64   `json:"rejected"`
	Cash     float64 `json:"cash"`
	Realized float64 `json:"realizedPnl"`
}

func (p *PaperExchange) Stats() PaperStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PaperStats{
		Orders:   p.orderCount,
		Rejected: p.rejectCount,
		Cash:     p.cash.InexactFloat64(),
		Realized: p.realized.InexactFloat64(),
	}
}
