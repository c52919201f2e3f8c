package exchange

import (
	"context"
	"fmt"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"

	"golang.org/x/time/rate"
)

// RateLimited throttles outbound calls to an exchange connector. Orders and
// market data draw from separate buckets.
type RateLimited struct {
	inner  drepo.Exchange
	orders *rate.Limiter
	reads  *rate.Limiter
}

var _ drepo.Exchange = (*RateLimited)(nil)

func NewRateLimited(inner drepo.Exchange, ordersPerSec float64, orderBurst int, readsPerSec float64, readBurst int) *RateLimited {
	return &RateLimited{
		inner:  inner,
		orders: newLimiter(ordersPerSec, orderBurst),
		reads:  newLimiter(readsPerSec, readBurst),
	}
}

func newLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func (r *RateLimited) GetSymbolFilters(ctx context.Context, symbol string) (models.SymbolFilters, error) {
	if err := r.reads.Wait(ctx); err != nil {
		return models.SymbolFilters{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.GetSymbolFilters(ctx, symbol)
}

func (r *RateLimited) PlaceOrder(ctx context.Context, order models.ExecutionOrder) (models.ExecutionResult, error) {
	if err := r.orders.Wait(ctx); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.PlaceOrder(ctx, order)
}

func (r *RateLimited) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := r.reads.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.GetPrice(ctx, symbol)
}

func (r *RateLimited) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if err := r.reads.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.GetKlines(ctx, symbol, interval, limit)
}

func (r *RateLimited) GetPositionSize(ctx context.Context, symbol string) (float64, error) {
	if err := r.reads.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.GetPositionSize(ctx, symbol)
}
