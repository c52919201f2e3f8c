package volatility

import (
	"context"
	"errors"
	"time"

	drepo "FinExec/internal/domain/repository"
	svcmetrics "FinExec/internal/service/metrics"
	"FinExec/pkg/cache"
)

// Cached memoizes estimates per symbol for TTL.
type Cached struct {
	inner  drepo.VolatilitySource
	cache  cache.Service
	ttl    time.Duration
	prefix string
}

func NewCached(inner drepo.VolatilitySource, c cache.Service, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{inner: inner, cache: c, ttl: ttl, prefix: "volatility"}
}

func (c *Cached) Volatility(ctx context.Context, symbol string) (float64, error) {
	key := cache.Key(c.prefix, symbol)
	var v float64
	err := c.cache.Get(ctx, key, &v)
	if err == nil {
		svcmetrics.VolatilityCacheHits.Inc()
		return v, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return c.inner.Volatility(ctx, symbol)
	}

	v, err = c.inner.Volatility(ctx, symbol)
	if err != nil {
		return 0, err
	}
	_ = c.cache.Set(ctx, key, v, c.ttl)
	return v, nil
}
