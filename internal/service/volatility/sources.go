package volatility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/internal/service/features"
	svcmetrics "FinExec/internal/service/metrics"
	"FinExec/pkg/logger"
)

var ErrInsufficientData = errors.New("not enough candles for a volatility estimate")

// Static always reports the same volatility.
type Static float64

func (s Static) Volatility(context.Context, string) (float64, error) { return float64(s), nil }

// KlineSource serves candles straight from the exchange connector.
type KlineSource struct {
	Exchange drepo.Exchange
}

func (k KlineSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return k.Exchange.GetKlines(ctx, symbol, interval, limit)
}

type Method string

const (
	MethodEMA      Method = "ema"
	MethodRealized Method = "realized"
)

type CandleConfig struct {
	Interval string
	Lookback int
	Period   int
	Method   Method
}

// CandleEstimator derives volatility from recent bars.
type CandleEstimator struct {
	source drepo.CandleSource
	cfg    CandleConfig
	name   string
}

func NewCandleEstimator(name string, source drepo.CandleSource, cfg CandleConfig) *CandleEstimator {
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.Period <= 1 {
		cfg.Period = 14
	}
	if cfg.Lookback < cfg.Period+1 {
		cfg.Lookback = cfg.Period * 4
	}
	if cfg.Method == "" {
		cfg.Method = MethodEMA
	}
	return &CandleEstimator{source: source, cfg: cfg, name: name}
}

func (e *CandleEstimator) Volatility(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	defer func() {
		svcmetrics.VolatilityLatency.WithLabelValues(e.name).Observe(time.Since(start).Seconds())
	}()

	cs, err := e.source.Candles(ctx, symbol, e.cfg.Interval, e.cfg.Lookback)
	if err != nil {
		svcmetrics.VolatilityErrors.WithLabelValues(e.name).Inc()
		return 0, fmt.Errorf("%s candles: %w", e.name, err)
	}
	if len(cs) < 2 {
		svcmetrics.VolatilityErrors.WithLabelValues(e.name).Inc()
		return 0, fmt.Errorf("%s %s: %w", e.name, symbol, ErrInsufficientData)
	}
	if e.cfg.Method == MethodRealized {
		rets := features.ComputeLogReturns(cs)
		return features.RealizedVolatility(rets, min(e.cfg.Period, len(rets)), 1), nil
	}
	return features.AbsReturnEMA(cs, e.cfg.Period), nil
}

// Chain tries each source in order and returns the first estimate.
type Chain struct {
	log     *logger.Logger
	sources []drepo.VolatilitySource
}

func NewChain(lgr *logger.Logger, sources ...drepo.VolatilitySource) *Chain {
	return &Chain{log: lgr.With("volatility"), sources: sources}
}

func (c *Chain) Volatility(ctx context.Context, symbol string) (float64, error) {
	var errs []error
	for i, s := range c.sources {
		v, err := s.Volatility(ctx, symbol)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
		if i < len(c.sources)-1 {
			c.log.Debug("volatility source failed, trying next", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	if len(errs) == 0 {
		return 0, fmt.Errorf("no volatility sources configured")
	}
	return 0, errors.Join(errs...)
}
