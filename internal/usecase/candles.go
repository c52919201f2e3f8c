package usecase

import (
	"context"
	"fmt"
	"strings"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
	"FinExec/pkg/logger"
)

// CandlesUseCase serves bars from the persisted store and falls back to the
// exchange connector when the store has nothing for the symbol.
type CandlesUseCase struct {
	store    domrepo.CandleSource
	exchange domrepo.Exchange
	log      *logger.Logger
}

// NewCandlesUseCase accepts a nil store.
func NewCandlesUseCase(lgr *logger.Logger, store domrepo.CandleSource, exchange domrepo.Exchange) *CandlesUseCase {
	return &CandlesUseCase{store: store, exchange: exchange, log: lgr.With("candles")}
}

type GetCandlesParams struct {
	Symbol   string
	Interval string
	Limit    int
}

type GetCandlesResult struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	Source   string          `json:"source"`
	Count    int             `json:"count"`
	Candles  []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	p.Symbol = strings.ToUpper(p.Symbol)
	if p.Interval == "" {
		p.Interval = "1m"
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	source := "store"
	var candles []models.Candle
	if uc.store != nil {
		var err error
		candles, err = uc.store.Candles(ctx, p.Symbol, p.Interval, p.Limit)
		if err != nil {
			uc.log.Warn("candle store read failed, using exchange",
				logger.String("symbol", p.Symbol),
				logger.Error(err))
			candles = nil
		}
	}
	if len(candles) == 0 {
		source = "exchange"
		var err error
		candles, err = uc.exchange.GetKlines(ctx, p.Symbol, p.Interval, p.Limit)
		if err != nil {
			return nil, fmt.Errorf("get klines: %w", err)
		}
	}

	return &GetCandlesResult{
		Symbol:   p.Symbol,
		Interval: p.Interval,
		Source:   source,
		Count:    len(candles),
		Candles:  candles,
	}, nil
}
