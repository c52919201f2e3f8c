package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
)

// CandleStore persists closed bars.
type CandleStore interface {
	StoreCandles(ctx context.Context, interval string, candles []models.Candle) error
}

// CandleBuilder folds trade prints into one-minute bars and writes closed
// bars to the store in batches.
type CandleBuilder struct {
	log     *logger.Logger
	store   CandleStore
	metrics drepo.Metrics
	clock   clock.Clock
	batchSz int
	batchTO time.Duration

	mu      sync.Mutex
	open    map[string]*models.Candle
	closed  []models.Candle
	flushMu sync.Mutex
}

func NewCandleBuilder(lgr *logger.Logger, store CandleStore, metrics drepo.Metrics, clk clock.Clock, batchSz int, batchTO time.Duration) *CandleBuilder {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = 5 * time.Second
	}
	return &CandleBuilder{
		log:     lgr.With("candle-builder"),
		store:   store,
		metrics: metrics,
		clock:   clk,
		batchSz: batchSz,
		batchTO: batchTO,
		open:    make(map[string]*models.Candle),
	}
}

// Process adds a trade to its symbol's current bar. A trade in a later minute
// closes the previous bar; late trades for a closed minute are ignored.
func (b *CandleBuilder) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}
	bucket := t.Timestamp.UTC().Truncate(time.Minute)

	b.mu.Lock()
	c := b.open[t.Symbol]
	switch {
	case c == nil || bucket.After(c.Bucket):
		if c != nil {
			b.closed = append(b.closed, *c)
		}
		b.open[t.Symbol] = &models.Candle{
			Bucket: bucket, Symbol: t.Symbol,
			Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume,
		}
	case bucket.Equal(c.Bucket):
		c.High = max(c.High, t.Price)
		c.Low = min(c.Low, t.Price)
		c.Close = t.Price
		c.Volume += t.Volume
	}
	full := len(b.closed) >= b.batchSz
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush closes bars whose minute has passed and writes every closed bar.
// On a store error the batch is kept for the next attempt.
func (b *CandleBuilder) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	cutoff := b.clock.Now().UTC().Truncate(time.Minute)
	b.mu.Lock()
	for sym, c := range b.open {
		if c.Bucket.Before(cutoff) {
			b.closed = append(b.closed, *c)
			delete(b.open, sym)
		}
	}
	batch := b.closed
	b.closed = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.store.StoreCandles(ctx, "1m", batch); err != nil {
		b.metrics.RecordError("candle_store")
		b.mu.Lock()
		b.closed = append(batch, b.closed...)
		b.mu.Unlock()
		return fmt.Errorf("store candles: %w", err)
	}
	b.log.Debug("candles stored",
		logger.Int("count", len(batch)),
		logger.Duration("duration_ms", time.Since(start)))
	return nil
}

// Run flushes on the batch timeout until ctx is done, then flushes once more.
func (b *CandleBuilder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.batchTO)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := b.Flush(flushCtx); err != nil {
				b.log.Warn("final candle flush", logger.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.log.Warn("candle flush", logger.Error(err))
			}
		}
	}
}

// Pending reports bars waiting to be written, open ones included.
func (b *CandleBuilder) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.closed) + len(b.open)
}
