package usecase

import (
	"context"
	"sync"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/logger"
)

// TradeSink consumes market prints, e.g. the paper exchange price book.
type TradeSink interface {
	OnTrade(t models.Trade)
}

// PriceCollector streams trades from the market feed into the price book and
// the candle builder, reconnecting when the stream fails.
type PriceCollector struct {
	log     *logger.Logger
	stream  drepo.MarketStream
	sink    TradeSink
	candles *CandleBuilder
	metrics drepo.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPriceCollector accepts a nil candle builder when bars are not persisted.
func NewPriceCollector(lgr *logger.Logger, stream drepo.MarketStream, sink TradeSink, candles *CandleBuilder, metrics drepo.Metrics) *PriceCollector {
	return &PriceCollector{log: lgr.With("price-collector"), stream: stream, sink: sink, candles: candles, metrics: metrics}
}

func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	var wg sync.WaitGroup
	if c.candles != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.candles.Run(runCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.consume(runCtx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
	return nil
}

func (c *PriceCollector) consume(ctx context.Context) {
	for {
		trCh, errCh := c.stream.Read(ctx)
		c.drain(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		for {
			err := c.stream.Reconnect(ctx)
			if err == nil {
				c.log.Info("market stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("market stream reconnect failed", logger.Error(err))
		}
	}
}

// drain returns when the stream reports an error or its channels close.
func (c *PriceCollector) drain(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.log.Warn("market stream error", logger.Error(err))
			}
			return
		case t, ok := <-trCh:
			if !ok {
				return
			}
			if t == nil {
				continue
			}
			c.handle(ctx, t)
		}
	}
}

func (c *PriceCollector) handle(ctx context.Context, t *models.Trade) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("trade handler panic", logger.Any("panic", r), logger.String("symbol", t.Symbol))
		}
	}()
	if t.Symbol == "" || t.Price <= 0 || t.Volume < 0 {
		c.metrics.RecordError("stream_invalid_trade")
		return
	}
	c.sink.OnTrade(*t)
	if c.candles != nil {
		if err := c.candles.Process(ctx, t); err != nil {
			c.log.Warn("candle process", logger.Error(err))
		}
	}
}

// Shutdown stops consuming, flushes pending bars and closes the stream.
func (c *PriceCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			c.log.Warn("price collector shutdown timed out")
		}
	}
	return c.stream.Close()
}
