package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
	"FinExec/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type candleStoreRecorder struct {
	mu    sync.Mutex
	fail  bool
	saved []models.Candle
}

func (s *candleStoreRecorder) StoreCandles(_ context.Context, interval string, c []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("clickhouse down")
	}
	if interval != "1m" {
		return errors.New("unexpected interval")
	}
	s.saved = append(s.saved, c...)
	return nil
}

func (s *candleStoreRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func tr(px float64, at time.Time) *models.Trade {
	return &models.Trade{Symbol: "BTCUSDT", Price: px, Volume: 0.5, Timestamp: at}
}

func TestCandleBuilder_ClosesBarsAndRetries(t *testing.T) {
	store := &candleStoreRecorder{}
	clk := clock.NewFake(testStart)
	b := NewCandleBuilder(logger.NewNop(), store, metrics.Nop{}, clk, 100, time.Second)
	ctx := context.Background()

	require.NoError(t, b.Process(ctx, tr(100, testStart)))
	require.NoError(t, b.Process(ctx, tr(103, testStart.Add(10*time.Second))))
	require.NoError(t, b.Process(ctx, tr(98, testStart.Add(50*time.Second))))
	require.NoError(t, b.Process(ctx, tr(101, testStart.Add(70*time.Second))))
	// late print for the closed minute
	require.NoError(t, b.Process(ctx, tr(500, testStart.Add(55*time.Second))))

	// the second bar is still open at 12:01
	clk.Set(testStart.Add(time.Minute + 30*time.Second))
	store.fail = true
	assert.Error(t, b.Flush(ctx))
	assert.Equal(t, 2, b.Pending())

	store.fail = false
	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 1, store.count())
	first := store.saved[0]
	assert.Equal(t, testStart, first.Bucket)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 103.0, first.High)
	assert.Equal(t, 98.0, first.Low)
	assert.Equal(t, 98.0, first.Close)
	assert.Equal(t, 1.5, first.Volume)

	clk.Advance(time.Minute)
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 2, store.count())
	assert.Zero(t, b.Pending())
}

func TestCandleBuilder_FlushesOnBatchSize(t *testing.T) {
	store := &candleStoreRecorder{}
	b := NewCandleBuilder(logger.NewNop(), store, metrics.Nop{}, clock.NewFake(testStart), 2, time.Hour)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Process(ctx, tr(100, testStart.Add(time.Duration(i)*time.Minute))))
	}
	assert.Zero(t, store.count())
	require.NoError(t, b.Process(ctx, tr(100, testStart.Add(2*time.Minute))))
	assert.Equal(t, 2, store.count())
}

// fakeStream serves one batch of trades per Read and fails the first read.
type fakeStream struct {
	mu         sync.Mutex
	batches    [][]*models.Trade
	reads      int
	reconnects int
	connected  bool
}

func (s *fakeStream) Connect(context.Context) error   { s.setConnected(true); return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) Close() error                    { s.setConnected(false); return nil }

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeStream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	s.mu.Lock()
	n := s.reads
	s.reads++
	var batch []*models.Trade
	if n < len(s.batches) {
		batch = s.batches[n]
	}
	s.mu.Unlock()

	trades := make(chan *models.Trade, len(batch))
	errs := make(chan error, 1)
	for _, t := range batch {
		trades <- t
	}
	go func() {
		if n == 0 {
			// let the first batch drain before failing
			time.Sleep(20 * time.Millisecond)
			errs <- errors.New("connection reset")
			return
		}
		<-ctx.Done()
	}()
	return trades, errs
}

type sinkRecorder struct {
	mu     sync.Mutex
	trades []models.Trade
}

func (s *sinkRecorder) OnTrade(t models.Trade) {
	s.mu.Lock()
	s.trades = append(s.trades, t)
	s.mu.Unlock()
}

func (s *sinkRecorder) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func TestPriceCollector_ReconnectsAndFeedsSink(t *testing.T) {
	stream := &fakeStream{batches: [][]*models.Trade{
		{tr(100, testStart), {Symbol: "", Price: 1, Timestamp: testStart}},
		{tr(101, testStart.Add(time.Second)), nil, tr(102, testStart.Add(2*time.Second))},
	}}
	sink := &sinkRecorder{}
	store := &candleStoreRecorder{}
	builder := NewCandleBuilder(logger.NewNop(), store, metrics.Nop{}, clock.NewFake(testStart.Add(5*time.Minute)), 100, time.Hour)
	c := NewPriceCollector(logger.NewNop(), stream, sink, builder, metrics.Nop{})

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsConnected())

	require.Eventually(t, func() bool { return sink.len() == 3 }, 2*time.Second, 5*time.Millisecond)
	stream.mu.Lock()
	assert.Equal(t, 1, stream.reconnects)
	stream.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsConnected())
	// shutdown flushes the minute bar built from the three prints
	assert.Equal(t, 1, store.count())
	assert.Equal(t, 102.0, store.saved[0].Close)
}
