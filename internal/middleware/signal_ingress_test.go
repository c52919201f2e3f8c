package middleware

import (
	"errors"
	"sync"
	"testing"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/internal/service/ratelimit"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
	"FinExec/pkg/metrics"
	"FinExec/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	full bool
	got  []string
}

func (f *fakeSubmitter) Submit(sig models.TradingSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return queue.ErrQueueFull
	}
	f.got = append(f.got, sig.ID)
	return nil
}

func (f *fakeSubmitter) setFull(v bool) {
	f.mu.Lock()
	f.full = v
	f.mu.Unlock()
}

func (f *fakeSubmitter) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func signal(id, strategy string) models.TradingSignal {
	return models.TradingSignal{
		ID: id, Symbol: "BTCUSDT", Action: models.ActionBuy,
		Confidence: 0.7, Priority: models.PriorityNormal, StrategyID: strategy,
	}
}

func TestSignalIngress_ValidatesAndThrottles(t *testing.T) {
	sub := &fakeSubmitter{}
	clk := clock.NewFake(time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC))
	in := NewSignalIngress(logger.NewNop(), sub, metrics.Nop{},
		WithLimiter(ratelimit.New(2, 1, ratelimit.WithClock(clk))))

	bad := signal("", "s1")
	assert.ErrorIs(t, in.Process(bad), models.ErrInvalidSignal)

	require.NoError(t, in.Process(signal("a", "s1")))
	require.NoError(t, in.Process(signal("b", "s1")))
	assert.ErrorIs(t, in.Process(signal("c", "s1")), ErrThrottled)
	// other strategies have their own bucket
	require.NoError(t, in.Process(signal("d", "s2")))

	clk.Advance(time.Second)
	require.NoError(t, in.Process(signal("e", "s1")))

	assert.Equal(t, []string{"a", "b", "d", "e"}, sub.ids())
	st := in.Stats()
	assert.Equal(t, int64(4), st.Accepted)
	assert.Equal(t, int64(1), st.Throttled)
}

func TestSignalIngress_ParksWhileQueueFull(t *testing.T) {
	sub := &fakeSubmitter{full: true}
	in := NewSignalIngress(logger.NewNop(), sub, metrics.Nop{},
		WithBufferSize(2), WithRetryBackoff(time.Millisecond, 5*time.Millisecond))

	require.NoError(t, in.Process(signal("a", "")))
	require.NoError(t, in.Process(signal("b", "")))
	assert.ErrorIs(t, in.Process(signal("c", "")), ErrBufferFull)
	assert.Equal(t, 2, in.Stats().Pending)

	ctx := t.Context()
	in.Start(ctx)
	defer in.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.ids())

	sub.setFull(false)
	require.Eventually(t, func() bool { return len(sub.ids()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, sub.ids())

	st := in.Stats()
	assert.Equal(t, int64(2), st.Buffered)
	assert.Equal(t, int64(1), st.Dropped)
	assert.Equal(t, int64(2), st.Accepted)
}

func TestSignalIngress_StopKeepsParkedSignals(t *testing.T) {
	sub := &fakeSubmitter{full: true}
	in := NewSignalIngress(logger.NewNop(), sub, metrics.Nop{}, WithRetryBackoff(time.Millisecond, time.Millisecond))

	require.NoError(t, in.Process(signal("a", "")))
	in.Start(t.Context())
	time.Sleep(10 * time.Millisecond)
	in.Stop()
	in.Stop()

	assert.Equal(t, 1, in.Stats().Pending)
	assert.Empty(t, sub.ids())
}

type errSubmitter struct{}

func (errSubmitter) Submit(models.TradingSignal) error { return errors.New("duplicate") }

func TestSignalIngress_PassesThroughOtherErrors(t *testing.T) {
	in := NewSignalIngress(logger.NewNop(), errSubmitter{}, metrics.Nop{})
	assert.EqualError(t, in.Process(signal("a", "")), "duplicate")
	assert.Zero(t, in.Stats().Pending)
}
