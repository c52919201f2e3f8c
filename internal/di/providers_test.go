package di

import (
	"context"
	"testing"
	"time"

	internalrepo "FinExec/internal/repository"
	"FinExec/internal/service/exchange"
	"FinExec/internal/service/volatility"
	"FinExec/pkg/cache"
	"FinExec/pkg/clock"
	"FinExec/pkg/config"
	"FinExec/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestRiskAndProcessorConfigFromYAML(t *testing.T) {
	cfg := testConfig(t, `
processor:
  max_concurrent_signals: 3
  enable_auto_execution: true
  twap_notional_threshold: 5000
risk:
  max_daily_trades: 4
  cooldown_period: 30s
  enable_reduce_only: true
`)
	rc := riskConfig(cfg)
	assert.Equal(t, 4, rc.MaxDailyTrades)
	assert.Equal(t, 30*time.Second, rc.CooldownPeriod)
	assert.True(t, rc.EnableReduceOnly)
	assert.False(t, rc.EnableGuardedOrders)
	assert.Equal(t, 1000.0, rc.BasePositionValue)

	pc := processorConfig(cfg)
	assert.Equal(t, 3, pc.MaxConcurrentSignals)
	assert.Equal(t, time.Second, pc.ProcessingInterval)
	assert.True(t, pc.EnableAutoExecution)
	assert.Equal(t, 5000.0, pc.TwapNotionalThreshold)
}

func TestProvidePaperExchange_SeedsPrices(t *testing.T) {
	cfg := testConfig(t, "exchange:\n  seed_prices:\n    btcusdt: 42000\n")
	clk := clock.NewFake(time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC))

	paper, err := ProvidePaperExchange(cfg, logger.NewNop(), clk)
	require.NoError(t, err)
	px, err := paper.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42000.0, px)

	_, isLimited := ProvideExchange(cfg, paper).(*exchange.RateLimited)
	assert.True(t, isLimited)

	cfg.Exchange.Mode = "live"
	_, err = ProvidePaperExchange(cfg, logger.NewNop(), clk)
	assert.Error(t, err)
}

func TestProvideVolatility(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC))

	static := testConfig(t, "volatility:\n  source: static\n  static: 0.03\n")
	paper, err := ProvidePaperExchange(static, logger.NewNop(), clk)
	require.NoError(t, err)
	src := ProvideVolatility(static, logger.NewNop(), paper, nil, cache.NewMemoryCache())
	assert.Equal(t, volatility.Static(0.03), src)

	// no bars yet, so the chain falls through to the static floor
	chained := testConfig(t, "volatility:\n  static: 0.04\n  cache_ttl: 1m\n")
	chained.Volatility.Source = "clickhouse"
	src = ProvideVolatility(chained, logger.NewNop(), paper, (*internalrepo.CHCandleSource)(nil), cache.NewMemoryCache())
	_, isCached := src.(*volatility.Cached)
	assert.True(t, isCached)
	v, err := src.Volatility(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.04, v)
}

func TestOptionalInfrastructureDisabled(t *testing.T) {
	cfg := testConfig(t, "environment: test\n")

	rc, err := ProvideRedisClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)
	_, isMemory := ProvideCache(cfg, rc).(*cache.MemoryCache)
	assert.True(t, isMemory)

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.Nil(t, ProvideCandleSource(cfg, ch, logger.NewNop()))
	sink, err := ProvideResultSink(cfg, ch)
	require.NoError(t, err)
	assert.Nil(t, sink)

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)
	assert.Nil(t, ProvideEventPublisher(cfg, producer))
	assert.Nil(t, ProvideMarketStream(cfg, logger.NewNop()))
	assert.Nil(t, ProvideIntakeQueue(cfg, logger.NewNop(), rc))
}
