package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/internal/events"
	"FinExec/internal/handler/api"
	mid "FinExec/internal/middleware"
	internalrepo "FinExec/internal/repository"
	"FinExec/internal/service/exchange"
	"FinExec/internal/service/marketfeed"
	svcmetrics "FinExec/internal/service/metrics"
	"FinExec/internal/service/ratelimit"
	"FinExec/internal/service/volatility"
	"FinExec/internal/usecase"
	"FinExec/pkg/cache"
	pkgch "FinExec/pkg/clickhouse"
	"FinExec/pkg/clock"
	"FinExec/pkg/config"
	"FinExec/pkg/database"
	xhttp "FinExec/pkg/http"
	pkgkafka "FinExec/pkg/kafka"
	"FinExec/pkg/logger"
	"FinExec/pkg/metrics"
	"FinExec/pkg/queue"
	"FinExec/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Optional infrastructure (Redis, Kafka, ClickHouse) is returned as nil when
// disabled in config; downstream providers fall back to in-process variants.

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	lgr, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

func ProvideClock() clock.Clock {
	return clock.New()
}

// ProvideMetrics returns the Prometheus recorder, or a no-op one when metrics are disabled.
func ProvideMetrics(cfg *config.Config) drepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	svcmetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideDatabase(cfg *config.Config, lgr *logger.Logger) (*gorm.DB, error) {
	return database.Open(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	}, lgr)
}

// ProvideLedgerStore migrates the audit, idempotency and strategy tables.
func ProvideLedgerStore(db *gorm.DB) (*internalrepo.GormLedgerStore, error) {
	store := internalrepo.NewGormLedgerStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return store, nil
}

func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideCache shares Redis between instances when it is enabled.
func ProvideCache(cfg *config.Config, rc *redis.Client) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCacheFromClient(rc, cfg.Redis.Prefix)
}

func ProvideRiskState(cfg *config.Config, c cache.Service) drepo.RiskStateStore {
	if cfg.Risk.StateBackend == "redis" {
		return internalrepo.NewCacheRiskState(c, "risk")
	}
	return internalrepo.NewCacheRiskState(cache.NewMemoryCache(), "risk")
}

// ProvideClickHouseClient connects and creates the candles table.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{internalrepo.CandleSchema(cfg.ClickHouse.CandlesTable)}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideCandleSource(cfg *config.Config, ch *pkgch.Client, lgr *logger.Logger) *internalrepo.CHCandleSource {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleSource(ch, cfg.ClickHouse.CandlesTable, lgr)
}

func ProvideResultSink(cfg *config.Config, ch *pkgch.Client) (drepo.ResultSink, error) {
	if ch == nil {
		return nil, nil
	}
	sink := internalrepo.NewClickHouseResultSink(ch.DB(), cfg.ClickHouse.ResultsTable)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Init(ctx); err != nil {
		return nil, fmt.Errorf("results table: %w", err)
	}
	return sink, nil
}

func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideEventBus(lgr *logger.Logger, m drepo.Metrics) *events.Bus {
	return events.NewBus(lgr, m)
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Events)
}

// ProvidePaperExchange seeds configured prices so orders can fill before the
// first trade arrives.
func ProvidePaperExchange(cfg *config.Config, lgr *logger.Logger, clk clock.Clock) (*exchange.PaperExchange, error) {
	if cfg.Exchange.Mode != "paper" {
		return nil, fmt.Errorf("unsupported exchange mode %q", cfg.Exchange.Mode)
	}
	paper := exchange.NewPaperExchange(lgr, exchange.PaperConfig{
		StartingBalance: cfg.Exchange.StartingBalance,
		FeeRate:         cfg.Exchange.FeeRate,
		StepSize:        cfg.Exchange.StepSize,
		Symbols:         cfg.Exchange.Symbols,
	}, clk)
	now := clk.Now()
	for sym, px := range cfg.Exchange.SeedPrices {
		paper.OnTrade(models.Trade{Symbol: strings.ToUpper(sym), Price: px, Timestamp: now})
	}
	return paper, nil
}

func ProvideExchange(cfg *config.Config, paper *exchange.PaperExchange) drepo.Exchange {
	if cfg.Exchange.OrdersPerSecond <= 0 {
		return paper
	}
	return exchange.NewRateLimited(paper, cfg.Exchange.OrdersPerSecond, cfg.Exchange.OrderBurst, 0, 0)
}

// ProvideVolatility builds the estimator chain: remote model first when
// configured, then ClickHouse bars, then exchange klines, then the static
// fallback. Non-static chains are cached.
func ProvideVolatility(
	cfg *config.Config,
	lgr *logger.Logger,
	ex drepo.Exchange,
	candles *internalrepo.CHCandleSource,
	c cache.Service,
) drepo.VolatilitySource {
	static := volatility.Static(cfg.Volatility.Static)
	if cfg.Volatility.Source == "static" {
		return static
	}

	est := volatility.CandleConfig{
		Interval: cfg.Volatility.Interval,
		Period:   cfg.Volatility.Window,
		Method:   volatility.Method(cfg.Volatility.Method),
	}
	klines := volatility.NewCandleEstimator("klines", volatility.KlineSource{Exchange: ex}, est)

	var sources []drepo.VolatilitySource
	var nowcast drepo.VolatilitySource = klines
	if candles != nil {
		nowcast = volatility.NewCandleEstimator("clickhouse", candles, est)
	}
	if cfg.Volatility.Source == "remote" {
		client := xhttp.NewClient(
			xhttp.WithBaseURL(cfg.Volatility.RemoteURL),
			xhttp.WithTimeout(cfg.Volatility.RemoteTimeo),
		)
		sources = append(sources, volatility.NewRemote(client, cfg.Volatility.Horizon, cfg.Volatility.Attempts, nowcast))
	}
	if candles != nil {
		sources = append(sources, nowcast)
	}
	sources = append(sources, klines, static)

	chain := volatility.NewChain(lgr, sources...)
	if cfg.Volatility.CacheTTL <= 0 {
		return chain
	}
	return volatility.NewCached(chain, c, cfg.Volatility.CacheTTL)
}

func ProvideLedger(cfg *config.Config, lgr *logger.Logger, store *internalrepo.GormLedgerStore, c cache.Service, clk clock.Clock) *usecase.Ledger {
	return usecase.NewLedger(lgr, usecase.LedgerConfig{
		KeyTTL:     cfg.Ledger.IdempotencyTTL,
		GCInterval: cfg.Ledger.GCInterval,
	}, store, store, c, clk)
}

func ProvideRiskGuard(
	cfg *config.Config,
	lgr *logger.Logger,
	state drepo.RiskStateStore,
	paper *exchange.PaperExchange,
	vol drepo.VolatilitySource,
	bus *events.Bus,
	m drepo.Metrics,
	clk clock.Clock,
) *usecase.RiskGuard {
	return usecase.NewRiskGuard(lgr, riskConfig(cfg), state, paper, vol, bus, m, clk)
}

func ProvideSignalExecutor(
	cfg *config.Config,
	lgr *logger.Logger,
	ex drepo.Exchange,
	bus *events.Bus,
	m drepo.Metrics,
	ledger *usecase.Ledger,
	clk clock.Clock,
) *usecase.SignalExecutor {
	return usecase.NewSignalExecutor(lgr, usecase.ExecutorConfig{
		BaseQuantity: cfg.Execution.BaseQuantity,
		OrderTimeout: cfg.Execution.OrderTimeout,
		HistorySize:  cfg.Execution.HistorySize,
	}, ex, bus, m, ledger, clk)
}

func ProvideTwapScheduler(
	cfg *config.Config,
	lgr *logger.Logger,
	ex drepo.Exchange,
	bus *events.Bus,
	m drepo.Metrics,
	ledger *usecase.Ledger,
	clk clock.Clock,
) *usecase.TwapScheduler {
	return usecase.NewTwapScheduler(lgr, usecase.TwapConfig{
		SliceTimeout:   cfg.Twap.SliceTimeout,
		RetainFinished: cfg.Twap.RetainFinished,
	}, ex, bus, m, ledger, clk)
}

func ProvideSignalProcessor(
	cfg *config.Config,
	lgr *logger.Logger,
	risk *usecase.RiskGuard,
	executor *usecase.SignalExecutor,
	twap *usecase.TwapScheduler,
	ex drepo.Exchange,
	bus *events.Bus,
	m drepo.Metrics,
	sink drepo.ResultSink,
	ledger *usecase.Ledger,
	clk clock.Clock,
) *usecase.SignalProcessor {
	return usecase.NewSignalProcessor(lgr, processorConfig(cfg), usecase.TwapRouting{
		Slices: cfg.Twap.Slices,
		MinMs:  int(cfg.Twap.MinDelay / time.Millisecond),
		MaxMs:  int(cfg.Twap.MaxDelay / time.Millisecond),
	}, risk, executor, twap, ex, bus, m, sink, ledger, clk)
}

func ProvideStrategyActions(
	lgr *logger.Logger,
	ledger *usecase.Ledger,
	store *internalrepo.GormLedgerStore,
	bus *events.Bus,
	clk clock.Clock,
) *usecase.StrategyActions {
	return usecase.NewStrategyActions(lgr, ledger, store, bus, clk)
}

// ProvideCandlesUseCase serves stored bars when ClickHouse is enabled and
// exchange klines otherwise.
func ProvideCandlesUseCase(lgr *logger.Logger, candles *internalrepo.CHCandleSource, ex drepo.Exchange) *usecase.CandlesUseCase {
	if candles == nil {
		return usecase.NewCandlesUseCase(lgr, nil, ex)
	}
	return usecase.NewCandlesUseCase(lgr, candles, ex)
}

func ProvideMarketStream(cfg *config.Config, lgr *logger.Logger) drepo.MarketStream {
	if cfg.Exchange.WebSocketURL == "" {
		return nil
	}
	return marketfeed.New(lgr, marketfeed.Config{
		URL:            cfg.Exchange.WebSocketURL,
		Token:          cfg.Exchange.APIToken,
		Symbols:        cfg.Exchange.Symbols,
		ReconnectDelay: cfg.Exchange.ReconnectDelay,
		PingInterval:   cfg.Exchange.PingInterval,
	})
}

// ProvidePriceCollector feeds streamed trades to the paper exchange and, with
// ClickHouse enabled, aggregates them into stored one minute bars.
func ProvidePriceCollector(
	cfg *config.Config,
	lgr *logger.Logger,
	stream drepo.MarketStream,
	paper *exchange.PaperExchange,
	candles *internalrepo.CHCandleSource,
	m drepo.Metrics,
	clk clock.Clock,
) *usecase.PriceCollector {
	if stream == nil {
		return nil
	}
	var builder *usecase.CandleBuilder
	if candles != nil {
		builder = usecase.NewCandleBuilder(lgr, candles, m, clk, cfg.ClickHouse.BatchSize, cfg.ClickHouse.BatchTimeout)
	}
	return usecase.NewPriceCollector(lgr, stream, paper, builder, m)
}

func ProvideSignalIngress(cfg *config.Config, lgr *logger.Logger, processor *usecase.SignalProcessor, m drepo.Metrics) *mid.SignalIngress {
	return mid.NewSignalIngress(lgr, processor, m,
		mid.WithStrategyRate(cfg.Ingress.StrategyBurst, cfg.Ingress.StrategyPerSec),
		mid.WithBufferSize(cfg.Ingress.BufferSize),
		mid.WithRetryBackoff(cfg.Ingress.BackoffMin, cfg.Ingress.BackoffMax),
	)
}

func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.Topics.Signals == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideKafkaSignalsHandler(
	cfg *config.Config,
	lgr *logger.Logger,
	ingress *mid.SignalIngress,
	m drepo.Metrics,
	clk clock.Clock,
) *usecase.KafkaSignalsHandler {
	return usecase.NewKafkaSignalsHandler(lgr, cfg.Kafka.Topics.Signals, ingress, m, clk)
}

// ProvideIntakeQueue returns the Redis-backed intake queue when both Redis and
// intake are enabled.
func ProvideIntakeQueue(cfg *config.Config, lgr *logger.Logger, rc *redis.Client) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.Intake.Enabled {
		return nil
	}
	prefix := "finexec:intake"
	if cfg.Redis.Prefix != "" {
		prefix = cfg.Redis.Prefix + ":intake"
	}
	return queue.NewRedisQueue(lgr.With("intake-queue"), queue.QueueConfig{
		Workers:    cfg.Redis.Intake.Workers,
		RetryLimit: cfg.Redis.Intake.RetryLimit,
		RetryDelay: cfg.Redis.Intake.RetryDelay,
	}, rc, queue.WithKeyPrefix(prefix))
}

func ProvideSignalSubmitJob(lgr *logger.Logger, ingress *mid.SignalIngress, clk clock.Clock) *usecase.SignalSubmitJob {
	return usecase.NewSignalSubmitJob(lgr, ingress, clk)
}

func ProvidePipelineHandler(
	lgr *logger.Logger,
	clk clock.Clock,
	processor *usecase.SignalProcessor,
	executor *usecase.SignalExecutor,
	risk *usecase.RiskGuard,
	twap *usecase.TwapScheduler,
	strategies *usecase.StrategyActions,
	ledger *usecase.Ledger,
	candles *usecase.CandlesUseCase,
) *api.PipelineHandler {
	return api.NewPipelineHandler(lgr, clk, processor, executor, risk, twap, strategies, ledger, candles)
}

func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, h *api.PipelineHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithAddr("0.0.0.0", cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	if cfg.Server.RateLimit.Capacity > 0 {
		opts = append(opts, xhttp.WithRateLimit(ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)))
	}
	return xhttp.NewServer(lgr, []xhttp.Handler{h}, opts...)
}

// ProvideApp also attaches the Kafka log collector when log shipping is on.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	db *gorm.DB,
	rc *redis.Client,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	bus *events.Bus,
	publisher drepo.EventPublisher,
	sink drepo.ResultSink,
	ledger *usecase.Ledger,
	processor *usecase.SignalProcessor,
	twap *usecase.TwapScheduler,
	ingress *mid.SignalIngress,
	collector *usecase.PriceCollector,
	consumer *pkgkafka.Consumer,
	signals *usecase.KafkaSignalsHandler,
	intake *queue.RedisQueue,
	submitJob *usecase.SignalSubmitJob,
	httpServer *xhttp.Server,
) *server.App {
	if cfg.LogShipping.Enabled && producer != nil {
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.LogShipping.Interval,
			CountThreshold: cfg.LogShipping.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	if consumer != nil {
		consumer.RegisterHandler(signals)
	}
	if intake != nil {
		intake.RegisterJob(submitJob)
	}
	return server.New(server.Deps{
		Config:     cfg,
		Logger:     lgr,
		DB:         db,
		Redis:      rc,
		ClickHouse: ch,
		Producer:   producer,
		Bus:        bus,
		Publisher:  publisher,
		Sink:       sink,
		Ledger:     ledger,
		Processor:  processor,
		Twap:       twap,
		Ingress:    ingress,
		Collector:  collector,
		Consumer:   consumer,
		Intake:     intake,
		HTTP:       httpServer,
	})
}

func riskConfig(cfg *config.Config) models.RiskConfig {
	rc := models.DefaultRiskConfig()
	r := cfg.Risk
	if r.MaxDailyTrades > 0 {
		rc.MaxDailyTrades = r.MaxDailyTrades
	}
	if r.MaxDrawdown > 0 {
		rc.MaxDrawdown = r.MaxDrawdown
	}
	if r.MaxPositionSize > 0 {
		rc.MaxPositionSize = r.MaxPositionSize
	}
	if r.MinConfidence > 0 {
		rc.MinConfidence = r.MinConfidence
	}
	if r.MaxSlippage > 0 {
		rc.MaxSlippage = r.MaxSlippage
	}
	if r.EmergencyStopThreshold > 0 {
		rc.EmergencyStopThreshold = r.EmergencyStopThreshold
	}
	if r.CooldownPeriod > 0 {
		rc.CooldownPeriod = r.CooldownPeriod
	}
	if r.VolatilityThreshold > 0 {
		rc.VolatilityThreshold = r.VolatilityThreshold
	}
	rc.EnableReduceOnly = r.EnableReduceOnly
	rc.EnableGuardedOrders = r.EnableGuardedOrders
	return rc
}

func processorConfig(cfg *config.Config) models.ProcessorConfig {
	p := cfg.Processor
	return models.ProcessorConfig{
		MaxConcurrentSignals:  p.MaxConcurrentSignals,
		ProcessingInterval:    p.ProcessingInterval,
		MaxQueueSize:          p.MaxQueueSize,
		EnableAutoExecution:   p.EnableAutoExecution,
		EnableRiskGuards:      p.EnableRiskGuards,
		EnableMetrics:         p.EnableMetrics,
		TwapNotionalThreshold: p.TwapNotionalThreshold,
		HistorySize:           p.HistorySize,
	}
}
