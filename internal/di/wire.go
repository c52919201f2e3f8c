//go:build wireinject
// +build wireinject

package di

import (
	"FinExec/pkg/config"
	"FinExec/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideClock,
	ProvideMetrics,
	ProvideDatabase,
	ProvideLedgerStore,
	ProvideRedisClient,
	ProvideCache,
	ProvideRiskState,
	ProvideClickHouseClient,
	ProvideCandleSource,
	ProvideResultSink,
	ProvideKafkaProducer,
	ProvideEventBus,
	ProvideEventPublisher,
)

var tradingSet = wire.NewSet(
	ProvidePaperExchange,
	ProvideExchange,
	ProvideVolatility,
	ProvideLedger,
	ProvideRiskGuard,
	ProvideSignalExecutor,
	ProvideTwapScheduler,
	ProvideSignalProcessor,
	ProvideStrategyActions,
	ProvideCandlesUseCase,
)

var intakeSet = wire.NewSet(
	ProvideMarketStream,
	ProvidePriceCollector,
	ProvideSignalIngress,
	ProvideKafkaConsumer,
	ProvideKafkaSignalsHandler,
	ProvideIntakeQueue,
	ProvideSignalSubmitJob,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		tradingSet,
		intakeSet,
		ProvidePipelineHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
