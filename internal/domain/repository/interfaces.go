package repository

import (
	"context"
	"time"

	"FinExec/internal/domain/models"
)

// Exchange is the outbound connector the executor and TWAP scheduler place orders through.
type Exchange interface {
	GetSymbolFilters(ctx context.Context, symbol string) (models.SymbolFilters, error)
	PlaceOrder(ctx context.Context, order models.ExecutionOrder) (models.ExecutionResult, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	// GetPositionSize returns the signed base quantity held; negative is short.
	GetPositionSize(ctx context.Context, symbol string) (float64, error)
}

type PortfolioProvider interface {
	GetPortfolioStatus(ctx context.Context) (models.PortfolioStatus, error)
}

// VolatilitySource estimates short horizon volatility for a symbol as a fraction (0.02 = 2%).
type VolatilitySource interface {
	Volatility(ctx context.Context, symbol string) (float64, error)
}

// CandleSource serves historical bars, oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// MarketStream delivers trade prints from an upstream feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// RiskStateStore holds the risk gate state shared between instances.
type RiskStateStore interface {
	EmergencyStop(ctx context.Context) (bool, error)
	SetEmergencyStop(ctx context.Context, active bool) error
	// DailyCount returns the trade count stored for dateKey; a different stored date reads as zero.
	DailyCount(ctx context.Context, dateKey string) (int, error)
	IncrementDaily(ctx context.Context, dateKey string) (int, error)
	LastTradeTime(ctx context.Context) (time.Time, error)
	SetLastTradeTime(ctx context.Context, t time.Time) error
	Reset(ctx context.Context) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, e models.Event) error
	Close() error
}

// ResultSink persists processing results for offline analysis.
type ResultSink interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, signal models.TradingSignal, result models.SignalProcessingResult) error
	Close() error
}

type AuditRepository interface {
	// Append computes the entry hash from the current chain head and inserts
	// it atomically. build receives the previous hash and next sequence.
	Append(ctx context.Context, build func(prevHash string, seq int64) (models.AuditLogEntry, error)) (models.AuditLogEntry, error)
	// Scan visits entries in sequence order until fn returns false.
	Scan(ctx context.Context, fn func(models.AuditLogEntry) bool) error
	Last(ctx context.Context) (*models.AuditLogEntry, error)
}

// IdempotencyRepository.Get returns nil, nil for an unknown key.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*models.IdempotencyKey, error)
	// CreatePending inserts a pending key. It returns models.ErrRequestInFlight when the key exists.
	CreatePending(ctx context.Context, key string, ttlAt time.Time) error
	Complete(ctx context.Context, key string, result []byte) error
	Fail(ctx context.Context, key string, result []byte) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// StrategyRepository lookups return models.ErrNotFound for unknown ids.
type StrategyRepository interface {
	GetStrategy(ctx context.Context, id string) (*models.Strategy, error)
	CreateStrategy(ctx context.Context, s *models.Strategy) error
	UpdateStrategyStatus(ctx context.Context, id string, status models.StrategyStatus) (*models.Strategy, error)
}

type Metrics interface {
	SignalSubmitted(accepted bool)
	SignalProcessed(status models.ResultStatus, symbol string, latency time.Duration)
	RiskScore(score float64)
	QueueDepth(n int)
	ActiveSignals(n int)
	OrderPlaced(symbol string, side models.OrderSide, status models.OrderStatus)
	TwapSlice(symbol string)
	TwapFinished(outcome string)
	EventsDropped(n int)
	RecordError(kind string)
}

// EventSink receives pipeline events. Publish must not block.
type EventSink interface {
	Publish(e models.Event)
}
