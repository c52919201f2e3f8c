package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"FinExec/pkg/logger"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment"`
	Logger      logger.Config `yaml:"logger"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity"`
			RefillPerSec float64 `yaml:"refill_per_sec"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Processor struct {
		MaxConcurrentSignals  int           `yaml:"max_concurrent_signals"`
		ProcessingInterval    time.Duration `yaml:"processing_interval"`
		MaxQueueSize          int           `yaml:"max_queue_size"`
		EnableAutoExecution   bool          `yaml:"enable_auto_execution"`
		EnableRiskGuards      bool          `yaml:"enable_risk_guards"`
		EnableMetrics         bool          `yaml:"enable_metrics"`
		HistorySize           int           `yaml:"history_size"`
		TwapNotionalThreshold float64       `yaml:"twap_notional_threshold"`
		AutoStart             bool          `yaml:"auto_start"`
	} `yaml:"processor"`
	Risk struct {
		MaxDailyTrades         int           `yaml:"max_daily_trades"`
		MaxDrawdown            float64       `yaml:"max_drawdown"`
		MaxPositionSize        float64       `yaml:"max_position_size"`
		MinConfidence          float64       `yaml:"min_confidence"`
		MaxSlippage            float64       `yaml:"max_slippage"`
		EnableReduceOnly       bool          `yaml:"enable_reduce_only"`
		EnableGuardedOrders    bool          `yaml:"enable_guarded_orders"`
		EmergencyStopThreshold float64       `yaml:"emergency_stop_threshold"`
		CooldownPeriod         time.Duration `yaml:"cooldown_period"`
		VolatilityThreshold    float64       `yaml:"volatility_threshold"`
		StateBackend           string        `yaml:"state_backend"` // memory | redis
	} `yaml:"risk"`
	Execution struct {
		BaseQuantity float64       `yaml:"base_quantity"`
		OrderTimeout time.Duration `yaml:"order_timeout"`
		HistorySize  int           `yaml:"history_size"`
	} `yaml:"execution"`
	Twap struct {
		Slices         int           `yaml:"slices"`
		MinDelay       time.Duration `yaml:"min_delay"`
		MaxDelay       time.Duration `yaml:"max_delay"`
		SliceTimeout   time.Duration `yaml:"slice_timeout"`
		RetainFinished time.Duration `yaml:"retain_finished"`
	} `yaml:"twap"`
	Ledger struct {
		IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
		GCInterval     time.Duration `yaml:"gc_interval"`
	} `yaml:"ledger"`
	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		Intake   struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers"`
			RetryLimit int           `yaml:"retry_limit"`
			RetryDelay time.Duration `yaml:"retry_delay"`
		} `yaml:"intake"`
	} `yaml:"redis"`
	Ingress struct {
		StrategyBurst  float64       `yaml:"strategy_burst"`
		StrategyPerSec float64       `yaml:"strategy_per_sec"`
		BufferSize     int           `yaml:"buffer_size"`
		BackoffMin     time.Duration `yaml:"backoff_min"`
		BackoffMax     time.Duration `yaml:"backoff_max"`
	} `yaml:"ingress"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Signals string `yaml:"signals"`
			Events  string `yaml:"events"`
			Logs    string `yaml:"logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		CandlesTable string        `yaml:"candles_table"`
		ResultsTable string        `yaml:"results_table"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"clickhouse"`
	Exchange struct {
		Mode            string             `yaml:"mode"` // paper
		WebSocketURL    string             `yaml:"websocket_url"`
		APIToken        string             `yaml:"api_token"`
		Symbols         []string           `yaml:"symbols"`
		ReconnectDelay  time.Duration      `yaml:"reconnect_delay"`
		PingInterval    time.Duration      `yaml:"ping_interval"`
		OrdersPerSecond float64            `yaml:"orders_per_second"`
		OrderBurst      int                `yaml:"order_burst"`
		FeeRate         float64            `yaml:"fee_rate"`
		StartingBalance float64            `yaml:"starting_balance"`
		SeedPrices      map[string]float64 `yaml:"seed_prices"`
		StepSize        float64            `yaml:"step_size"`
	} `yaml:"exchange"`
	Volatility struct {
		Source      string        `yaml:"source"` // static | clickhouse | remote
		Static      float64       `yaml:"static"`
		Window      int           `yaml:"window"`
		Interval    string        `yaml:"interval"`
		Method      string        `yaml:"method"` // ema | realized
		CacheTTL    time.Duration `yaml:"cache_ttl"`
		RemoteURL   string        `yaml:"remote_url"`
		RemoteTimeo time.Duration `yaml:"remote_timeout"`
		Horizon     string        `yaml:"horizon"`
		Attempts    int           `yaml:"attempts"`
	} `yaml:"volatility"`
	LogShipping struct {
		Enabled        bool          `yaml:"enabled"`
		Interval       time.Duration `yaml:"interval"`
		CountThreshold int           `yaml:"count_threshold"`
	} `yaml:"log_shipping"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	setDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	applyEnv(c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("EXCHANGE_API_TOKEN"); v != "" {
		c.Exchange.APIToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if p, err := strconv.Atoi(port); ok && err == nil {
			c.Redis.Port = p
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("EXCHANGE_WS_URL"); v != "" {
		c.Exchange.WebSocketURL = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Exchange.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("AUTO_EXECUTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Processor.EnableAutoExecution = b
		}
	}
}

func setDefaults(c *Config) {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 50
		c.Server.RateLimit.RefillPerSec = 25
	}
	if c.Processor.MaxConcurrentSignals == 0 {
		c.Processor.MaxConcurrentSignals = 5
	}
	if c.Processor.ProcessingInterval == 0 {
		c.Processor.ProcessingInterval = time.Second
	}
	if c.Processor.MaxQueueSize == 0 {
		c.Processor.MaxQueueSize = 100
	}
	if c.Processor.HistorySize == 0 {
		c.Processor.HistorySize = 1000
	}
	if c.Risk.MaxDailyTrades == 0 {
		c.Risk.MaxDailyTrades = 10
	}
	if c.Risk.MaxDrawdown == 0 {
		c.Risk.MaxDrawdown = 0.05
	}
	if c.Risk.MaxPositionSize == 0 {
		c.Risk.MaxPositionSize = 0.1
	}
	if c.Risk.MinConfidence == 0 {
		c.Risk.MinConfidence = 0.7
	}
	if c.Risk.MaxSlippage == 0 {
		c.Risk.MaxSlippage = 0.02
	}
	if c.Risk.EmergencyStopThreshold == 0 {
		c.Risk.EmergencyStopThreshold = 0.1
	}
	if c.Risk.CooldownPeriod == 0 {
		c.Risk.CooldownPeriod = 5 * time.Minute
	}
	if c.Risk.VolatilityThreshold == 0 {
		c.Risk.VolatilityThreshold = 0.05
	}
	if c.Risk.StateBackend == "" {
		c.Risk.StateBackend = "memory"
	}
	if c.Execution.BaseQuantity == 0 {
		c.Execution.BaseQuantity = 0.01
	}
	if c.Execution.OrderTimeout == 0 {
		c.Execution.OrderTimeout = 5 * time.Second
	}
	if c.Execution.HistorySize == 0 {
		c.Execution.HistorySize = 1000
	}
	if c.Twap.Slices == 0 {
		c.Twap.Slices = 10
	}
	if c.Twap.MinDelay == 0 {
		c.Twap.MinDelay = 2 * time.Second
	}
	if c.Twap.MaxDelay == 0 {
		c.Twap.MaxDelay = 5 * time.Second
	}
	if c.Twap.SliceTimeout == 0 {
		c.Twap.SliceTimeout = 10 * time.Second
	}
	if c.Twap.RetainFinished == 0 {
		c.Twap.RetainFinished = time.Hour
	}
	if c.Ledger.IdempotencyTTL == 0 {
		c.Ledger.IdempotencyTTL = 24 * time.Hour
	}
	if c.Ledger.GCInterval == 0 {
		c.Ledger.GCInterval = time.Hour
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "finexec.db"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "finexec"
	}
	if c.Ingress.StrategyBurst == 0 {
		c.Ingress.StrategyBurst = 20
		c.Ingress.StrategyPerSec = 10
	}
	if c.Ingress.BufferSize == 0 {
		c.Ingress.BufferSize = 1000
	}
	if c.Ingress.BackoffMin == 0 {
		c.Ingress.BackoffMin = 50 * time.Millisecond
	}
	if c.Ingress.BackoffMax == 0 {
		c.Ingress.BackoffMax = 2 * time.Second
	}
	if c.ClickHouse.CandlesTable == "" {
		c.ClickHouse.CandlesTable = "candles"
	}
	if c.ClickHouse.ResultsTable == "" {
		c.ClickHouse.ResultsTable = "signal_results"
	}
	if c.ClickHouse.BatchSize == 0 {
		c.ClickHouse.BatchSize = 100
	}
	if c.ClickHouse.BatchTimeout == 0 {
		c.ClickHouse.BatchTimeout = 5 * time.Second
	}
	if c.Volatility.Interval == "" {
		c.Volatility.Interval = "1m"
	}
	if c.Volatility.Method == "" {
		c.Volatility.Method = "ema"
	}
	if c.Volatility.RemoteTimeo == 0 {
		c.Volatility.RemoteTimeo = 2 * time.Second
	}
	if c.Volatility.Horizon == "" {
		c.Volatility.Horizon = "1h"
	}
	if c.Volatility.Attempts == 0 {
		c.Volatility.Attempts = 2
	}
	if c.LogShipping.Interval == 0 {
		c.LogShipping.Interval = 30 * time.Second
	}
	if c.Kafka.Topics.Signals == "" {
		c.Kafka.Topics.Signals = "finexec.signals"
	}
	if c.Kafka.Topics.Events == "" {
		c.Kafka.Topics.Events = "finexec.events"
	}
	if c.Kafka.Topics.Logs == "" {
		c.Kafka.Topics.Logs = "finexec.logs"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "finexec"
	}
	if c.Exchange.Mode == "" {
		c.Exchange.Mode = "paper"
	}
	if c.Exchange.OrdersPerSecond == 0 {
		c.Exchange.OrdersPerSecond = 10
		c.Exchange.OrderBurst = 5
	}
	if c.Exchange.FeeRate == 0 {
		c.Exchange.FeeRate = 0.001
	}
	if c.Exchange.StartingBalance == 0 {
		c.Exchange.StartingBalance = 100000
	}
	if c.Exchange.StepSize == 0 {
		c.Exchange.StepSize = 0.00001
	}
	if c.Exchange.ReconnectDelay == 0 {
		c.Exchange.ReconnectDelay = 5 * time.Second
	}
	if c.Exchange.PingInterval == 0 {
		c.Exchange.PingInterval = 30 * time.Second
	}
	if c.Volatility.Source == "" {
		c.Volatility.Source = "static"
	}
	if c.Volatility.Static == 0 {
		c.Volatility.Static = 0.02
	}
	if c.Volatility.Window == 0 {
		c.Volatility.Window = 60
	}
	if c.Volatility.CacheTTL == 0 {
		c.Volatility.CacheTTL = 30 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Processor.MaxQueueSize < 1 {
		return fmt.Errorf("processor.max_queue_size must be positive")
	}
	if c.Processor.MaxConcurrentSignals < 1 {
		return fmt.Errorf("processor.max_concurrent_signals must be positive")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		return fmt.Errorf("risk.max_drawdown must be in (0,1], got %v", c.Risk.MaxDrawdown)
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		return fmt.Errorf("risk.max_position_size must be in (0,1], got %v", c.Risk.MaxPositionSize)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be in [0,1], got %v", c.Risk.MinConfidence)
	}
	if c.Risk.StateBackend != "memory" && c.Risk.StateBackend != "redis" {
		return fmt.Errorf("risk.state_backend must be 'memory' or 'redis', got '%s'", c.Risk.StateBackend)
	}
	if c.Risk.StateBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("risk.state_backend=redis requires redis.enabled")
	}
	if c.Twap.MinDelay > c.Twap.MaxDelay {
		return fmt.Errorf("twap.min_delay must not exceed twap.max_delay")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres', got '%s'", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Exchange.Mode != "paper" {
		return fmt.Errorf("exchange.mode must be 'paper', got '%s'", c.Exchange.Mode)
	}
	switch c.Volatility.Source {
	case "static", "clickhouse", "remote":
	default:
		return fmt.Errorf("volatility.source must be static, clickhouse or remote, got '%s'", c.Volatility.Source)
	}
	if c.Volatility.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("volatility.source=clickhouse requires clickhouse.enabled")
	}
	if c.Volatility.Method != "ema" && c.Volatility.Method != "realized" {
		return fmt.Errorf("volatility.method must be 'ema' or 'realized', got '%s'", c.Volatility.Method)
	}
	if c.LogShipping.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log_shipping requires kafka.enabled")
	}
	if c.Volatility.Source == "remote" && c.Volatility.RemoteURL == "" {
		return fmt.Errorf("volatility.remote_url is required for remote source")
	}
	return nil
}
