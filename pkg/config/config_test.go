package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 100, c.Processor.MaxQueueSize)
	assert.Equal(t, time.Second, c.Processor.ProcessingInterval)
	assert.Equal(t, "memory", c.Risk.StateBackend)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, "finexec.db", c.Database.DSN)
	assert.Equal(t, "paper", c.Exchange.Mode)
	assert.Equal(t, 0.00001, c.Exchange.StepSize)
	assert.Equal(t, "static", c.Volatility.Source)
	assert.Equal(t, "ema", c.Volatility.Method)
	assert.Equal(t, 1000, c.Ingress.BufferSize)
	assert.Equal(t, "/metrics", c.Metrics.Path)
	assert.Equal(t, "finexec.signals", c.Kafka.Topics.Signals)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"drawdown":      "risk:\n  max_drawdown: 2\n",
		"state backend": "risk:\n  state_backend: etcd\n",
		"redis state":   "risk:\n  state_backend: redis\n",
		"twap delays":   "twap:\n  min_delay: 10s\n  max_delay: 1s\n",
		"driver":        "database:\n  driver: mysql\n",
		"method":        "volatility:\n  method: garch\n",
		"log shipping":  "log_shipping:\n  enabled: true\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache.internal:6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AUTO_EXECUTION", "false")
	t.Setenv("EXCHANGE_API_TOKEN", "secret")

	c, err := LoadWithEnv("../../config/config.yaml")
	require.NoError(t, err)

	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache.internal", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.False(t, c.Processor.EnableAutoExecution)
	assert.Equal(t, "secret", c.Exchange.APIToken)
	assert.Equal(t, 50000.0, c.Exchange.SeedPrices["BTCUSDT"])
}
