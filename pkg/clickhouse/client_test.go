package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "finexec",
		User:        "app",
		Password:    "secret",
		DialTimeout: 2 * time.Second,
		AsyncInsert: true,
	})
	assert.Equal(t, "clickhouse://app:secret@ch:9000/finexec?async_insert=1&dial_timeout=2s&wait_for_async_insert=1", dsn)
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
