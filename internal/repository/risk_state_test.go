package repository

import (
	"context"
	"testing"
	"time"

	"FinExec/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRiskState_DailyCounterIsPerDate(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheRiskState(mc, "")
	ctx := context.Background()

	n, err := s.DailyCount(ctx, "2024-10-10")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		_, err := s.IncrementDaily(ctx, "2024-10-10")
		require.NoError(t, err)
	}
	n, _ = s.DailyCount(ctx, "2024-10-10")
	assert.Equal(t, 3, n)

	n, _ = s.DailyCount(ctx, "2024-10-11")
	assert.Zero(t, n)
	n, err = s.IncrementDaily(ctx, "2024-10-11")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheRiskState_FlagsAndReset(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheRiskState(mc, "risk")
	ctx := context.Background()

	require.NoError(t, s.SetEmergencyStop(ctx, true))
	on, err := s.EmergencyStop(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	at := time.Date(2024, 10, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetLastTradeTime(ctx, at))
	got, err := s.LastTradeTime(ctx)
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	_, err = s.IncrementDaily(ctx, "2024-10-10")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	on, _ = s.EmergencyStop(ctx)
	assert.False(t, on)
	got, _ = s.LastTradeTime(ctx)
	assert.True(t, got.IsZero())
	n, _ := s.DailyCount(ctx, "2024-10-10")
	assert.Zero(t, n)
}
