package ratelimit

import (
	"testing"
	"time"

	"FinExec/pkg/clock"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC))
	l := New(3, 1, WithClock(clk))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("strat-a"), "token %d", i)
	}
	assert.False(t, l.Allow("strat-a"))
	assert.True(t, l.Allow("strat-b"), "keys are independent")

	clk.Advance(1500 * time.Millisecond)
	assert.True(t, l.Allow("strat-a"))
	assert.False(t, l.Allow("strat-a"))
}

func TestLimiter_SweepDropsFullBuckets(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC))
	l := New(2, 1, WithClock(clk))
	l.Allow("a")
	l.Allow("b")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	clk.Advance(time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	clk.Advance(time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}
