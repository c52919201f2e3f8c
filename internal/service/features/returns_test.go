package features

import (
	"math"
	"testing"

	"FinExec/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func closes(vs ...float64) []models.Candle {
	out := make([]models.Candle, len(vs))
	for i, v := range vs {
		out[i] = models.Candle{Close: v}
	}
	return out
}

func TestComputeLogReturns(t *testing.T) {
	assert.Nil(t, ComputeLogReturns(closes(100)))

	r := ComputeLogReturns(closes(100, 110, 0, 121))
	assert.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Zero(t, r[1])
	assert.Zero(t, r[2])
}

func TestRealizedVolatility(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.01, -0.01}
	assert.InDelta(t, 0.011547, RealizedVolatility(rets, 4, 1), 1e-6)
	assert.InDelta(t, 0.011547*math.Sqrt(365), RealizedVolatility(rets, 4, BarsPerYear("1d")), 1e-5)
	assert.Zero(t, RealizedVolatility(rets, 5, 1))
	assert.Zero(t, RealizedVolatility(rets, 1, 1))
}

func TestAbsReturnEMA(t *testing.T) {
	assert.Zero(t, AbsReturnEMA(closes(100), 3))
	assert.InDelta(t, 0.02, AbsReturnEMA(closes(100, 102, 99.96, 101.9592), 3), 1e-9)

	// alpha 0.5: 0.01 then 0.5*0.03 + 0.5*0.01
	assert.InDelta(t, 0.02, AbsReturnEMA(closes(100, 101, 104.03), 3), 1e-9)
}
