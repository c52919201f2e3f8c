package features

import (
	"math"

	"FinExec/internal/domain/models"
)

// ComputeLogReturns computes r_t = ln(C_t / C_{t-1}). It returns
// len(candles)-1 values, or nil if there are fewer than two candles.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last window
// returns scaled by sqrt(barsPerYear). Pass 1 for per-bar volatility.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	var sum, sum2 float64
	for _, r := range logReturns[len(logReturns)-window:] {
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// AbsReturnEMA smooths absolute percentage changes of closes with an EMA of
// the given period and returns the latest value.
func AbsReturnEMA(candles []models.Candle, period int) float64 {
	if len(candles) < 2 || period < 1 {
		return 0
	}
	alpha := 2 / float64(period+1)
	ema := 0.0
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		r := math.Abs((candles[i].Close - prev) / prev)
		if i == 1 {
			ema = r
			continue
		}
		ema = alpha*r + (1-alpha)*ema
	}
	return ema
}

// BarsPerYear returns the approximate number of bars per year for an interval.
func BarsPerYear(interval string) float64 {
	switch interval {
	case "1s":
		return 365 * 24 * 60 * 60
	case "5m":
		return 365 * 24 * 12
	case "15m":
		return 365 * 24 * 4
	case "1h":
		return 365 * 24
	case "1d":
		return 365
	default:
		return 365 * 24 * 60
	}
}
