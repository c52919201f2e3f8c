package usecase

import (
	"FinExec/internal/domain/models"

	"github.com/shopspring/decimal"
)

// floorToStep rounds qty down to a multiple of step. A non-positive step leaves qty unchanged.
func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	out, _ := q.Div(s).Floor().Mul(s).Float64()
	return out
}

func riskMultiplier(level models.RiskLevel) float64 {
	switch level {
	case models.RiskLow:
		return 0.5
	case models.RiskHigh:
		return 1.5
	default:
		return 1.0
	}
}
