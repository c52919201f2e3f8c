package models

import "time"

type RiskConfig struct {
	MaxDailyTrades         int           `json:"maxDailyTrades"`
	MaxDrawdown            float64       `json:"maxDrawdown"`
	MaxPositionSize        float64       `json:"maxPositionSize"`
	MinConfidence          float64       `json:"minConfidence"`
	MaxSlippage            float64       `json:"maxSlippage"`
	EnableReduceOnly       bool          `json:"enableReduceOnly"`
	EnableGuardedOrders    bool          `json:"enableGuardedOrders"`
	EmergencyStopThreshold float64       `json:"emergencyStopThreshold"`
	CooldownPeriod         time.Duration `json:"cooldownPeriod"`
	VolatilityThreshold    float64       `json:"volatilityThreshold"`
	BasePositionValue      float64       `json:"basePositionValue"`
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxDailyTrades:         10,
		MaxDrawdown:            0.05,
		MaxPositionSize:        0.1,
		MinConfidence:          0.7,
		MaxSlippage:            0.02,
		EnableReduceOnly:       true,
		EnableGuardedOrders:    true,
		EmergencyStopThreshold: 0.1,
		CooldownPeriod:         5 * time.Minute,
		VolatilityThreshold:    0.05,
		BasePositionValue:      1000,
	}
}

// RiskConfigPatch carries a partial update; nil fields are left unchanged.
type RiskConfigPatch struct {
	MaxDailyTrades         *int     `json:"maxDailyTrades,omitempty" validate:"omitempty,gte=0"`
	MaxDrawdown            *float64 `json:"maxDrawdown,omitempty" validate:"omitempty,gt=0,lte=1"`
	MaxPositionSize        *float64 `json:"maxPositionSize,omitempty" validate:"omitempty,gt=0,lte=1"`
	MinConfidence          *float64 `json:"minConfidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxSlippage            *float64 `json:"maxSlippage,omitempty" validate:"omitempty,gte=0"`
	EnableReduceOnly       *bool    `json:"enableReduceOnly,omitempty"`
	EnableGuardedOrders    *bool    `json:"enableGuardedOrders,omitempty"`
	EmergencyStopThreshold *float64 `json:"emergencyStopThreshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	CooldownPeriodMs       *int64   `json:"cooldownPeriodMs,omitempty" validate:"omitempty,gte=0"`
	VolatilityThreshold    *float64 `json:"volatilityThreshold,omitempty" validate:"omitempty,gt=0"`
}

func (c RiskConfig) Merge(p RiskConfigPatch) RiskConfig {
	if p.MaxDailyTrades != nil {
		c.MaxDailyTrades = *p.MaxDailyTrades
	}
	if p.MaxDrawdown != nil {
		c.MaxDrawdown = *p.MaxDrawdown
	}
	if p.MaxPositionSize != nil {
		c.MaxPositionSize = *p.MaxPositionSize
	}
	if p.MinConfidence != nil {
		c.MinConfidence = *p.MinConfidence
	}
	if p.MaxSlippage != nil {
		c.MaxSlippage = *p.MaxSlippage
	}
	if p.EnableReduceOnly != nil {
		c.EnableReduceOnly = *p.EnableReduceOnly
	}
	if p.EnableGuardedOrders != nil {
		c.EnableGuardedOrders = *p.EnableGuardedOrders
	}
	if p.EmergencyStopThreshold != nil {
		c.EmergencyStopThreshold = *p.EmergencyStopThreshold
	}
	if p.CooldownPeriodMs != nil {
		c.CooldownPeriod = time.Duration(*p.CooldownPeriodMs) * time.Millisecond
	}
	if p.VolatilityThreshold != nil {
		c.VolatilityThreshold = *p.VolatilityThreshold
	}
	return c
}

type RiskGuardResult struct {
	Allowed         bool     `json:"allowed"`
	Reason          string   `json:"reason,omitempty"`
	RiskScore       float64  `json:"riskScore"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type PortfolioStatus struct {
	TotalBalance  float64   `json:"totalBalance"`
	TotalPnL      float64   `json:"totalPnl"`
	OpenPositions int       `json:"openPositions"`
	DailyPnL      float64   `json:"dailyPnl"`
	MaxDrawdown   float64   `json:"maxDrawdown"`
	RiskLevel     RiskLevel `json:"riskLevel"`
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type RiskAlert struct {
	Type      string        `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	SignalID  string        `json:"signalId,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type RiskStatus struct {
	EmergencyStop   bool             `json:"emergencyStop"`
	DailyTradeCount int              `json:"dailyTradeCount"`
	MaxDailyTrades  int              `json:"maxDailyTrades"`
	LastTradeTime   time.Time        `json:"lastTradeTime"`
	Portfolio       *PortfolioStatus `json:"portfolio,omitempty"`
	Config          RiskConfig       `json:"config"`
	AlertCount      int              `json:"alertCount"`
}
