package models

import (
	"fmt"
	"strings"
	"time"

	"FinExec/pkg/util"

	"github.com/google/uuid"
)

// Requests for pipeline HTTP endpoints. Defined in domain for consistency and reuse.

type SubmitSignalRequest struct {
	ID         string                 `json:"id"`
	Symbol     string                 `json:"symbol" validate:"required,max=32"`
	Action     string                 `json:"action" validate:"required,oneof=buy sell close hold"`
	Confidence float64                `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning  string                 `json:"reasoning" validate:"max=2000"`
	StrategyID string                 `json:"strategyId" validate:"max=64"`
	Timeframe  string                 `json:"timeframe" default:"short" validate:"oneof=short medium long"`
	RiskLevel  string                 `json:"riskLevel" default:"medium" validate:"oneof=low medium high"`
	Priority   string                 `json:"priority" default:"NORMAL" validate:"oneof=LOW NORMAL HIGH CRITICAL"`
	Timestamp  string                 `json:"timestamp" validate:"max=40"` // RFC3339 or unix s/ms; empty means receipt time
	Metadata   map[string]interface{} `json:"metadata"`
}

// Signal converts the request into a pipeline signal. A missing id is
// generated; the result still has to pass TradingSignal.Validate.
func (r SubmitSignalRequest) Signal(now time.Time) (TradingSignal, error) {
	prio := PriorityNormal
	if r.Priority != "" {
		p, err := ParsePriority(r.Priority)
		if err != nil {
			return TradingSignal{}, err
		}
		prio = p
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := now
	if r.Timestamp != "" {
		t, ok := util.ParseTime(r.Timestamp)
		if !ok {
			return TradingSignal{}, fmt.Errorf("invalid timestamp %q", r.Timestamp)
		}
		ts = t
	}
	return TradingSignal{
		ID:         id,
		Symbol:     strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Action:     Action(strings.ToLower(r.Action)),
		Confidence: r.Confidence,
		Reasoning:  r.Reasoning,
		StrategyID: r.StrategyID,
		Timeframe:  Timeframe(r.Timeframe),
		RiskLevel:  RiskLevel(r.RiskLevel),
		Priority:   prio,
		Timestamp:  ts,
		Metadata:   r.Metadata,
	}, nil
}

type SignalHistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type ExecutionHistoryRequest struct {
	SignalID string `query:"signalId" json:"signalId"`
	Limit    int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type EmergencyStopRequest struct {
	Active *bool  `json:"active" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type CreateTwapRequest struct {
	Symbol     string  `json:"symbol" validate:"required,max=32"`
	Side       string  `json:"side" validate:"required,oneof=buy sell"`
	TotalQty   float64 `json:"totalQty" validate:"gt=0"`
	Slices     int     `json:"slices" default:"10" validate:"gte=1,lte=1000"`
	MinMs      int     `json:"minMs" default:"2000" validate:"gte=0"`
	MaxMs      int     `json:"maxMs" default:"5000" validate:"gtefield=MinMs"`
	Type       string  `json:"type" default:"market" validate:"oneof=market limit"`
	LimitPrice float64 `json:"limitPrice" validate:"gte=0"`
}

type TwapIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type StrategyActionRequest struct {
	ID             string `param:"id" json:"-" validate:"required,max=64"`
	Action         string `param:"action" json:"-" validate:"required,oneof=start pause stop"`
	IdempotencyKey string `json:"idempotencyKey" validate:"max=255"`
	Actor          string `json:"actor" default:"system" validate:"max=128"`
}

type CreateStrategyRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"max=255"`
}

type CandlesRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required,max=32"`
	Interval string `query:"interval" json:"interval" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Limit    int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}
