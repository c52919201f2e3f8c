package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is the trading intent carried by a signal.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
	ActionHold  Action = "hold"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionClose, ActionHold:
		return true
	}
	return false
}

// Priority orders signals in the admission queue. Higher drains first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:      "LOW",
	PriorityNormal:   "NORMAL",
	PriorityHigh:     "HIGH",
	PriorityCritical: "CRITICAL",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either the name ("HIGH") or the numeric value.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := ParsePriority(s)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("priority must be a name or number: %w", err)
	}
	*p = Priority(n)
	return nil
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Timeframe string

const (
	TimeframeShort  Timeframe = "short"
	TimeframeMedium Timeframe = "medium"
	TimeframeLong   Timeframe = "long"
)

type TradingSignal struct {
	ID         string                 `json:"id"`
	Symbol     string                 `json:"symbol"`
	Action     Action                 `json:"action"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	StrategyID string                 `json:"strategyId,omitempty"`
	Timeframe  Timeframe              `json:"timeframe,omitempty"`
	RiskLevel  RiskLevel              `json:"riskLevel,omitempty"`
	Priority   Priority               `json:"priority"`
	Timestamp  time.Time              `json:"timestamp"`
	Executed   bool                   `json:"executed"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the fields the pipeline depends on. Unknown actions are
// rejected here so later stages only see the four known variants.
func (s *TradingSignal) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidSignal)
	case s.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidSignal)
	case !s.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s.Action)
	case s.Confidence < 0 || s.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidSignal, s.Confidence)
	case !s.Priority.Valid():
		return fmt.Errorf("%w: unknown priority %d", ErrInvalidSignal, int(s.Priority))
	}
	switch s.RiskLevel {
	case "", RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("%w: unknown risk level %q", ErrInvalidSignal, s.RiskLevel)
	}
	return nil
}

type ResultStatus string

const (
	StatusExecuted ResultStatus = "EXECUTED"
	StatusFailed   ResultStatus = "FAILED"
	StatusRejected ResultStatus = "REJECTED"
	// StatusDryRun marks an approved signal that was not sent because auto execution is off.
	StatusDryRun ResultStatus = "DRY_RUN"
)

type SignalProcessingResult struct {
	SignalID      string                 `json:"signalId"`
	Symbol        string                 `json:"symbol"`
	Success       bool                   `json:"success"`
	Status        ResultStatus           `json:"status"`
	ExecutionTime time.Duration          `json:"-"`
	Timestamp     time.Time              `json:"timestamp"`
	OrderID       string                 `json:"orderId,omitempty"`
	Error         string                 `json:"error,omitempty"`
	RiskScore     float64                `json:"riskScore"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// MarshalJSON writes ExecutionTime as milliseconds.
func (r SignalProcessingResult) MarshalJSON() ([]byte, error) {
	type alias SignalProcessingResult
	return json.Marshal(struct {
		alias
		ExecutionTime int64 `json:"executionTimeMs"`
	}{alias: alias(r), ExecutionTime: r.ExecutionTime.Milliseconds()})
}

type ProcessorConfig struct {
	MaxConcurrentSignals  int           `json:"maxConcurrentSignals"`
	ProcessingInterval    time.Duration `json:"processingInterval"`
	MaxQueueSize          int           `json:"maxQueueSize"`
	EnableAutoExecution   bool          `json:"enableAutoExecution"`
	EnableRiskGuards      bool          `json:"enableRiskGuards"`
	EnableMetrics         bool          `json:"enableMetrics"`
	TwapNotionalThreshold float64       `json:"twapNotionalThreshold"`
	HistorySize           int           `json:"historySize"`
}

// ProcessorConfigPatch carries a partial update; nil fields are left unchanged.
type ProcessorConfigPatch struct {
	MaxConcurrentSignals  *int           `json:"maxConcurrentSignals,omitempty" validate:"omitempty,gte=1,lte=100"`
	ProcessingIntervalMs  *int           `json:"processingIntervalMs,omitempty" validate:"omitempty,gte=10"`
	MaxQueueSize          *int           `json:"maxQueueSize,omitempty" validate:"omitempty,gte=1"`
	EnableAutoExecution   *bool          `json:"enableAutoExecution,omitempty"`
	EnableRiskGuards      *bool          `json:"enableRiskGuards,omitempty"`
	EnableMetrics         *bool          `json:"enableMetrics,omitempty"`
	TwapNotionalThreshold *float64       `json:"twapNotionalThreshold,omitempty" validate:"omitempty,gte=0"`
	ProcessingInterval    *time.Duration `json:"-"`
}

// Validate rejects values the drain loop cannot run with.
func (c ProcessorConfig) Validate() error {
	switch {
	case c.MaxConcurrentSignals <= 0:
		return fmt.Errorf("%w: maxConcurrentSignals must be positive", ErrInvalidConfig)
	case c.ProcessingInterval <= 0:
		return fmt.Errorf("%w: processing interval must be positive", ErrInvalidConfig)
	case c.MaxQueueSize <= 0:
		return fmt.Errorf("%w: maxQueueSize must be positive", ErrInvalidConfig)
	case c.TwapNotionalThreshold < 0:
		return fmt.Errorf("%w: twapNotionalThreshold must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c ProcessorConfig) Merge(p ProcessorConfigPatch) ProcessorConfig {
	if p.MaxConcurrentSignals != nil {
		c.MaxConcurrentSignals = *p.MaxConcurrentSignals
	}
	if p.ProcessingInterval != nil {
		c.ProcessingInterval = *p.ProcessingInterval
	} else if p.ProcessingIntervalMs != nil {
		c.ProcessingInterval = time.Duration(*p.ProcessingIntervalMs) * time.Millisecond
	}
	if p.MaxQueueSize != nil {
		c.MaxQueueSize = *p.MaxQueueSize
	}
	if p.EnableAutoExecution != nil {
		c.EnableAutoExecution = *p.EnableAutoExecution
	}
	if p.EnableRiskGuards != nil {
		c.EnableRiskGuards = *p.EnableRiskGuards
	}
	if p.EnableMetrics != nil {
		c.EnableMetrics = *p.EnableMetrics
	}
	if p.TwapNotionalThreshold != nil {
		c.TwapNotionalThreshold = *p.TwapNotionalThreshold
	}
	return c
}

type ProcessorState string

const (
	ProcessorRunning ProcessorState = "running"
	ProcessorStopped ProcessorState = "stopped"
)

type ProcessorStatus struct {
	State         ProcessorState `json:"state"`
	QueueSize     int            `json:"queueSize"`
	ActiveSignals int            `json:"activeSignals"`
	IsRunning     bool           `json:"isRunning"`
}

type ProcessorMetrics struct {
	TotalSignals          int64     `json:"totalSignals"`
	ValidatedSignals      int64     `json:"validatedSignals"`
	RejectedSignals       int64     `json:"rejectedSignals"`
	ExecutedSignals       int64     `json:"executedSignals"`
	FailedSignals         int64     `json:"failedSignals"`
	AverageProcessingTime float64   `json:"averageProcessingTimeMs"`
	SuccessRate           float64   `json:"successRate"`
	LastSignalTime        time.Time `json:"lastSignalTime"`
	QueueSize             int       `json:"queueSize"`
	ActiveSignals         int       `json:"activeSignals"`
}
