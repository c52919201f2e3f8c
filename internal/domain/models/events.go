package models

import "time"

type EventType string

const (
	EventSignalProcessed EventType = "signal.processed"
	EventSignalExecuted  EventType = "signal.executed"
	EventSignalFailed    EventType = "signal.failed"
	EventRiskBlocked     EventType = "risk.blocked"
	EventRiskWarning     EventType = "risk.warning"
	EventRiskAlert       EventType = "risk.alert"
	EventEmergencyStop   EventType = "risk.emergency_stop"
	EventTwapStarted     EventType = "twap.started"
	EventTwapSlice       EventType = "twap.slice"
	EventTwapFinished    EventType = "twap.finished"
	EventStrategyChanged EventType = "strategy.changed"
)

// Event is the envelope carried by the in-process bus and published to Kafka.
// Payload is one of the *Event structs below.
type Event struct {
	Type      EventType   `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type ExecutionEvent struct {
	Signal TradingSignal          `json:"signal"`
	Result SignalProcessingResult `json:"result"`
}

type RiskEvent struct {
	SignalID  string  `json:"signalId,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	RiskScore float64 `json:"riskScore"`
	Active    *bool   `json:"active,omitempty"`
}

type TwapEvent struct {
	PlanID  string  `json:"planId"`
	Slice   int     `json:"slice,omitempty"`
	Qty     float64 `json:"qty,omitempty"`
	OrderID string  `json:"orderId,omitempty"`
	Sent    int     `json:"sent"`
	Error   string  `json:"error,omitempty"`
}
