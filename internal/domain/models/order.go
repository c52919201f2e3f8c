package models

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

type OrderStatus string

const (
	OrderFilled    OrderStatus = "filled"
	OrderPartial   OrderStatus = "partial"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

type ExecutionOrder struct {
	Symbol        string                 `json:"symbol"`
	Side          OrderSide              `json:"side"`
	Quantity      float64                `json:"quantity"`
	OrderType     OrderType              `json:"orderType"`
	ReduceOnly    bool                   `json:"reduceOnly"`
	ClientOrderID string                 `json:"clientOrderId"`
	Price         float64                `json:"price,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type ExecutionResult struct {
	OrderID   string                 `json:"orderId"`
	Symbol    string                 `json:"symbol"`
	Side      OrderSide              `json:"side"`
	Quantity  float64                `json:"quantity"`
	Price     float64                `json:"price"`
	Status    OrderStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Fees      float64                `json:"fees"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SymbolFilters are exchange trading rules for one instrument.
type SymbolFilters struct {
	Symbol      string  `json:"symbol"`
	StepSize    float64 `json:"stepSize"`
	TickSize    float64 `json:"tickSize"`
	MinQty      float64 `json:"minQty"`
	MinNotional float64 `json:"minNotional"`
}

// Candle is an OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Trade is a single market print from the price stream.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

type ExecutionStats struct {
	TotalExecutions      int       `json:"totalExecutions"`
	SuccessRate          float64   `json:"successRate"`
	AverageExecutionTime float64   `json:"averageExecutionTimeMs"`
	LastExecutionTime    time.Time `json:"lastExecutionTime"`
	ActiveSignals        int       `json:"activeSignals"`
}
