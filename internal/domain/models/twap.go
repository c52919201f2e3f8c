package models

import (
	"fmt"
	"time"
)

type TwapPlan struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	TotalQty   float64   `json:"totalQty"`
	Slices     int       `json:"slices"`
	MinMs      int       `json:"minMs"`
	MaxMs      int       `json:"maxMs"`
	Type       OrderType `json:"type"`
	LimitPrice float64   `json:"limitPrice,omitempty"`
	SignalID   string    `json:"signalId,omitempty"`
}

func (p *TwapPlan) Validate() error {
	switch {
	case p.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidPlan)
	case p.Side != SideBuy && p.Side != SideSell:
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidPlan)
	case p.TotalQty <= 0:
		return fmt.Errorf("%w: totalQty must be positive", ErrInvalidPlan)
	case p.Slices < 1:
		return fmt.Errorf("%w: slices must be at least 1", ErrInvalidPlan)
	case p.MinMs < 0 || p.MaxMs < p.MinMs:
		return fmt.Errorf("%w: require 0 <= minMs <= maxMs", ErrInvalidPlan)
	case p.Type == OrderLimit && p.LimitPrice <= 0:
		return fmt.Errorf("%w: limit orders need a limitPrice", ErrInvalidPlan)
	}
	return nil
}

type TwapState struct {
	Cancelled  bool       `json:"cancelled"`
	Sent       int        `json:"sent"`
	Filled     float64    `json:"filled"`
	Done       bool       `json:"done"`
	Err        string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

type TwapSnapshot struct {
	Plan  TwapPlan  `json:"plan"`
	State TwapState `json:"state"`
}

type TwapStats struct {
	Started    int64 `json:"started"`
	SlicesSent int64 `json:"slicesSent"`
	Cancelled  int64 `json:"cancelled"`
	Errored    int64 `json:"errored"`
	Completed  int64 `json:"completed"`
	Active     int   `json:"active"`
}
