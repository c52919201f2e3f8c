package models

import (
	"fmt"
	"time"
)

type StrategyStatus string

const (
	StrategyDraft   StrategyStatus = "draft"
	StrategyActive  StrategyStatus = "active"
	StrategyPaused  StrategyStatus = "paused"
	StrategyStopped StrategyStatus = "stopped"
)

type StrategyAction string

const (
	StrategyStart StrategyAction = "start"
	StrategyPause StrategyAction = "pause"
	StrategyStop  StrategyAction = "stop"
)

// Target returns the status an action moves a strategy to.
func (a StrategyAction) Target() (StrategyStatus, error) {
	switch a {
	case StrategyStart:
		return StrategyActive, nil
	case StrategyPause:
		return StrategyPaused, nil
	case StrategyStop:
		return StrategyStopped, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, string(a))
}

type Strategy struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	Name      string         `json:"name" gorm:"size:255"`
	Status    StrategyStatus `json:"status" gorm:"size:16;not null"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (Strategy) TableName() string { return "strategies" }

type StrategyTransition struct {
	StrategyID     string         `json:"strategyId"`
	IdempotencyKey string         `json:"idempotencyKey"`
	PrevStatus     StrategyStatus `json:"prevStatus"`
	NewStatus      StrategyStatus `json:"newStatus"`
	Replayed       bool           `json:"replayed"`
}
