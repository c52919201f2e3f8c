package models

import "errors"

var (
	ErrInvalidSignal   = errors.New("invalid signal")
	ErrDuplicateSignal = errors.New("signal already being executed")
	ErrExecutorStopped = errors.New("signal executor is not running")
	ErrNoPosition      = errors.New("no open position")
	ErrRequestInFlight = errors.New("request already in progress")
	ErrUnknownTwap     = errors.New("unknown twap plan")
	ErrInvalidPlan     = errors.New("invalid twap plan")
	ErrNotFound        = errors.New("not found")
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidConfig   = errors.New("invalid processor config")
)
