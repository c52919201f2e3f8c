package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "FinExec/internal/domain/repository"
	"FinExec/pkg/cache"
)

var _ domrepo.RiskStateStore = (*CacheRiskState)(nil)

// dailyTTL keeps a day's counter around past rollover in every timezone.
const dailyTTL = 48 * time.Hour

// CacheRiskState stores the risk gate state in a cache.Service. With the
// Redis cache every instance sees the same emergency stop and trade count.
// Daily counters live under one key per date so a rollover starts from zero
// without an explicit reset.
type CacheRiskState struct {
	c      cache.Service
	prefix string
}

func NewCacheRiskState(c cache.Service, prefix string) *CacheRiskState {
	if prefix == "" {
		prefix = "risk"
	}
	return &CacheRiskState{c: c, prefix: prefix}
}

func (s *CacheRiskState) EmergencyStop(ctx context.Context) (bool, error) {
	var active bool
	if err := s.get(ctx, s.key("emergency_stop"), &active); err != nil {
		return false, fmt.Errorf("read emergency stop: %w", err)
	}
	return active, nil
}

func (s *CacheRiskState) SetEmergencyStop(ctx context.Context, active bool) error {
	if err := s.c.Set(ctx, s.key("emergency_stop"), active, 0); err != nil {
		return fmt.Errorf("set emergency stop: %w", err)
	}
	return nil
}

func (s *CacheRiskState) DailyCount(ctx context.Context, dateKey string) (int, error) {
	var n int
	if err := s.get(ctx, s.key("daily", dateKey), &n); err != nil {
		return 0, fmt.Errorf("read daily count: %w", err)
	}
	return n, nil
}

func (s *CacheRiskState) IncrementDaily(ctx context.Context, dateKey string) (int, error) {
	key := s.key("daily", dateKey)
	n, err := s.c.Increment(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment daily count: %w", err)
	}
	if n == 1 {
		if _, err := s.c.Expire(ctx, key, dailyTTL); err != nil {
			return int(n), fmt.Errorf("expire daily count: %w", err)
		}
	}
	if err := s.c.Set(ctx, s.key("daily_date"), dateKey, dailyTTL); err != nil {
		return int(n), fmt.Errorf("record daily date: %w", err)
	}
	return int(n), nil
}

func (s *CacheRiskState) LastTradeTime(ctx context.Context) (time.Time, error) {
	var ms int64
	if err := s.get(ctx, s.key("last_trade"), &ms); err != nil {
		return time.Time{}, fmt.Errorf("read last trade: %w", err)
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func (s *CacheRiskState) SetLastTradeTime(ctx context.Context, t time.Time) error {
	if err := s.c.Set(ctx, s.key("last_trade"), t.UnixMilli(), 0); err != nil {
		return fmt.Errorf("set last trade: %w", err)
	}
	return nil
}

func (s *CacheRiskState) Reset(ctx context.Context) error {
	keys := []string{s.key("emergency_stop"), s.key("last_trade"), s.key("daily_date")}
	var date string
	if err := s.get(ctx, s.key("daily_date"), &date); err != nil {
		return fmt.Errorf("read daily date: %w", err)
	}
	if date != "" {
		keys = append(keys, s.key("daily", date))
	}
	if err := s.c.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("reset risk state: %w", err)
	}
	return nil
}

// get treats a miss as the zero value.
func (s *CacheRiskState) get(ctx context.Context, key string, dest interface{}) error {
	err := s.c.Get(ctx, key, dest)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *CacheRiskState) key(parts ...interface{}) string {
	return cache.Key(s.prefix, parts...)
}
