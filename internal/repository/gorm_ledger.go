package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ domrepo.AuditRepository       = (*GormLedgerStore)(nil)
	_ domrepo.IdempotencyRepository = (*GormLedgerStore)(nil)
	_ domrepo.StrategyRepository    = (*GormLedgerStore)(nil)
)

// appendRetries bounds retries when another writer took the next sequence first.
const appendRetries = 5

// GormLedgerStore keeps the audit chain, idempotency keys and strategies in
// one relational database.
type GormLedgerStore struct {
	db *gorm.DB
	// serializes chain appends within this process; the unique seq index
	// catches writers in other processes
	appendMu sync.Mutex
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.AuditLogEntry{}, &models.IdempotencyKey{}, &models.Strategy{}); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

func (s *GormLedgerStore) Append(ctx context.Context, build func(prevHash string, seq int64) (models.AuditLogEntry, error)) (models.AuditLogEntry, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var out models.AuditLogEntry
	var err error
	for attempt := 0; attempt < appendRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			prevHash, seq := "", int64(1)
			var last models.AuditLogEntry
			res := tx.Order("seq DESC").Limit(1).Find(&last)
			if res.Error != nil {
				return fmt.Errorf("read chain head: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				prevHash, seq = last.Hash, last.Seq+1
			}

			entry, err := build(prevHash, seq)
			if err != nil {
				return err
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			out = entry
			return nil
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return models.AuditLogEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return out, nil
}

func (s *GormLedgerStore) Scan(ctx context.Context, fn func(models.AuditLogEntry) bool) error {
	const batch = 500
	var after int64
	for {
		var rows []models.AuditLogEntry
		err := s.db.WithContext(ctx).Where("seq > ?", after).Order("seq ASC").Limit(batch).Find(&rows).Error
		if err != nil {
			return fmt.Errorf("scan audit log: %w", err)
		}
		for _, e := range rows {
			if !fn(e) {
				return nil
			}
			after = e.Seq
		}
		if len(rows) < batch {
			return nil
		}
	}
}

func (s *GormLedgerStore) Last(ctx context.Context) (*models.AuditLogEntry, error) {
	var last models.AuditLogEntry
	res := s.db.WithContext(ctx).Order("seq DESC").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("last audit entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &last, nil
}

func (s *GormLedgerStore) Get(ctx context.Context, key string) (*models.IdempotencyKey, error) {
	var k models.IdempotencyKey
	err := s.db.WithContext(ctx).Where(&models.IdempotencyKey{Key: key}).Take(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return &k, nil
}

func (s *GormLedgerStore) CreatePending(ctx context.Context, key string, ttlAt time.Time) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.IdempotencyKey{Key: key, Status: models.IdempotencyPending, TTLAt: ttlAt})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return models.ErrRequestInFlight
		}
		return fmt.Errorf("create idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRequestInFlight
	}
	return nil
}

func (s *GormLedgerStore) Complete(ctx context.Context, key string, result []byte) error {
	return s.finish(ctx, key, models.IdempotencyCompleted, result)
}

func (s *GormLedgerStore) Fail(ctx context.Context, key string, result []byte) error {
	return s.finish(ctx, key, models.IdempotencyFailed, result)
}

func (s *GormLedgerStore) finish(ctx context.Context, key string, status models.IdempotencyStatus, result []byte) error {
	res := s.db.WithContext(ctx).Model(&models.IdempotencyKey{Key: key}).
		Updates(map[string]interface{}{"status": status, "result": string(result)})
	if res.Error != nil {
		return fmt.Errorf("mark idempotency key %s: %w", status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("idempotency key %q: %w", key, models.ErrNotFound)
	}
	return nil
}

func (s *GormLedgerStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&models.IdempotencyKey{Key: key}).Error; err != nil {
		return fmt.Errorf("delete idempotency key: %w", err)
	}
	return nil
}

func (s *GormLedgerStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("ttl_at < ?", now).Delete(&models.IdempotencyKey{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired keys: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormLedgerStore) GetStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	var st models.Strategy
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("strategy %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return &st, nil
}

func (s *GormLedgerStore) CreateStrategy(ctx context.Context, st *models.Strategy) error {
	if st.Status == "" {
		st.Status = models.StrategyDraft
	}
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}
	return nil
}

func (s *GormLedgerStore) UpdateStrategyStatus(ctx context.Context, id string, status models.StrategyStatus) (*models.Strategy, error) {
	res := s.db.WithContext(ctx).Model(&models.Strategy{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return nil, fmt.Errorf("update strategy: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("strategy %q: %w", id, models.ErrNotFound)
	}
	return s.GetStrategy(ctx, id)
}
