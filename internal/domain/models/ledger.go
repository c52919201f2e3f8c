package models

import (
	"encoding/json"
	"time"
)

// AuditLogEntry is one link of the hash chain.
// Hash = SHA256(prevHash|timestamp|action|actor|payload).
type AuditLogEntry struct {
	ID        string          `json:"id" gorm:"primaryKey;size:36"`
	Seq       int64           `json:"seq" gorm:"uniqueIndex;not null"`
	Action    string          `json:"action" gorm:"size:128;index;not null"`
	Actor     string          `json:"actor" gorm:"size:128;not null"`
	Payload   json.RawMessage `json:"payload" gorm:"type:text"`
	PrevHash  string          `json:"prevHash" gorm:"size:64"`
	Hash      string          `json:"hash" gorm:"size:64;uniqueIndex;not null"`
	Timestamp time.Time       `json:"timestamp" gorm:"not null"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }

type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"
	IdempotencyCompleted IdempotencyStatus = "completed"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

type IdempotencyKey struct {
	Key       string            `json:"key" gorm:"primaryKey;size:255"`
	Status    IdempotencyStatus `json:"status" gorm:"size:16;not null"`
	Result    json.RawMessage   `json:"result,omitempty" gorm:"type:text"`
	TTLAt     time.Time         `json:"ttlAt" gorm:"index;not null"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }

type AuditVerification struct {
	OK       bool  `json:"ok"`
	Entries  int64 `json:"entries"`
	BrokenAt int64 `json:"brokenAt,omitempty"`
}
