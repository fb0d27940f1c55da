package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
)

// UsageRecord is one immutable entry per gated call. Rows are only ever
// inserted and bulk-deleted by age; nothing updates them.
type UsageRecord struct {
	ID       uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	APIKeyID *uuid.UUID `gorm:"column:api_key_id;type:uuid;index"`
	// CallerKind distinguishes authenticated keys from the partner passthrough.
	CallerKind string             `gorm:"column:caller_kind;not null;default:'api_key'"`
	Operation  string             `gorm:"column:operation;not null;index"`
	Outcome    enums.UsageOutcome `gorm:"column:outcome;type:text;not null"`

	CreditsCharged   int64  `gorm:"column:credits_charged;not null;default:0"`
	CreditsRemaining *int64 `gorm:"column:credits_remaining"`

	StatusCode   int     `gorm:"column:status_code;not null;default:0"`
	ErrorMessage *string `gorm:"column:error_message"`
	LatencyMs    int64   `gorm:"column:latency_ms;not null;default:0"`
	ClientIP     string  `gorm:"column:client_ip"`
	UserAgent    string  `gorm:"column:user_agent"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (UsageRecord) TableName() string { return "usage_records" }
