package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
)

// APIKey is an issued credential tied to a plan and prepaid credit balance.
// The raw token is never stored; lookups go through its SHA-256 digest.
type APIKey struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	TokenDigest string         `gorm:"column:token_digest;type:text;not null;uniqueIndex:idx_api_keys_token_digest"`
	TokenHint   string         `gorm:"column:token_hint;not null"`
	OwnerID     uuid.UUID      `gorm:"column:owner_id;type:uuid;not null;index"`
	Plan        enums.PlanTier `gorm:"column:plan;type:text;not null;default:'free'"`

	// Credits is the prepaid balance; the consume path guards it with a
	// conditional update so it can never go negative.
	Credits int64 `gorm:"column:credits;not null;default:0"`

	TotalRequests int64 `gorm:"column:total_requests;not null;default:0"`
	SuccessCount  int64 `gorm:"column:success_count;not null;default:0"`
	FailureCount  int64 `gorm:"column:failure_count;not null;default:0"`

	RequestsToday int        `gorm:"column:requests_today;not null;default:0"`
	LastRequestAt *time.Time `gorm:"column:last_request_at"`
	LastRequestIP *string    `gorm:"column:last_request_ip"`

	Active        bool       `gorm:"column:active;not null;default:true"`
	Suspended     bool       `gorm:"column:suspended;not null;default:false"`
	SuspendReason *string    `gorm:"column:suspend_reason"`
	ExpiresAt     *time.Time `gorm:"column:expires_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (APIKey) TableName() string { return "api_keys" }

// Usable reports whether the key may admit requests at the given instant.
func (k *APIKey) Usable(now time.Time) bool {
	if k == nil || !k.Active || k.Suspended {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// Expired reports whether the key's optional expiry has passed.
func (k *APIKey) Expired(now time.Time) bool {
	return k != nil && k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
