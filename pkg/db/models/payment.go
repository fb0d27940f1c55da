package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
)

// Payment is the durable record of one top-up attempt with one provider.
//
// Invariants enforced across the reconciler:
//
//	CreditsAdded => Processed => Status == approved
//
// Status moves forward only; Processed and CreditsAdded flip false->true once.
type Payment struct {
	ID       uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider enums.PaymentProvider `gorm:"column:provider;type:text;not null;index"`
	OwnerID  uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;index"`
	APIKeyID uuid.UUID             `gorm:"column:api_key_id;type:uuid;not null;index"`

	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency string          `gorm:"column:currency;not null"`
	// CreditsToAdd is computed from amount/currency at creation and fixed
	// thereafter.
	CreditsToAdd int64 `gorm:"column:credits_to_add;not null"`

	Status       enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	Processed    bool                `gorm:"column:processed;not null;default:false"`
	CreditsAdded bool                `gorm:"column:credits_added;not null;default:false"`

	// ProviderRef is the provider-side cross-reference (transaction id,
	// payment intent id) used when a payload lacks our payment id.
	ProviderRef     *string         `gorm:"column:provider_ref;index"`
	ProviderPayload json.RawMessage `gorm:"column:provider_payload;type:jsonb"`
	CancelReason    *string         `gorm:"column:cancel_reason"`

	ApprovedAt *time.Time `gorm:"column:approved_at"`
	CreditedAt *time.Time `gorm:"column:credited_at"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null;index"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

// PendingExpired reports whether the record sat pending past its expiry.
func (p *Payment) PendingExpired(now time.Time) bool {
	return p != nil && p.Status == enums.PaymentPending && now.After(p.ExpiresAt)
}

// CanProcess reports whether the approved record is still awaiting its
// one-time credit grant. Expiry deliberately does not gate this: approvals
// that land after the pending TTL are processed rather than stranded.
func (p *Payment) CanProcess() bool {
	return p != nil && p.Status == enums.PaymentApproved && !p.Processed
}
