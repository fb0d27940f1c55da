package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zeuslykraios/alauda-api/internal/repo"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
)

// Repository persists payment records. Status moves only through
// TransitionStatus and the expiry sweep; the processed flag flips only
// through ClaimProcessing. All three are conditional updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Payment, error)
	// TransitionStatus moves a record from one status to another in a single
	// conditional update. Returns false when the stored status no longer
	// matches from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, fields map[string]any) (bool, error)
	// ClaimProcessing flips processed false->true for an approved record.
	// Returns false when the record was already claimed or is not approved.
	ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCreditsAdded(ctx context.Context, id uuid.UUID, at time.Time) error
	ListUnprocessedApproved(ctx context.Context, limit int) ([]models.Payment, error)
	ListInProcess(ctx context.Context, limit int) ([]models.Payment, error)
	// CancelExpiredPending bulk-cancels pending records past expiry.
	CancelExpiredPending(ctx context.Context, now time.Time, limit int) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).Where("id = ?", id).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).
		Where("provider = ? AND provider_ref = ?", provider, ref).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []models.Payment
	if err := r.DB(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.DB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND processed = ?", id, enums.PaymentApproved, false).
		Update("processed", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkCreditsAdded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"credits_added": true,
			"credited_at":   at,
		}).Error
}

func (r *repository) ListUnprocessedApproved(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.Payment
	if err := r.DB(ctx).
		Where("status = ? AND processed = ?", enums.PaymentApproved, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) ListInProcess(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.Payment
	if err := r.DB(ctx).
		Where("status = ?", enums.PaymentInProcess).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) CancelExpiredPending(ctx context.Context, now time.Time, limit int) (int64, error) {
	reason := "expired"
	query := r.DB(ctx).Model(&models.Payment{}).
		Where("status = ? AND expires_at < ?", enums.PaymentPending, now)
	if limit > 0 {
		sub := r.DB(ctx).Model(&models.Payment{}).
			Select("id").
			Where("status = ? AND expires_at < ?", enums.PaymentPending, now).
			Order("expires_at ASC").
			Limit(limit)
		query = r.DB(ctx).Model(&models.Payment{}).
			Where("id IN (?)", sub)
	}
	res := query.Updates(map[string]any{
		"status":        enums.PaymentCancelled,
		"cancel_reason": reason,
		"updated_at":    now,
	})
	return res.RowsAffected, res.Error
}
