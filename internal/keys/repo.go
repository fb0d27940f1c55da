package keys

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zeuslykraios/alauda-api/internal/repo"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
)

// Repository handles API key persistence. ConsumeCAS and AddCredits are the
// only write paths touching the balance; both are conditional updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, key *models.APIKey) error
	Update(ctx context.Context, key *models.APIKey) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	FindByDigest(ctx context.Context, digest string) (*models.APIKey, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.APIKey, error)
	// ConsumeCAS applies the full on-success mutation, conditioned on the
	// balance still being snap.Credits. Returns false on a lost race.
	ConsumeCAS(ctx context.Context, snap ConsumeSnapshot) (bool, error)
	// RecordFailure bumps the total/failure counters only.
	RecordFailure(ctx context.Context, id uuid.UUID) error
	// AddCredits increments the balance additively.
	AddCredits(ctx context.Context, id uuid.UUID, amount int64) error
	UpdateLastRequestIP(ctx context.Context, id uuid.UUID, ip string) error
}

// ConsumeSnapshot carries the read state a consume attempt was computed from.
type ConsumeSnapshot struct {
	ID uuid.UUID
	// Credits is the balance observed at admission; the update only lands
	// if the stored balance still matches.
	Credits int64
	// Cost may be zero for unlimited-credit plans.
	Cost          int64
	RequestsToday int
	RequestedAt   time.Time
}

type repository struct {
	repo.Base
}

// NewRepository returns an API key repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, key *models.APIKey) error {
	return r.DB(ctx).Create(key).Error
}

func (r *repository) Update(ctx context.Context, key *models.APIKey) error {
	return r.DB(ctx).Save(key).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	err := r.DB(ctx).Where("id = ?", id).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repository) FindByDigest(ctx context.Context, digest string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.DB(ctx).Where("token_digest = ?", digest).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.APIKey, error) {
	var list []models.APIKey
	if err := r.DB(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) ConsumeCAS(ctx context.Context, snap ConsumeSnapshot) (bool, error) {
	res := r.DB(ctx).Model(&models.APIKey{}).
		Where("id = ? AND credits = ?", snap.ID, snap.Credits).
		Updates(map[string]any{
			"credits":         snap.Credits - snap.Cost,
			"total_requests":  gorm.Expr("total_requests + 1"),
			"success_count":   gorm.Expr("success_count + 1"),
			"requests_today":  snap.RequestsToday,
			"last_request_at": snap.RequestedAt,
			"updated_at":      snap.RequestedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordFailure(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_requests": gorm.Expr("total_requests + 1"),
			"failure_count":  gorm.Expr("failure_count + 1"),
		}).Error
}

func (r *repository) AddCredits(ctx context.Context, id uuid.UUID, amount int64) error {
	return r.DB(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("credits", gorm.Expr("credits + ?", amount)).Error
}

func (r *repository) UpdateLastRequestIP(ctx context.Context, id uuid.UUID, ip string) error {
	return r.DB(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_request_ip", ip).Error
}
