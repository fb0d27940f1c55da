package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zeuslykraios/alauda-api/internal/repo"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
)

// Repository persists usage records. Rows are append-only; the only other
// write path is the age-based retention delete.
type Repository interface {
	Create(ctx context.Context, record *models.UsageRecord) error
	ListByKey(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Create(ctx context.Context, record *models.UsageRecord) error {
	return r.DB(ctx).Create(record).Error
}

func (r *repository) ListByKey(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.UsageRecord
	if err := r.DB(ctx).
		Where("api_key_id = ?", keyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.UsageRecord{})
	return res.RowsAffected, res.Error
}
