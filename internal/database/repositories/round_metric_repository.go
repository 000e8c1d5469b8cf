package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"gorm.io/gorm"
)

type RoundMetricRepository struct {
	db *gorm.DB
}

func NewRoundMetricRepository(db *gorm.DB) ports.RoundMetricRepository {
	return &RoundMetricRepository{
		db: db,
	}
}

func (r *RoundMetricRepository) CreateBatch(ctx context.Context, metrics []*models.RoundMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(metrics, 100).Error
}

func (r *RoundMetricRepository) GetByRun(ctx context.Context, runID uuid.UUID) ([]*models.RoundMetric, error) {
	var metrics []*models.RoundMetric
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("round ASC").Find(&metrics).Error
	return metrics, err
}

func (r *RoundMetricRepository) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("run_id = ?", runID).Delete(&models.RoundMetric{}).Error
}
