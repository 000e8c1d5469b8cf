package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"gorm.io/gorm"
)

type SimulationRunRepository struct {
	db *gorm.DB
}

func NewSimulationRunRepository(db *gorm.DB) ports.RunRepository {
	return &SimulationRunRepository{
		db: db,
	}
}

func (r *SimulationRunRepository) Create(ctx context.Context, run *models.SimulationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *SimulationRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error) {
	var run models.SimulationRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *SimulationRunRepository) GetByExportStem(ctx context.Context, stem string) ([]*models.SimulationRun, error) {
	var runs []*models.SimulationRun
	err := r.db.WithContext(ctx).Where("export_stem = ?", stem).Order("created_at DESC").Find(&runs).Error
	return runs, err
}

// List returns runs newest first. A non-positive limit returns every run.
func (r *SimulationRunRepository) List(ctx context.Context, limit, offset int) ([]*models.SimulationRun, error) {
	var runs []*models.SimulationRun
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&runs).Error
	return runs, err
}

func (r *SimulationRunRepository) Update(ctx context.Context, run *models.SimulationRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *SimulationRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&models.RoundMetric{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.SimulationRun{}).Error
	})
}
