package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("simulation run not found")

// RunService serves stored simulation runs to the results API.
type RunService struct {
	runs    ports.RunRepository
	metrics ports.RoundMetricRepository
}

func NewRunService(runs ports.RunRepository, metrics ports.RoundMetricRepository) *RunService {
	return &RunService{
		runs:    runs,
		metrics: metrics,
	}
}

func (s *RunService) ListRuns(ctx context.Context, limit, offset int) ([]*models.SimulationRun, error) {
	runs, err := s.runs.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *RunService) GetRun(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRounds returns the round series of a run in round order.
func (s *RunService) GetRounds(ctx context.Context, id uuid.UUID) ([]models.RoundRecord, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	metrics, err := s.metrics.GetByRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get round metrics: %w", err)
	}

	rounds := make([]models.RoundRecord, len(metrics))
	for i, m := range metrics {
		rounds[i] = m.Record()
	}
	return rounds, nil
}

// GetModel decodes the final global model stored with a run.
func (s *RunService) GetModel(ctx context.Context, id uuid.UUID) ([]float64, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(run.ModelSnapshot)
}
