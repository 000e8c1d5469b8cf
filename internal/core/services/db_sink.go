package services

import (
	"context"
	"fmt"

	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// DBSink stores a finished run, its round series and a compressed snapshot of
// the final global model.
type DBSink struct {
	runs    ports.RunRepository
	metrics ports.RoundMetricRepository
}

func NewDBSink(runs ports.RunRepository, metrics ports.RoundMetricRepository) *DBSink {
	return &DBSink{
		runs:    runs,
		metrics: metrics,
	}
}

func (s *DBSink) Name() string {
	return "database"
}

func (s *DBSink) Write(ctx context.Context, result *models.SimulationResult) error {
	run := models.NewSimulationRun(result.Params)
	finishedAt := result.FinishedAt
	run.Status = models.RunStatusCompleted
	run.TestLoss = result.Test.Loss
	run.TestAccuracy = result.Test.Accuracy
	run.ModelSnapshot = EncodeSnapshot(result.ModelParams)
	run.ParamCount = len(result.ModelParams)
	run.CreatedAt = result.StartedAt
	run.CompletedAt = &finishedAt

	log := logger.WithRunID(run.ID.String()).With().Str("component", "db_sink").Logger()

	if err := s.runs.Create(ctx, run); err != nil {
		log.Error().Err(err).Msg("Failed to create simulation run")
		return fmt.Errorf("failed to create simulation run: %w", err)
	}

	metrics := make([]*models.RoundMetric, len(result.Rounds))
	for i, record := range result.Rounds {
		metrics[i] = models.NewRoundMetric(run.ID, record)
	}
	if err := s.metrics.CreateBatch(ctx, metrics); err != nil {
		log.Error().Err(err).Msg("Failed to store round metrics")
		return fmt.Errorf("failed to store round metrics: %w", err)
	}

	log.Info().
		Str("export_stem", run.ExportStem).
		Int("rounds", len(metrics)).
		Int("snapshot_bytes", len(run.ModelSnapshot)).
		Msg("Simulation run stored")
	return nil
}
