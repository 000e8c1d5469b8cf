package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "runs.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SimulationRun{}, &models.RoundMetric{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testParams(seed int64) models.SimulationParams {
	return models.SimulationParams{
		Algorithm:    models.AlgorithmScaffold,
		Partitioning: models.PartitionDirichlet,
		Areas:        3,
		Dataset:      "MNIST",
		Clients:      50,
		GlobalRounds: 30,
		Seed:         seed,
	}
}

func TestSimulationRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSimulationRunRepository(openTestDB(t))

	older := models.NewSimulationRun(testParams(0))
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := models.NewSimulationRun(testParams(1))
	newer.ModelSnapshot = []byte{1, 2, 3}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ExportStem, got.ExportStem)
	assert.Equal(t, []byte{1, 2, 3}, got.ModelSnapshot)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	runs, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)

	runs, err = repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, older.ID, runs[0].ID)

	byStem, err := repo.GetByExportStem(ctx, older.ExportStem)
	require.NoError(t, err)
	require.Len(t, byStem, 1)
	assert.Equal(t, older.ID, byStem[0].ID)

	now := time.Now()
	got.Status = models.RunStatusCompleted
	got.TestAccuracy = 0.9
	got.CompletedAt = &now
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, updated.Status)
	assert.Equal(t, 0.9, updated.TestAccuracy)
	assert.NotNil(t, updated.CompletedAt)
}

func TestRoundMetricRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runs := NewSimulationRunRepository(db)
	metrics := NewRoundMetricRepository(db)

	run := models.NewSimulationRun(testParams(0))
	require.NoError(t, runs.Create(ctx, run))

	batch := []*models.RoundMetric{
		models.NewRoundMetric(run.ID, models.RoundRecord{Round: 1, TrainingLoss: 1.1}),
		models.NewRoundMetric(run.ID, models.RoundRecord{Round: 0, TrainingLoss: 2.2}),
		models.NewRoundMetric(uuid.New(), models.RoundRecord{Round: 0}),
	}
	require.NoError(t, metrics.CreateBatch(ctx, batch))
	require.NoError(t, metrics.CreateBatch(ctx, nil))

	got, err := metrics.GetByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Round)
	assert.Equal(t, 2.2, got[0].TrainingLoss)
	assert.Equal(t, models.RoundRecord{Round: 1, TrainingLoss: 1.1}, got[1].Record())

	require.NoError(t, runs.Delete(ctx, run.ID))
	got, err = metrics.GetByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	_, err = runs.GetByID(ctx, run.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
