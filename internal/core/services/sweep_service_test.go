package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/partition"
	"github.com/theblitlabs/fedsim/internal/core/ports"
)

func TestDefaultGrid(t *testing.T) {
	base := models.SimulationParams{Clients: 50, BatchSize: 32, LocalEpochs: 2, GlobalRounds: 30, LearningRate: 0.01}

	grid := DefaultGrid(2, base)
	require.Len(t, grid, 2*(3+27+9+6))

	assert.Equal(t, models.PartitionIID, grid[0].Partitioning)
	assert.Equal(t, "MNIST", grid[0].Dataset)
	assert.Equal(t, int64(0), grid[0].Seed)
	assert.Equal(t, int64(1), grid[3].Seed)

	counts := map[models.PartitionStrategy]int{}
	for _, p := range grid {
		counts[p.Partitioning]++
		assert.Equal(t, 50, p.Clients)
		assert.Equal(t, 30, p.GlobalRounds)
		if p.Partitioning == models.PartitionIID {
			assert.Equal(t, models.AlgorithmFedAvg, p.Algorithm)
			assert.Equal(t, 3, p.Areas)
		}
		if p.Partitioning == models.PartitionHard && p.Dataset != "EMNIST" {
			assert.Equal(t, 3, p.Areas)
		}
	}
	assert.Equal(t, 6, counts[models.PartitionIID])
	assert.Equal(t, 54, counts[models.PartitionDirichlet])
	assert.Equal(t, 30, counts[models.PartitionHard])

	assert.Empty(t, DefaultGrid(0, base))
}

func TestSweepRunsConfigurationsInOrder(t *testing.T) {
	progress := NewProgressService(time.Hour)
	sink := NewCSVSink(t.TempDir())
	sweep := NewSweepService(syntheticProvider(t), []ports.ResultSink{sink}, progress)

	first := syntheticParams()
	first.GlobalRounds = 1
	second := first
	second.Algorithm = models.AlgorithmScaffold
	second.Seed = 1

	results, err := sweep.Run(context.Background(), []models.SimulationParams{first, second})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, first, results[0].Params)
	assert.Equal(t, second, results[1].Params)
	assert.FileExists(t, sink.RoundsPath(second))

	p := progress.Snapshot()
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 2, p.Total)
	assert.Empty(t, p.Current)
}

func TestSweepStopsAtFirstFailure(t *testing.T) {
	progress := NewProgressService(time.Hour)
	sweep := NewSweepService(syntheticProvider(t), nil, progress)

	ok := syntheticParams()
	ok.GlobalRounds = 1
	bad := ok
	bad.Partitioning = models.PartitionHard
	bad.Areas = 5
	bad.Clients = 5
	never := ok
	never.Seed = 9

	results, err := sweep.Run(context.Background(), []models.SimulationParams{ok, bad, never})
	assert.ErrorIs(t, err, partition.ErrTooManyRegions)
	assert.Len(t, results, 1)

	p := progress.Snapshot()
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, bad.ExportStem(), p.Current)
}

func TestProgressServiceLifecycle(t *testing.T) {
	s := NewProgressService(time.Hour)
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	s.Reset(3)
	s.Begin("a")
	s.Complete()
	s.Begin("b")
	p := s.Snapshot()
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, "b", p.Current)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
