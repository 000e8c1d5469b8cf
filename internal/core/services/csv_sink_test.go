package services

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/internal/core/simulator"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func syntheticProvider(t *testing.T) *dataset.Provider {
	t.Helper()
	cfg := dataset.SyntheticConfig{Classes: 4, Dim: 8, TrainPerClass: 50, TestPerClass: 20, Separation: 4, Noise: 1}
	return dataset.NewProvider(t.TempDir(), dataset.WithSynthetic(cfg, 11))
}

func syntheticParams() models.SimulationParams {
	return models.SimulationParams{
		Algorithm:    models.AlgorithmFedAvg,
		Partitioning: models.PartitionIID,
		Areas:        2,
		Dataset:      dataset.SyntheticName,
		Clients:      4,
		BatchSize:    16,
		LocalEpochs:  2,
		GlobalRounds: 3,
		LearningRate: 0.1,
		Mu:           0.01,
		Parallelism:  1,
	}
}

func TestCSVSinkWritesScenarioFiles(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	sink := NewCSVSink(dataDir)
	params := syntheticParams()

	sim, err := simulator.New(context.Background(), simulator.Options{
		Params:   params,
		Provider: syntheticProvider(t),
		Sinks:    []ports.ResultSink{sink},
	})
	require.NoError(t, err)
	_, err = sim.Start(context.Background(), params.GlobalRounds)
	require.NoError(t, err)

	assert.Equal(t,
		filepath.Join(dataDir, "seed-0_algorithm-fedavg_dataset-Synthetic_partitioning-IID_areas-2_clients-4.csv"),
		sink.RoundsPath(params))

	rows := readCSV(t, sink.RoundsPath(params))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Round", "TrainingLoss", "ValidationLoss", "ValidationAccuracy"}, rows[0])
	for i, row := range rows[1:] {
		assert.Equal(t, []string{"0", "1", "2"}[i], row[0])
	}

	test := readCSV(t, sink.TestPath(params))
	require.Len(t, test, 2)
	assert.Equal(t, []string{"Loss", "Accuracy"}, test[0])
}

func TestCSVSinkFormatsValues(t *testing.T) {
	sink := NewCSVSink(t.TempDir())
	result := &models.SimulationResult{
		Params: syntheticParams(),
		Rounds: []models.RoundRecord{{Round: 0, TrainingLoss: 2.5, ValidationLoss: 1.25, ValidationAccuracy: 0.5}},
		Test:   models.TestRecord{Loss: 0.75, Accuracy: 1},
	}
	require.NoError(t, sink.Write(context.Background(), result))

	rows := readCSV(t, sink.RoundsPath(result.Params))
	assert.Equal(t, []string{"0", "2.5", "1.25", "0.5"}, rows[1])

	test := readCSV(t, sink.TestPath(result.Params))
	assert.Equal(t, []string{"0.75", "1"}, test[1])
}
