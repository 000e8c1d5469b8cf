package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnknownStrategy      = errors.New("unknown partitioning strategy")
)

// Algorithm is the closed set of aggregation approaches a simulation can run.
type Algorithm string

const (
	AlgorithmFedAvg   Algorithm = "fedavg"
	AlgorithmFedProx  Algorithm = "fedproxy"
	AlgorithmScaffold Algorithm = "scaffold"
)

func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fedavg":
		return AlgorithmFedAvg, nil
	case "fedproxy", "fedprox":
		return AlgorithmFedProx, nil
	case "scaffold":
		return AlgorithmScaffold, nil
	default:
		return "", fmt.Errorf("algorithm %q: %w", name, ErrUnsupportedAlgorithm)
	}
}

type PartitionStrategy string

const (
	PartitionIID       PartitionStrategy = "IID"
	PartitionDirichlet PartitionStrategy = "Dirichlet"
	PartitionHard      PartitionStrategy = "Hard"
)

func ParsePartitionStrategy(name string) (PartitionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "iid":
		return PartitionIID, nil
	case "dirichlet":
		return PartitionDirichlet, nil
	case "hard":
		return PartitionHard, nil
	default:
		return "", fmt.Errorf("strategy %q: %w", name, ErrUnknownStrategy)
	}
}

// RoundRecord is one row of the round series.
type RoundRecord struct {
	Round              int     `json:"round"`
	TrainingLoss       float64 `json:"training_loss"`
	ValidationLoss     float64 `json:"validation_loss"`
	ValidationAccuracy float64 `json:"validation_accuracy"`
}

// TestRecord is the held-out evaluation of the final global model.
type TestRecord struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// SimulationParams identifies one configuration of the experiment grid.
type SimulationParams struct {
	Algorithm    Algorithm         `json:"algorithm"`
	Partitioning PartitionStrategy `json:"partitioning"`
	Areas        int               `json:"areas"`
	Dataset      string            `json:"dataset"`
	Clients      int               `json:"clients"`
	BatchSize    int               `json:"batch_size"`
	LocalEpochs  int               `json:"local_epochs"`
	GlobalRounds int               `json:"global_rounds"`
	Seed         int64             `json:"seed"`
	LearningRate float64           `json:"learning_rate"`
	Mu           float64           `json:"mu"`
	Parallelism  int               `json:"parallelism"`
}

// ExportStem is the file name shared by the round series and the test record.
func (p SimulationParams) ExportStem() string {
	return fmt.Sprintf(
		"seed-%d_algorithm-%s_dataset-%s_partitioning-%s_areas-%d_clients-%d",
		p.Seed,
		p.Algorithm,
		p.Dataset,
		p.Partitioning,
		p.Areas,
		p.Clients,
	)
}

func (p SimulationParams) Validate() error {
	if _, err := ParseAlgorithm(string(p.Algorithm)); err != nil {
		return err
	}
	if _, err := ParsePartitionStrategy(string(p.Partitioning)); err != nil {
		return err
	}
	switch {
	case p.Areas <= 0:
		return fmt.Errorf("areas must be positive, got %d", p.Areas)
	case p.Clients < p.Areas:
		return fmt.Errorf("%d clients cannot cover %d areas", p.Clients, p.Areas)
	case p.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", p.BatchSize)
	case p.LocalEpochs <= 0:
		return fmt.Errorf("local epochs must be positive, got %d", p.LocalEpochs)
	case p.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", p.LearningRate)
	case p.Dataset == "":
		return fmt.Errorf("dataset name is required")
	}
	return nil
}

// SimulationResult is everything a finished run hands to its result sinks.
type SimulationResult struct {
	Params      SimulationParams `json:"params"`
	Rounds      []RoundRecord    `json:"rounds"`
	Test        TestRecord       `json:"test"`
	ModelParams []float64        `json:"-"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}
