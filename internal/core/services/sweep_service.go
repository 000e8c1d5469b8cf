package services

import (
	"context"
	"fmt"

	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/internal/core/simulator"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

var (
	sweepDatasets   = []string{"MNIST", "FashionMNIST", "EMNIST"}
	sweepAlgorithms = []models.Algorithm{models.AlgorithmFedAvg, models.AlgorithmFedProx, models.AlgorithmScaffold}
)

// DefaultGrid enumerates the standard experiment campaign for seeds 0..seeds-1.
// base provides every parameter the grid does not vary.
func DefaultGrid(seeds int, base models.SimulationParams) []models.SimulationParams {
	var grid []models.SimulationParams
	add := func(seed int, alg models.Algorithm, strategy models.PartitionStrategy, dataset string, areas int) {
		p := base
		p.Seed = int64(seed)
		p.Algorithm = alg
		p.Partitioning = strategy
		p.Dataset = dataset
		p.Areas = areas
		grid = append(grid, p)
	}

	for seed := 0; seed < seeds; seed++ {
		for _, dataset := range sweepDatasets {
			add(seed, models.AlgorithmFedAvg, models.PartitionIID, dataset, 3)
		}
	}

	for seed := 0; seed < seeds; seed++ {
		for _, alg := range sweepAlgorithms {
			for _, dataset := range sweepDatasets {
				for _, areas := range []int{3, 6, 9} {
					add(seed, alg, models.PartitionDirichlet, dataset, areas)
				}
			}
		}
	}

	for seed := 0; seed < seeds; seed++ {
		for _, alg := range sweepAlgorithms {
			for _, areas := range []int{3, 5, 9} {
				add(seed, alg, models.PartitionHard, "EMNIST", areas)
			}
		}
	}

	for seed := 0; seed < seeds; seed++ {
		for _, alg := range sweepAlgorithms {
			for _, dataset := range []string{"MNIST", "FashionMNIST"} {
				add(seed, alg, models.PartitionHard, dataset, 3)
			}
		}
	}

	return grid
}

// SweepService runs configurations one after another. The first failing
// configuration stops the sweep.
type SweepService struct {
	provider ports.DatasetProvider
	sinks    []ports.ResultSink
	progress *ProgressService
}

func NewSweepService(provider ports.DatasetProvider, sinks []ports.ResultSink, progress *ProgressService) *SweepService {
	return &SweepService{
		provider: provider,
		sinks:    sinks,
		progress: progress,
	}
}

func (s *SweepService) Run(ctx context.Context, configs []models.SimulationParams) ([]*models.SimulationResult, error) {
	log := logger.WithComponent("sweep_service")

	if s.progress != nil {
		s.progress.Reset(len(configs))
	}

	results := make([]*models.SimulationResult, 0, len(configs))
	for i, params := range configs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		stem := params.ExportStem()
		if s.progress != nil {
			s.progress.Begin(stem)
		}
		log.Info().
			Int("index", i).
			Int("total", len(configs)).
			Str("config", stem).
			Msg("Starting simulation")

		result, err := s.runOne(ctx, params)
		if err != nil {
			log.Error().Err(err).Str("config", stem).Msg("Sweep stopped")
			return results, fmt.Errorf("sweep stopped at configuration %d (%s): %w", i, stem, err)
		}
		results = append(results, result)

		if s.progress != nil {
			s.progress.Complete()
		}
	}

	log.Info().Int("experiments", len(results)).Msg("Sweep completed")
	return results, nil
}

func (s *SweepService) runOne(ctx context.Context, params models.SimulationParams) (*models.SimulationResult, error) {
	sim, err := simulator.New(ctx, simulator.Options{
		Params:   params,
		Provider: s.provider,
		Sinks:    s.sinks,
	})
	if err != nil {
		return nil, err
	}
	sim.SeedEverything(params.Seed)
	return sim.Start(ctx, params.GlobalRounds)
}
