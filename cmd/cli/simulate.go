package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/theblitlabs/fedsim/internal/core/app"
	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/simulator"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// AddSimulationFlags registers the per-run overrides shared by simulate and sweep.
func AddSimulationFlags(flags *pflag.FlagSet) {
	flags.String("algorithm", "", "Aggregation algorithm: fedavg, fedproxy, scaffold")
	flags.String("partitioning", "", "Data partitioning: IID, Dirichlet, Hard")
	flags.Int("areas", 0, "Number of regions")
	flags.String("dataset", "", "Dataset: MNIST, FashionMNIST, EMNIST, Synthetic")
	flags.Int("clients", 0, "Number of clients")
	flags.Int("batch-size", 0, "Mini-batch size")
	flags.Int("local-epochs", 0, "Local epochs per round")
	flags.Int("rounds", 0, "Global rounds")
	flags.Int64("seed", 0, "Random seed")
	flags.Float64("lr", 0, "Client learning rate")
	flags.Float64("mu", 0, "FedProx proximal weight")
	flags.Int("parallelism", 0, "Clients trained concurrently")
	flags.String("data-dir", "", "Directory for CSV output")
}

// applySimulationFlags overwrites configured values with flags the user set.
func applySimulationFlags(flags *pflag.FlagSet, sc *config.SimulationConfig) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("algorithm", func() (e error) { sc.Algorithm, e = flags.GetString("algorithm"); return })
	set("partitioning", func() (e error) { sc.Partitioning, e = flags.GetString("partitioning"); return })
	set("areas", func() (e error) { sc.Areas, e = flags.GetInt("areas"); return })
	set("dataset", func() (e error) { sc.Dataset, e = flags.GetString("dataset"); return })
	set("clients", func() (e error) { sc.Clients, e = flags.GetInt("clients"); return })
	set("batch-size", func() (e error) { sc.BatchSize, e = flags.GetInt("batch-size"); return })
	set("local-epochs", func() (e error) { sc.LocalEpochs, e = flags.GetInt("local-epochs"); return })
	set("rounds", func() (e error) { sc.GlobalRounds, e = flags.GetInt("rounds"); return })
	set("seed", func() (e error) { sc.Seed, e = flags.GetInt64("seed"); return })
	set("lr", func() (e error) { sc.LearningRate, e = flags.GetFloat64("lr"); return })
	set("mu", func() (e error) { sc.Mu, e = flags.GetFloat64("mu"); return })
	set("parallelism", func() (e error) { sc.Parallelism, e = flags.GetInt("parallelism"); return })
	set("data-dir", func() (e error) { sc.DataDir, e = flags.GetString("data-dir"); return })

	if err != nil {
		return fmt.Errorf("failed to read simulation flags: %w", err)
	}
	return nil
}

// loadSimulationConfig reads the configuration and applies flag overrides to a copy.
func loadSimulationConfig(flags *pflag.FlagSet) (*config.Config, models.SimulationParams, error) {
	loaded, err := config.GetConfigManager().GetConfig()
	if err != nil {
		return nil, models.SimulationParams{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := *loaded
	if err := applySimulationFlags(flags, &cfg.Simulation); err != nil {
		return nil, models.SimulationParams{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, models.SimulationParams{}, err
	}

	params, err := cfg.Simulation.Params()
	if err != nil {
		return nil, models.SimulationParams{}, err
	}
	return &cfg, params, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// RunSimulate runs one configuration and writes its results to every sink.
func RunSimulate(flags *pflag.FlagSet) error {
	log := logger.Get()

	cfg, params, err := loadSimulationConfig(flags)
	if err != nil {
		return err
	}

	server, err := app.NewServerBuilder(cfg).
		InitDatabase().
		InitRepositories().
		InitServices().
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize simulation: %w", err)
	}
	defer server.Shutdown(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	sim, err := simulator.New(ctx, simulator.Options{
		Params:   params,
		Provider: server.Provider,
		Sinks:    server.Sinks,
	})
	if err != nil {
		return fmt.Errorf("failed to build simulation: %w", err)
	}
	sim.SeedEverything(params.Seed)

	result, err := sim.Start(ctx, params.GlobalRounds)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	log.Info().
		Str("config", params.ExportStem()).
		Float64("test_loss", result.Test.Loss).
		Float64("test_accuracy", result.Test.Accuracy).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Simulation finished")
	return nil
}
