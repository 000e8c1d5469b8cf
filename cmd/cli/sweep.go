package cli

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/theblitlabs/fedsim/internal/core/app"
	"github.com/theblitlabs/fedsim/internal/core/services"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// RunSweep runs the default experiment grid for the requested number of seeds.
// Configured values that the grid does not vary act as the base of every run.
func RunSweep(flags *pflag.FlagSet, seeds int) error {
	if seeds <= 0 {
		return fmt.Errorf("seed count must be positive, got %d", seeds)
	}

	cfg, base, err := loadSimulationConfig(flags)
	if err != nil {
		return err
	}

	server, err := app.NewServerBuilder(cfg).
		InitDatabase().
		InitRepositories().
		InitServices().
		InitSweepService().
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize sweep: %w", err)
	}
	defer server.Shutdown(context.Background())

	if err := server.ProgressService.Start(); err != nil {
		return fmt.Errorf("failed to start progress reporting: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	grid := services.DefaultGrid(seeds, base)
	log := logger.Get()
	log.Info().Int("configurations", len(grid)).Int("seeds", seeds).Msg("Starting sweep")

	results, err := server.SweepService.Run(ctx, grid)
	if err != nil {
		return err
	}

	log.Info().Int("completed", len(results)).Msg("Sweep finished")
	return nil
}
