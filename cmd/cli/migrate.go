package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/internal/storage/db"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// RunMigrate creates or updates the run tables of the configured database.
func RunMigrate() error {
	log := logger.Get()

	cfg, err := config.GetConfigManager().GetConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("no database configured: set DATABASE_DRIVER")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Str("driver", cfg.Database.Driver).Msg("Starting database migrations...")

	manager := db.GetDBManager()
	if err := manager.Connect(ctx, cfg.Database); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database connection")
		}
	}()

	tables, err := manager.GetDB().Migrator().GetTables()
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	log.Info().Strs("tables", tables).Msg("All database migrations completed successfully")
	return nil
}
