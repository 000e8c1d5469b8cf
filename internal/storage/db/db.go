package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBManager provides centralized database connection management
type DBManager struct {
	db   *gorm.DB
	lock sync.RWMutex
}

// NewDBManager creates a new DBManager instance
func NewDBManager() *DBManager {
	return &DBManager{}
}

// Dialector maps a configured driver onto its gorm dialector. SQLite uses a
// pure-Go driver so no cgo toolchain is needed.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return postgres.Open(cfg.GetConnectionURL()), nil
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Connect establishes a database connection and migrates the run tables.
func (m *DBManager) Connect(ctx context.Context, cfg config.DatabaseConfig) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	dialector, err := Dialector(cfg)
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	if err := Migrate(db.WithContext(ctx)); err != nil {
		return err
	}

	m.db = db
	return nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.SimulationRun{}, &models.RoundMetric{}); err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}
	return nil
}

// GetDB returns the database connection
func (m *DBManager) GetDB() *gorm.DB {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.db
}

// Close closes the database connection
func (m *DBManager) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("error getting SQL DB: %w", err)
	}

	m.db = nil
	return sqlDB.Close()
}

var (
	instance *DBManager
	once     sync.Once
)

// GetDBManager returns the singleton database manager instance
func GetDBManager() *DBManager {
	once.Do(func() {
		instance = NewDBManager()
	})
	return instance
}

// Connect is a helper function that connects the global DB instance
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	dbManager := GetDBManager()
	err := dbManager.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dbManager.GetDB(), nil
}
