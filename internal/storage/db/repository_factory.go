package db

import (
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/internal/database/repositories"
	"gorm.io/gorm"
)

type RepositoryFactory struct {
	db *gorm.DB
}

func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{
		db: db,
	}
}

func NewRepositoryFactoryFromManager(manager *DBManager) *RepositoryFactory {
	return &RepositoryFactory{
		db: manager.GetDB(),
	}
}

func (f *RepositoryFactory) RunRepository() ports.RunRepository {
	return repositories.NewSimulationRunRepository(f.db)
}

func (f *RepositoryFactory) RoundMetricRepository() ports.RoundMetricRepository {
	return repositories.NewRoundMetricRepository(f.db)
}
