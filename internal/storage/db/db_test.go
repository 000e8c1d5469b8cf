package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/internal/core/models"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{"sqlite", config.DatabaseConfig{Driver: DriverSQLite, Path: "runs.db"}, "sqlite", false},
		{"postgres", config.DatabaseConfig{Driver: DriverPostgres, Host: "localhost", Port: "5432"}, "postgres", false},
		{"sqlite without path", config.DatabaseConfig{Driver: DriverSQLite}, "", true},
		{"unknown", config.DatabaseConfig{Driver: "mysql"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialector(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestManagerConnectMigratesAndCloses(t *testing.T) {
	m := NewDBManager()
	cfg := config.DatabaseConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "runs.db")}

	require.NoError(t, m.Connect(context.Background(), cfg))
	db := m.GetDB()
	require.NotNil(t, db)
	assert.True(t, db.Migrator().HasTable(&models.SimulationRun{}))
	assert.True(t, db.Migrator().HasTable(&models.RoundMetric{}))

	factory := NewRepositoryFactoryFromManager(m)
	run := models.NewSimulationRun(models.SimulationParams{Algorithm: models.AlgorithmFedAvg, Partitioning: models.PartitionIID, Dataset: "MNIST"})
	require.NoError(t, factory.RunRepository().Create(context.Background(), run))

	require.NoError(t, m.Close())
	assert.Nil(t, m.GetDB())
	require.NoError(t, m.Close())
}
