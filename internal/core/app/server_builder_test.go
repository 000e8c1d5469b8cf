package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Simulation: config.SimulationConfig{DataDir: t.TempDir()},
		Dataset:    config.DatasetConfig{CacheDir: t.TempDir()},
		Server:     config.ServerConfig{Host: "127.0.0.1", Port: "0", Endpoint: "/api"},
		Scheduler:  config.SchedulerConfig{Interval: 5},
	}
}

func sinkNames(s *Server) []string {
	names := make([]string, 0, len(s.Sinks))
	for _, sink := range s.Sinks {
		names = append(names, sink.Name())
	}
	return names
}

func TestBuilderWithoutDatabaseWritesCSVOnly(t *testing.T) {
	server, err := NewServerBuilder(testConfig(t)).
		InitDatabase().
		InitRepositories().
		InitServices().
		InitSweepService().
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"csv"}, sinkNames(server))
	assert.Nil(t, server.DBManager)
	assert.Nil(t, server.RunService)
	assert.NotNil(t, server.Provider)
	assert.NotNil(t, server.SweepService)
	assert.Nil(t, server.HttpServer)
}

func TestBuilderRouterRequiresDatabase(t *testing.T) {
	_, err := NewServerBuilder(testConfig(t)).
		InitDatabase().
		InitRepositories().
		InitServices().
		InitRouter().
		Build()
	assert.ErrorContains(t, err, "requires a database")
}

func TestBuilderWithSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")}

	server, err := NewServerBuilder(cfg).
		InitDatabase().
		InitRepositories().
		InitServices().
		InitSweepService().
		InitRouter().
		Build()
	require.NoError(t, err)
	defer server.Shutdown(context.Background())

	assert.Equal(t, []string{"csv", "db"}, sinkNames(server))
	require.NotNil(t, server.RunService)
	require.NotNil(t, server.HttpServer)
	assert.Equal(t, "127.0.0.1:0", server.HttpServer.Addr)

	runs, err := server.RunService.ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBuilderRejectsIncompleteAWSConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AWS = config.AWSConfig{BucketName: "runs"}

	_, err := NewServerBuilder(cfg).InitServices().Build()
	assert.ErrorContains(t, err, "S3")
}
