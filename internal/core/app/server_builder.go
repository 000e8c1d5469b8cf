package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/theblitlabs/fedsim/internal/api"
	"github.com/theblitlabs/fedsim/internal/api/handlers"
	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/internal/core/services"
	"github.com/theblitlabs/fedsim/internal/storage/db"
	"github.com/theblitlabs/fedsim/internal/utils"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// Server holds everything a command needs once wiring succeeded. HttpServer
// is nil unless the router was initialised.
type Server struct {
	Config          *config.Config
	HttpServer      *http.Server
	DBManager       *db.DBManager
	Provider        ports.DatasetProvider
	Sinks           []ports.ResultSink
	SweepService    *services.SweepService
	ProgressService *services.ProgressService
	RunService      *services.RunService
}

func (s *Server) Shutdown(ctx context.Context) {
	log := logger.Get()

	if s.ProgressService != nil && s.ProgressService.IsRunning() {
		s.ProgressService.Stop()
		log.Info().Msg("Stopped progress reporting")
	}

	if s.HttpServer != nil {
		serverShutdownCtx, serverShutdownCancel := context.WithTimeout(ctx, 15*time.Second)
		defer serverShutdownCancel()

		shutdownStart := time.Now()
		if err := s.HttpServer.Shutdown(serverShutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
			if err == context.DeadlineExceeded {
				log.Warn().Msg("Server shutdown deadline exceeded, forcing immediate shutdown")
			}
		} else {
			log.Info().Dur("duration_ms", time.Since(shutdownStart)).Msg("Server HTTP connections gracefully closed")
		}
	}

	if s.DBManager != nil {
		dbCloseStart := time.Now()
		if err := s.DBManager.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		} else {
			log.Info().Dur("duration_ms", time.Since(dbCloseStart)).Msg("Database connection closed successfully")
		}
	}

	log.Debug().Msg("Shutdown complete")
}

// ServerBuilder wires configuration into stores, sinks and services. Each
// Init step is a no-op once an earlier step failed; Build reports that error.
type ServerBuilder struct {
	config          *config.Config
	dbManager       *db.DBManager
	repoFactory     *db.RepositoryFactory
	runRepo         ports.RunRepository
	metricRepo      ports.RoundMetricRepository
	runService      *services.RunService
	s3Service       *services.S3Service
	provider        ports.DatasetProvider
	sinks           []ports.ResultSink
	progressService *services.ProgressService
	sweepService    *services.SweepService
	httpServer      *http.Server
	err             error
}

func NewServerBuilder(cfg *config.Config) *ServerBuilder {
	return &ServerBuilder{config: cfg}
}

// InitDatabase connects the run store when one is configured.
func (sb *ServerBuilder) InitDatabase() *ServerBuilder {
	if sb.err != nil || !sb.config.Database.Enabled() {
		return sb
	}

	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sb.dbManager = db.GetDBManager()
	if err := sb.dbManager.Connect(ctx, sb.config.Database); err != nil {
		sb.err = fmt.Errorf("failed to connect to database: %w", err)
		return sb
	}

	log.Info().Str("driver", sb.config.Database.Driver).Msg("Successfully connected to database")
	return sb
}

func (sb *ServerBuilder) InitRepositories() *ServerBuilder {
	if sb.err != nil || sb.dbManager == nil {
		return sb
	}

	sb.repoFactory = db.NewRepositoryFactoryFromManager(sb.dbManager)
	sb.runRepo = sb.repoFactory.RunRepository()
	sb.metricRepo = sb.repoFactory.RoundMetricRepository()

	return sb
}

// InitServices builds the dataset provider and the result sinks. The CSV sink
// is always present; the database and S3 sinks follow their configuration.
func (sb *ServerBuilder) InitServices() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	sb.provider = NewDatasetProvider(sb.config.Dataset)
	sb.sinks = []ports.ResultSink{services.NewCSVSink(sb.config.Simulation.DataDir)}

	if sb.runRepo != nil {
		sb.runService = services.NewRunService(sb.runRepo, sb.metricRepo)
		sb.sinks = append(sb.sinks, services.NewDBSink(sb.runRepo, sb.metricRepo))
	}

	if sb.config.AWS.Enabled() {
		s3Service, err := services.NewS3Service(sb.config)
		if err != nil {
			sb.err = fmt.Errorf("failed to initialize S3 service: %w", err)
			return sb
		}
		sb.s3Service = s3Service
		sb.sinks = append(sb.sinks, services.NewS3Sink(s3Service))
	}

	return sb
}

func (sb *ServerBuilder) InitSweepService() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	log := logger.Get()

	intervalSeconds := sb.config.Scheduler.Interval
	if intervalSeconds <= 0 {
		intervalSeconds = 30
		log.Warn().
			Int("default_interval_seconds", intervalSeconds).
			Msg("Progress interval not specified in config, using default")
	}

	sb.progressService = services.NewProgressService(time.Duration(intervalSeconds) * time.Second)
	sb.sweepService = services.NewSweepService(sb.provider, sb.sinks, sb.progressService)

	return sb
}

// InitRouter exposes stored runs over HTTP and therefore needs a database.
func (sb *ServerBuilder) InitRouter() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	if sb.runService == nil {
		sb.err = fmt.Errorf("serving runs requires a database: set DATABASE_DRIVER")
		return sb
	}

	if err := utils.VerifyPortAvailable(sb.config.Server.Host, sb.config.Server.Port); err != nil {
		sb.err = fmt.Errorf("server port unavailable: %w", err)
		return sb
	}

	router := api.NewRouter(handlers.NewSimulationRunHandler(sb.runService), sb.config.Server.Endpoint)

	sb.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", sb.config.Server.Host, sb.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return sb
}

func (sb *ServerBuilder) Build() (*Server, error) {
	if sb.err != nil {
		if sb.dbManager != nil {
			_ = sb.dbManager.Close()
		}
		return nil, sb.err
	}

	return &Server{
		Config:          sb.config,
		HttpServer:      sb.httpServer,
		DBManager:       sb.dbManager,
		Provider:        sb.provider,
		Sinks:           sb.sinks,
		SweepService:    sb.sweepService,
		ProgressService: sb.progressService,
		RunService:      sb.runService,
	}, nil
}

// NewDatasetProvider builds a provider over the configured cache and mirrors.
func NewDatasetProvider(cfg config.DatasetConfig) *dataset.Provider {
	return dataset.NewProvider(cfg.CacheDir,
		dataset.WithMirror("MNIST", cfg.MNISTMirror),
		dataset.WithMirror("FashionMNIST", cfg.FashionMNISTMirror),
		dataset.WithMirror("EMNIST", cfg.EMNISTMirror),
	)
}
