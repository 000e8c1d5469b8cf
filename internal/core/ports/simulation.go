package ports

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/models"
)

type DatasetProvider interface {
	DownloadDataset(ctx context.Context, name string) (*dataset.Dataset, *dataset.Dataset, error)
}

// ResultSink receives the outcome of every completed simulation.
type ResultSink interface {
	Name() string
	Write(ctx context.Context, result *models.SimulationResult) error
}

type RunRepository interface {
	Create(ctx context.Context, run *models.SimulationRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error)
	GetByExportStem(ctx context.Context, stem string) ([]*models.SimulationRun, error)
	List(ctx context.Context, limit, offset int) ([]*models.SimulationRun, error)
	Update(ctx context.Context, run *models.SimulationRun) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type RoundMetricRepository interface {
	CreateBatch(ctx context.Context, metrics []*models.RoundMetric) error
	GetByRun(ctx context.Context, runID uuid.UUID) ([]*models.RoundMetric, error)
	DeleteByRun(ctx context.Context, runID uuid.UUID) error
}

type ArtifactStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

type RunService interface {
	ListRuns(ctx context.Context, limit, offset int) ([]*models.SimulationRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error)
	GetRounds(ctx context.Context, id uuid.UUID) ([]models.RoundRecord, error)
	GetModel(ctx context.Context, id uuid.UUID) ([]float64, error)
}
