package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/api/handlers"
	responsemodels "github.com/theblitlabs/fedsim/internal/api/models"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/services"
)

type stubRunService struct {
	runs   map[uuid.UUID]*models.SimulationRun
	rounds map[uuid.UUID][]models.RoundRecord
	failed bool

	lastLimit, lastOffset int
}

func (s *stubRunService) ListRuns(_ context.Context, limit, offset int) ([]*models.SimulationRun, error) {
	if s.failed {
		return nil, errors.New("database is down")
	}
	s.lastLimit, s.lastOffset = limit, offset
	out := make([]*models.SimulationRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, nil
}

func (s *stubRunService) GetRun(_ context.Context, id uuid.UUID) (*models.SimulationRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, services.ErrRunNotFound)
	}
	return run, nil
}

func (s *stubRunService) GetRounds(ctx context.Context, id uuid.UUID) ([]models.RoundRecord, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.rounds[id], nil
}

func (s *stubRunService) GetModel(ctx context.Context, id uuid.UUID) ([]float64, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return []float64{0.5, -0.5}, nil
}

func newTestRouter(t *testing.T) (*Router, *stubRunService, *models.SimulationRun) {
	t.Helper()
	run := models.NewSimulationRun(models.SimulationParams{
		Algorithm:    models.AlgorithmFedAvg,
		Partitioning: models.PartitionIID,
		Areas:        3,
		Dataset:      "MNIST",
		Clients:      50,
		GlobalRounds: 2,
	})
	completed := time.Now()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &completed

	svc := &stubRunService{
		runs: map[uuid.UUID]*models.SimulationRun{run.ID: run},
		rounds: map[uuid.UUID][]models.RoundRecord{run.ID: {
			{Round: 0, TrainingLoss: 1.0, ValidationLoss: 0.9, ValidationAccuracy: 0.7},
			{Round: 1, TrainingLoss: 0.6, ValidationLoss: 0.5, ValidationAccuracy: 0.8},
		}},
	}
	return NewRouter(handlers.NewSimulationRunHandler(svc), "/api"), svc, run
}

func get(t *testing.T, r *Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListRuns(t *testing.T) {
	r, svc, run := newTestRouter(t)

	w := get(t, r, "/api/runs?limit=5&offset=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body struct {
		Runs  []responsemodels.RunResponse `json:"runs"`
		Count int                          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, run.ID.String(), body.Runs[0].ID)
	assert.Equal(t, "completed", body.Runs[0].Status)
	assert.NotNil(t, body.Runs[0].CompletedAt)
	assert.Equal(t, 5, svc.lastLimit)
	assert.Equal(t, 2, svc.lastOffset)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/runs?limit=abc").Code)

	svc.failed = true
	assert.Equal(t, http.StatusInternalServerError, get(t, r, "/api/runs").Code)
}

func TestGetRun(t *testing.T) {
	r, _, run := newTestRouter(t)

	w := get(t, r, "/api/runs/"+run.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var body responsemodels.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, run.ExportStem, body.ExportStem)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/runs/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/runs/"+uuid.NewString()).Code)
}

func TestGetRounds(t *testing.T) {
	r, _, run := newTestRouter(t)

	w := get(t, r, "/api/runs/"+run.ID.String()+"/rounds")
	require.Equal(t, http.StatusOK, w.Code)

	var body responsemodels.RoundsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 1, body.Rounds[1].Round)
	assert.Equal(t, 0.8, body.Rounds[1].ValidationAccuracy)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/runs/"+uuid.NewString()+"/rounds").Code)
}

func TestGetModelAndHealth(t *testing.T) {
	r, _, run := newTestRouter(t)

	w := get(t, r, "/api/runs/"+run.ID.String()+"/model")
	require.Equal(t, http.StatusOK, w.Code)
	var body responsemodels.ModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.ParamCount)

	assert.Equal(t, http.StatusOK, get(t, r, "/api/health").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/runs").Code)
}
