package models

import (
	"time"

	coremodels "github.com/theblitlabs/fedsim/internal/core/models"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

type RunResponse struct {
	ID           string  `json:"id"`
	ExportStem   string  `json:"export_stem"`
	Algorithm    string  `json:"algorithm"`
	Partitioning string  `json:"partitioning"`
	Dataset      string  `json:"dataset"`
	Areas        int     `json:"areas"`
	Clients      int     `json:"clients"`
	Seed         int64   `json:"seed"`
	GlobalRounds int     `json:"global_rounds"`
	Status       string  `json:"status"`
	TestLoss     float64 `json:"test_loss"`
	TestAccuracy float64 `json:"test_accuracy"`
	ParamCount   int     `json:"param_count"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type RoundsResponse struct {
	RunID  string                   `json:"run_id"`
	Rounds []coremodels.RoundRecord `json:"rounds"`
	Count  int                      `json:"count"`
}

type ModelResponse struct {
	RunID      string    `json:"run_id"`
	ParamCount int       `json:"param_count"`
	Params     []float64 `json:"params"`
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func NewRunResponse(run *coremodels.SimulationRun) RunResponse {
	response := RunResponse{
		ID:           run.ID.String(),
		ExportStem:   run.ExportStem,
		Algorithm:    run.Algorithm,
		Partitioning: run.Partitioning,
		Dataset:      run.Dataset,
		Areas:        run.Areas,
		Clients:      run.Clients,
		Seed:         run.Seed,
		GlobalRounds: run.GlobalRounds,
		Status:       string(run.Status),
		TestLoss:     run.TestLoss,
		TestAccuracy: run.TestAccuracy,
		ParamCount:   run.ParamCount,
		CreatedAt:    formatTime(run.CreatedAt),
		UpdatedAt:    formatTime(run.UpdatedAt),
	}

	if run.CompletedAt != nil {
		completedAt := formatTime(*run.CompletedAt)
		response.CompletedAt = &completedAt
	}
	return response
}
