package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SimulationRun is the persisted summary of one simulation.
type SimulationRun struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ExportStem    string     `json:"export_stem" gorm:"type:varchar(255);index"`
	Algorithm     string     `json:"algorithm" gorm:"type:varchar(50);not null"`
	Partitioning  string     `json:"partitioning" gorm:"type:varchar(50);not null"`
	Dataset       string     `json:"dataset" gorm:"type:varchar(100);not null"`
	Areas         int        `json:"areas"`
	Clients       int        `json:"clients"`
	Seed          int64      `json:"seed"`
	GlobalRounds  int        `json:"global_rounds"`
	Status        RunStatus  `json:"status" gorm:"type:varchar(50)"`
	TestLoss      float64    `json:"test_loss"`
	TestAccuracy  float64    `json:"test_accuracy"`
	ModelSnapshot []byte     `json:"-"`
	ParamCount    int        `json:"param_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// RoundMetric is one persisted row of a run's round series.
type RoundMetric struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RunID              uuid.UUID `json:"run_id" gorm:"type:uuid;not null;index"`
	Round              int       `json:"round" gorm:"not null"`
	TrainingLoss       float64   `json:"training_loss"`
	ValidationLoss     float64   `json:"validation_loss"`
	ValidationAccuracy float64   `json:"validation_accuracy"`
	CreatedAt          time.Time `json:"created_at"`
}

func NewSimulationRun(params SimulationParams) *SimulationRun {
	return &SimulationRun{
		ID:           uuid.New(),
		ExportStem:   params.ExportStem(),
		Algorithm:    string(params.Algorithm),
		Partitioning: string(params.Partitioning),
		Dataset:      params.Dataset,
		Areas:        params.Areas,
		Clients:      params.Clients,
		Seed:         params.Seed,
		GlobalRounds: params.GlobalRounds,
		Status:       RunStatusRunning,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func NewRoundMetric(runID uuid.UUID, record RoundRecord) *RoundMetric {
	return &RoundMetric{
		ID:                 uuid.New(),
		RunID:              runID,
		Round:              record.Round,
		TrainingLoss:       record.TrainingLoss,
		ValidationLoss:     record.ValidationLoss,
		ValidationAccuracy: record.ValidationAccuracy,
		CreatedAt:          time.Now(),
	}
}

func (m *RoundMetric) Record() RoundRecord {
	return RoundRecord{
		Round:              m.Round,
		TrainingLoss:       m.TrainingLoss,
		ValidationLoss:     m.ValidationLoss,
		ValidationAccuracy: m.ValidationAccuracy,
	}
}
