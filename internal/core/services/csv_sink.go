package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

var (
	roundsHeader = []string{"Round", "TrainingLoss", "ValidationLoss", "ValidationAccuracy"}
	testHeader   = []string{"Loss", "Accuracy"}
)

// CSVSink writes {stem}.csv with the round series and {stem}-test.csv with the
// final test record under dataDir.
type CSVSink struct {
	dataDir string
}

func NewCSVSink(dataDir string) *CSVSink {
	return &CSVSink{dataDir: dataDir}
}

func (s *CSVSink) Name() string {
	return "csv"
}

func (s *CSVSink) RoundsPath(params models.SimulationParams) string {
	return filepath.Join(s.dataDir, params.ExportStem()+".csv")
}

func (s *CSVSink) TestPath(params models.SimulationParams) string {
	return filepath.Join(s.dataDir, params.ExportStem()+"-test.csv")
}

func (s *CSVSink) Write(_ context.Context, result *models.SimulationResult) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	roundsPath := s.RoundsPath(result.Params)
	if err := writeFile(roundsPath, func(w io.Writer) error {
		return WriteRoundsCSV(w, result.Rounds)
	}); err != nil {
		return err
	}

	testPath := s.TestPath(result.Params)
	if err := writeFile(testPath, func(w io.Writer) error {
		return WriteTestCSV(w, result.Test)
	}); err != nil {
		return err
	}

	log := logger.WithComponent("csv_sink")
	log.Info().
		Str("rounds", roundsPath).
		Str("test", testPath).
		Msg("Simulation data saved")
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func WriteRoundsCSV(w io.Writer, rounds []models.RoundRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(roundsHeader); err != nil {
		return err
	}
	for _, r := range rounds {
		row := []string{
			strconv.Itoa(r.Round),
			formatFloat(r.TrainingLoss),
			formatFloat(r.ValidationLoss),
			formatFloat(r.ValidationAccuracy),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteTestCSV(w io.Writer, test models.TestRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(testHeader); err != nil {
		return err
	}
	if err := cw.Write([]string{formatFloat(test.Loss), formatFloat(test.Accuracy)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
