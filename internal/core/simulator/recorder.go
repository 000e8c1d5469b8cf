package simulator

import "github.com/theblitlabs/fedsim/internal/core/models"

// Recorder accumulates the round series and the final test record of one run.
// It only ever appends.
type Recorder struct {
	rounds []models.RoundRecord
	test   *models.TestRecord
}

func NewRecorder(expectedRounds int) *Recorder {
	return &Recorder{rounds: make([]models.RoundRecord, 0, max(expectedRounds, 0))}
}

func (r *Recorder) Record(round int, trainingLoss, validationLoss, validationAccuracy float64) {
	r.rounds = append(r.rounds, models.RoundRecord{
		Round:              round,
		TrainingLoss:       trainingLoss,
		ValidationLoss:     validationLoss,
		ValidationAccuracy: validationAccuracy,
	})
}

func (r *Recorder) SetTest(loss, accuracy float64) {
	r.test = &models.TestRecord{Loss: loss, Accuracy: accuracy}
}

func (r *Recorder) Rounds() []models.RoundRecord {
	out := make([]models.RoundRecord, len(r.rounds))
	copy(out, r.rounds)
	return out
}

// Test returns the test record and whether it has been set.
func (r *Recorder) Test() (models.TestRecord, bool) {
	if r.test == nil {
		return models.TestRecord{}, false
	}
	return *r.test, true
}
