// Package nn holds the small classifiers trained by simulated clients. Every
// model keeps its parameters in one flat vector; weight matrices are gonum
// views over that vector, so aggregation never needs to know the layout.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// HiddenUnits is the width of the MLP hidden layer used for image datasets.
const HiddenUnits = 128

var (
	ErrParamLength = errors.New("parameter vector length mismatch")
	ErrEmptySubset = errors.New("cannot evaluate on an empty subset")
)

// Model is a differentiable classifier.
type Model interface {
	NumParams() int
	// Params returns the live parameter vector. Writes to it update the model.
	Params() []float64
	SetParams(params []float64) error
	Clone() Model
	Logits(x *mat.Dense) *mat.Dense
	// LossAndGrad returns the mean cross-entropy of the batch and writes the
	// gradient with respect to Params into grad.
	LossAndGrad(x *mat.Dense, labels []int, grad []float64) float64
}

// ForDataset picks the architecture used for a dataset: softmax regression for
// the synthetic clusters, a one-hidden-layer MLP for image data.
func ForDataset(name string, dim, classes int, r *rand.Rand) Model {
	if name == dataset.SyntheticName {
		return NewLinear(dim, classes, r)
	}
	return NewMLP(dim, HiddenUnits, classes, r)
}

// Evaluate returns the mean cross-entropy and the accuracy of m over data,
// processed in order in batches of batchSize.
func Evaluate(m Model, data dataset.Subset, batchSize int) (float64, float64, error) {
	n := data.Len()
	if n == 0 {
		return 0, 0, ErrEmptySubset
	}
	if batchSize <= 0 {
		return 0, 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	var loss float64
	correct := 0
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		positions := make([]int, end-start)
		for i := range positions {
			positions[i] = start + i
		}

		x, labels := data.Batch(positions)
		z := m.Logits(x)
		for i, label := range labels {
			row := z.RawRowView(i)
			loss += floats.LogSumExp(row) - row[label]
			if floats.MaxIdx(row) == label {
				correct++
			}
		}
	}
	return loss / float64(n), float64(correct) / float64(n), nil
}

func setParams(dst, src []float64) error {
	if len(src) != len(dst) {
		return fmt.Errorf("got %d values for %d parameters: %w", len(src), len(dst), ErrParamLength)
	}
	copy(dst, src)
	return nil
}

func glorot(dst []float64, fanIn, fanOut int, r *rand.Rand) {
	bound := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range dst {
		dst[i] = (2*r.Float64() - 1) * bound
	}
}

func addBias(m *mat.Dense, bias []float64) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(m.RawRowView(i), bias)
	}
}

func sumRows(m *mat.Dense, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(dst, m.RawRowView(i))
	}
}

// softmaxCrossEntropy turns logits z into dLoss/dz in place and returns the
// mean loss over the batch.
func softmaxCrossEntropy(z *mat.Dense, labels []int) float64 {
	rows, _ := z.Dims()
	scale := 1 / float64(rows)

	var loss float64
	for i := 0; i < rows; i++ {
		row := z.RawRowView(i)
		lse := floats.LogSumExp(row)
		loss += lse - row[labels[i]]
		for j, v := range row {
			row[j] = math.Exp(v-lse) * scale
		}
		row[labels[i]] -= scale
	}
	return loss * scale
}
