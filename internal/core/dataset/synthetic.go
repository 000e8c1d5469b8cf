package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const SyntheticName = "Synthetic"

// SyntheticConfig describes a Gaussian-cluster classification task: each class
// has a random centre and its samples are the centre plus isotropic noise.
type SyntheticConfig struct {
	Classes       int
	Dim           int
	TrainPerClass int
	TestPerClass  int
	Separation    float64
	Noise         float64
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Classes:       10,
		Dim:           16,
		TrainPerClass: 100,
		TestPerClass:  20,
		Separation:    4.0,
		Noise:         1.0,
	}
}

// GenerateSynthetic builds a train and a test set from the same class centres.
func GenerateSynthetic(cfg SyntheticConfig, r *rand.Rand) (*Dataset, *Dataset, error) {
	centres := mat.NewDense(cfg.Classes, cfg.Dim, nil)
	for k := 0; k < cfg.Classes; k++ {
		for j := 0; j < cfg.Dim; j++ {
			centres.Set(k, j, r.NormFloat64()*cfg.Separation)
		}
	}

	sample := func(perClass int) (*mat.Dense, []int) {
		n := perClass * cfg.Classes
		x := mat.NewDense(n, cfg.Dim, nil)
		y := make([]int, n)
		row := 0
		// interleave classes so contiguous slices are not single-label
		for i := 0; i < perClass; i++ {
			for k := 0; k < cfg.Classes; k++ {
				for j := 0; j < cfg.Dim; j++ {
					x.Set(row, j, centres.At(k, j)+r.NormFloat64()*cfg.Noise)
				}
				y[row] = k
				row++
			}
		}
		return x, y
	}

	trainX, trainY := sample(cfg.TrainPerClass)
	testX, testY := sample(cfg.TestPerClass)

	train, err := New(SyntheticName, trainX, trainY, cfg.Classes)
	if err != nil {
		return nil, nil, err
	}
	test, err := New(SyntheticName, testX, testY, cfg.Classes)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
