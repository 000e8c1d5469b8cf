package dataset

import (
	"fmt"
	"math/rand/v2"
)

// SplitTrainValidation permutes the training set and assigns the first
// floor(ratio*n) samples to training and the rest to validation.
func SplitTrainValidation(train *Dataset, ratio float64, r *rand.Rand) (Subset, Subset, error) {
	if ratio <= 0 || ratio >= 1 {
		return Subset{}, Subset{}, fmt.Errorf("split ratio must be in (0, 1), got %g", ratio)
	}

	perm := r.Perm(train.Len())
	cut := int(ratio * float64(train.Len()))

	return NewSubset(train, perm[:cut]), NewSubset(train, perm[cut:]), nil
}
