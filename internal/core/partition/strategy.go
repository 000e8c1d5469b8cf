package partition

import (
	"errors"
	"fmt"

	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/rng"
	"gonum.org/v1/gonum/stat/distmv"
)

// DirichletAlpha is the concentration used for every Dirichlet partition.
const DirichletAlpha = 0.5

var ErrTooManyRegions = errors.New("more regions than label classes")

// Strategy assigns every position of a view to exactly one region. set names
// the view ("train" or "validation") so that draws which must agree across
// both sets can use a shared stream while shuffles stay independent.
type Strategy interface {
	Split(view dataset.Subset, nRegions int, streams *rng.Context, set string) ([][]int, error)
}

func StrategyFor(kind models.PartitionStrategy) (Strategy, error) {
	switch kind {
	case models.PartitionIID:
		return iidStrategy{}, nil
	case models.PartitionDirichlet:
		return dirichletStrategy{alpha: DirichletAlpha}, nil
	case models.PartitionHard:
		return hardStrategy{}, nil
	default:
		return nil, fmt.Errorf("strategy %q: %w", kind, models.ErrUnknownStrategy)
	}
}

type iidStrategy struct{}

func (iidStrategy) Split(view dataset.Subset, nRegions int, streams *rng.Context, set string) ([][]int, error) {
	perm := streams.Stream("iid/" + set).Perm(view.Len())
	return rng.ArraySplit(perm, nRegions), nil
}

type dirichletStrategy struct {
	alpha float64
}

// Split draws, for each class, the share of that class every region receives.
// Proportions come from a stream shared by the train and validation sets so a
// region's validation data follows its training skew.
func (s dirichletStrategy) Split(view dataset.Subset, nRegions int, streams *rng.Context, set string) ([][]int, error) {
	classes := view.Base().NumClasses()
	byClass := positionsByClass(view, classes)

	alpha := make([]float64, nRegions)
	for i := range alpha {
		alpha[i] = s.alpha
	}
	dir := distmv.NewDirichlet(alpha, streams.Source("dirichlet/proportions"))
	shuffle := streams.Stream("dirichlet/" + set)

	regions := make([][]int, nRegions)
	for k := 0; k < classes; k++ {
		proportions := dir.Rand(nil)
		positions := byClass[k]
		shuffle.Shuffle(len(positions), func(i, j int) {
			positions[i], positions[j] = positions[j], positions[i]
		})

		start, cumulative := 0, 0.0
		for r := 0; r < nRegions; r++ {
			end := len(positions)
			if r < nRegions-1 {
				cumulative += proportions[r]
				end = int(cumulative * float64(len(positions)))
				if end < start {
					end = start
				}
				if end > len(positions) {
					end = len(positions)
				}
			}
			regions[r] = append(regions[r], positions[start:end]...)
			start = end
		}
	}

	for r := range regions {
		if regions[r] == nil {
			regions[r] = []int{}
		}
	}
	return regions, nil
}

type hardStrategy struct{}

// Split gives every region a disjoint group of labels. The grouping depends only
// on the seed and the class count, so train and validation agree.
func (hardStrategy) Split(view dataset.Subset, nRegions int, streams *rng.Context, _ string) ([][]int, error) {
	classes := view.Base().NumClasses()
	if nRegions > classes {
		return nil, fmt.Errorf("%d regions over %d classes: %w", nRegions, classes, ErrTooManyRegions)
	}

	groups := rng.ArraySplit(streams.Stream("hard/labels").Perm(classes), nRegions)
	owner := make([]int, classes)
	for r, group := range groups {
		for _, label := range group {
			owner[label] = r
		}
	}

	regions := make([][]int, nRegions)
	for r := range regions {
		regions[r] = []int{}
	}
	for pos := 0; pos < view.Len(); pos++ {
		r := owner[view.Label(pos)]
		regions[r] = append(regions[r], pos)
	}
	return regions, nil
}

// LabelGroups reports which labels each region owns under the Hard strategy.
func LabelGroups(classes, nRegions int, seed int64) [][]int {
	return rng.ArraySplit(rng.New(seed).Stream("hard/labels").Perm(classes), nRegions)
}

func positionsByClass(view dataset.Subset, classes int) [][]int {
	byClass := make([][]int, classes)
	for pos := 0; pos < view.Len(); pos++ {
		label := view.Label(pos)
		byClass[label] = append(byClass[label], pos)
	}
	return byClass
}
