package dataset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrEmptyDataset = errors.New("dataset has no samples")

// Dataset is an immutable arena of labeled samples. Features are stored row-wise
// in a single dense matrix; subsets refer to rows by index and never copy them.
type Dataset struct {
	name       string
	features   *mat.Dense
	labels     []int
	numClasses int
}

func New(name string, features *mat.Dense, labels []int, numClasses int) (*Dataset, error) {
	if features == nil || len(labels) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", name, ErrEmptyDataset)
	}
	rows, _ := features.Dims()
	if rows != len(labels) {
		return nil, fmt.Errorf("dataset %s: %d feature rows but %d labels", name, rows, len(labels))
	}
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("dataset %s: label %d at row %d outside [0, %d)", name, label, i, numClasses)
		}
	}

	owned := make([]int, len(labels))
	copy(owned, labels)

	return &Dataset{
		name:       name,
		features:   features,
		labels:     owned,
		numClasses: numClasses,
	}, nil
}

func (d *Dataset) Name() string {
	return d.name
}

func (d *Dataset) Len() int {
	return len(d.labels)
}

func (d *Dataset) Dim() int {
	_, cols := d.features.Dims()
	return cols
}

func (d *Dataset) NumClasses() int {
	return d.numClasses
}

func (d *Dataset) Label(i int) int {
	return d.labels[i]
}

// All returns a view over every sample in order.
func (d *Dataset) All() Subset {
	indices := make([]int, d.Len())
	for i := range indices {
		indices[i] = i
	}
	return Subset{base: d, indices: indices}
}

// Subset is a view of a Dataset selected by base-row indices.
type Subset struct {
	base    *Dataset
	indices []int
}

func NewSubset(base *Dataset, indices []int) Subset {
	owned := make([]int, len(indices))
	copy(owned, indices)
	return Subset{base: base, indices: owned}
}

func (s Subset) Base() *Dataset {
	return s.base
}

func (s Subset) Len() int {
	return len(s.indices)
}

// Indices returns a copy of the base-row indices of the view.
func (s Subset) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// Label returns the label of the i-th sample of the view.
func (s Subset) Label(i int) int {
	return s.base.labels[s.indices[i]]
}

func (s Subset) Labels() []int {
	out := make([]int, len(s.indices))
	for i, idx := range s.indices {
		out[i] = s.base.labels[idx]
	}
	return out
}

// Select composes a new view from positions within this view.
func (s Subset) Select(positions []int) Subset {
	indices := make([]int, len(positions))
	for i, p := range positions {
		indices[i] = s.indices[p]
	}
	return Subset{base: s.base, indices: indices}
}

// Batch materializes the samples at the given view positions. positions must
// not be empty.
func (s Subset) Batch(positions []int) (*mat.Dense, []int) {
	x := mat.NewDense(len(positions), s.base.Dim(), nil)
	y := make([]int, len(positions))
	for r, p := range positions {
		idx := s.indices[p]
		x.SetRow(r, s.base.features.RawRowView(idx))
		y[r] = s.base.labels[idx]
	}
	return x, y
}
