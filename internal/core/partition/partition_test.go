package partition

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/rng"
)

func splitSynthetic(t *testing.T, classes int) (dataset.Subset, dataset.Subset) {
	t.Helper()
	cfg := dataset.SyntheticConfig{Classes: classes, Dim: 2, TrainPerClass: 40, TestPerClass: 1, Separation: 3, Noise: 1}
	train, _, err := dataset.GenerateSynthetic(cfg, rng.New(99).Stream("synthetic"))
	require.NoError(t, err)
	tr, val, err := dataset.SplitTrainValidation(train, 0.8, rng.New(99).Stream("split"))
	require.NoError(t, err)
	return tr, val
}

var strategies = []models.PartitionStrategy{
	models.PartitionIID,
	models.PartitionDirichlet,
	models.PartitionHard,
}

func TestPartitionIsDeterministic(t *testing.T) {
	train, val := splitSynthetic(t, 10)

	for _, strategy := range strategies {
		for _, regions := range []int{2, 3, 5} {
			for _, seed := range []int64{0, 1, 17} {
				t.Run(fmt.Sprintf("%s/%d/%d", strategy, regions, seed), func(t *testing.T) {
					a, err := PartitionToSubregions(train, val, "Synthetic", strategy, regions, seed)
					require.NoError(t, err)
					b, err := PartitionToSubregions(train, val, "Synthetic", strategy, regions, seed)
					require.NoError(t, err)

					for id := 0; id < regions; id++ {
						ra, _ := a.Region(id)
						rb, _ := b.Region(id)
						assert.Equal(t, ra.Train.Indices(), rb.Train.Indices())
						assert.Equal(t, ra.Validation.Indices(), rb.Validation.Indices())
					}
				})
			}
		}
	}
}

func TestPartitionIsDisjointAndCovering(t *testing.T) {
	train, val := splitSynthetic(t, 10)

	for _, strategy := range strategies {
		for _, regions := range []int{1, 3, 9} {
			t.Run(fmt.Sprintf("%s/%d", strategy, regions), func(t *testing.T) {
				env, err := PartitionToSubregions(train, val, "Synthetic", strategy, regions, 5)
				require.NoError(t, err)
				require.Equal(t, regions, env.Len())

				var trainUnion, valUnion []int
				for _, region := range env.Regions() {
					trainUnion = append(trainUnion, region.Train.Indices()...)
					valUnion = append(valUnion, region.Validation.Indices()...)
				}

				assertSameSet(t, train.Indices(), trainUnion)
				assertSameSet(t, val.Indices(), valUnion)
			})
		}
	}
}

func assertSameSet(t *testing.T, want, got []int) {
	t.Helper()
	w := append([]int(nil), want...)
	g := append([]int(nil), got...)
	sort.Ints(w)
	sort.Ints(g)
	assert.Equal(t, w, g)
}

func TestPartitionSeedChangesAssignment(t *testing.T) {
	train, val := splitSynthetic(t, 10)

	a, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionIID, 3, 1)
	require.NoError(t, err)
	b, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionIID, 3, 2)
	require.NoError(t, err)

	ra, _ := a.Region(0)
	rb, _ := b.Region(0)
	assert.NotEqual(t, ra.Train.Indices(), rb.Train.Indices())
}

func TestHardPartitionRestrictsLabels(t *testing.T) {
	train, val := splitSynthetic(t, 4)

	env, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionHard, 2, 3)
	require.NoError(t, err)

	labelSets := make([]map[int]bool, env.Len())
	for _, region := range env.Regions() {
		labels := map[int]bool{}
		for _, l := range region.Train.Labels() {
			labels[l] = true
		}
		for _, l := range region.Validation.Labels() {
			assert.True(t, labels[l], "validation label %d not in region %d training labels", l, region.ID)
		}
		assert.Len(t, labels, 2)
		labelSets[region.ID] = labels
	}

	for l := range labelSets[0] {
		assert.False(t, labelSets[1][l], "label %d shared by both regions", l)
	}

	groups := LabelGroups(4, 2, 3)
	for id, group := range groups {
		for _, l := range group {
			assert.True(t, labelSets[id][l])
		}
	}
}

func TestHardPartitionRejectsTooManyRegions(t *testing.T) {
	train, val := splitSynthetic(t, 4)

	_, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionHard, 5, 0)
	assert.ErrorIs(t, err, ErrTooManyRegions)
}

func TestDirichletPartitionIsSkewed(t *testing.T) {
	train, val := splitSynthetic(t, 10)

	env, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionDirichlet, 3, 8)
	require.NoError(t, err)

	// with alpha 0.5 at least one region departs clearly from a uniform label mix
	skewed := false
	for _, region := range env.Regions() {
		if region.Train.Len() == 0 {
			skewed = true
			continue
		}
		counts := make([]int, 10)
		for _, l := range region.Train.Labels() {
			counts[l]++
		}
		sort.Ints(counts)
		if float64(counts[9]) > 2*float64(region.Train.Len())/10 {
			skewed = true
		}
	}
	assert.True(t, skewed)
}

func TestPartitionRejectsBadInput(t *testing.T) {
	train, val := splitSynthetic(t, 4)

	_, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionStrategy("Sharded"), 2, 0)
	assert.ErrorIs(t, err, models.ErrUnknownStrategy)

	_, err = PartitionToSubregions(train, val, "Synthetic", models.PartitionIID, 0, 0)
	assert.Error(t, err)
}

func TestFromSubregionToDevices(t *testing.T) {
	train, val := splitSynthetic(t, 10)
	env, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionIID, 2, 4)
	require.NoError(t, err)
	region, err := env.Region(1)
	require.NoError(t, err)

	for _, devices := range []int{1, 3, 7, region.Train.Len() + 5} {
		t.Run(fmt.Sprintf("%d devices", devices), func(t *testing.T) {
			mapping, err := env.FromSubregionToDevices(1, devices)
			require.NoError(t, err)
			require.Len(t, mapping, devices)

			var union []int
			for d := 0; d < devices; d++ {
				data, ok := mapping[d]
				require.True(t, ok)
				union = append(union, data.Train.Indices()...)
			}
			assertSameSet(t, region.Train.Indices(), union)

			again, err := env.FromSubregionToDevices(1, devices)
			require.NoError(t, err)
			for d := 0; d < devices; d++ {
				assert.Equal(t, mapping[d].Train.Indices(), again[d].Train.Indices())
			}
		})
	}
}

func TestFromSubregionToDevicesErrors(t *testing.T) {
	train, val := splitSynthetic(t, 10)
	env, err := PartitionToSubregions(train, val, "Synthetic", models.PartitionIID, 2, 4)
	require.NoError(t, err)

	_, err = env.FromSubregionToDevices(2, 3)
	assert.ErrorIs(t, err, ErrRegionNotFound)

	_, err = env.FromSubregionToDevices(0, 0)
	assert.Error(t, err)
}
