package partition

import (
	"errors"
	"fmt"

	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/rng"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

var ErrRegionNotFound = errors.New("region not found")

// DeviceData is the shard a single device trains and validates on.
type DeviceData struct {
	Train      dataset.Subset
	Validation dataset.Subset
}

// Region is a group of devices sharing one data skew.
type Region struct {
	ID         int
	Train      dataset.Subset
	Validation dataset.Subset
}

// Environment owns every region of a simulation run.
type Environment struct {
	datasetName string
	strategy    models.PartitionStrategy
	streams     *rng.Context
	regions     []Region
}

// PartitionToSubregions splits training and validation into nRegions disjoint
// regions. The result is a pure function of its arguments.
func PartitionToSubregions(
	training dataset.Subset,
	validation dataset.Subset,
	datasetName string,
	kind models.PartitionStrategy,
	nRegions int,
	seed int64,
) (*Environment, error) {
	if nRegions <= 0 {
		return nil, fmt.Errorf("region count must be positive, got %d", nRegions)
	}

	strategy, err := StrategyFor(kind)
	if err != nil {
		return nil, err
	}

	streams := rng.New(seed)

	trainParts, err := strategy.Split(training, nRegions, streams, "train")
	if err != nil {
		return nil, fmt.Errorf("failed to partition training set: %w", err)
	}
	valParts, err := strategy.Split(validation, nRegions, streams, "validation")
	if err != nil {
		return nil, fmt.Errorf("failed to partition validation set: %w", err)
	}

	regions := make([]Region, nRegions)
	for id := range regions {
		regions[id] = Region{
			ID:         id,
			Train:      training.Select(trainParts[id]),
			Validation: validation.Select(valParts[id]),
		}
	}

	log := logger.WithComponent("partitioner")
	for _, region := range regions {
		log.Debug().
			Str("dataset", datasetName).
			Str("strategy", string(kind)).
			Int("region", region.ID).
			Int("train_samples", region.Train.Len()).
			Int("validation_samples", region.Validation.Len()).
			Msg("Region partitioned")
	}

	return &Environment{
		datasetName: datasetName,
		strategy:    kind,
		streams:     streams,
		regions:     regions,
	}, nil
}

func (e *Environment) DatasetName() string {
	return e.datasetName
}

func (e *Environment) Strategy() models.PartitionStrategy {
	return e.strategy
}

func (e *Environment) Len() int {
	return len(e.regions)
}

func (e *Environment) Regions() []Region {
	out := make([]Region, len(e.regions))
	copy(out, e.regions)
	return out
}

func (e *Environment) Region(id int) (Region, error) {
	if id < 0 || id >= len(e.regions) {
		return Region{}, fmt.Errorf("region %d of %d: %w", id, len(e.regions), ErrRegionNotFound)
	}
	return e.regions[id], nil
}

// FromSubregionToDevices shuffles a region's data and splits it evenly across
// nDevices devices. The result always has exactly nDevices entries; when the
// region holds fewer samples than devices, trailing devices get empty shards.
func (e *Environment) FromSubregionToDevices(regionID, nDevices int) (map[int]DeviceData, error) {
	if nDevices <= 0 {
		return nil, fmt.Errorf("device count must be positive, got %d", nDevices)
	}
	region, err := e.Region(regionID)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("devices/region-%d/", regionID)
	trainPerm := e.streams.Stream(prefix+"train").Perm(region.Train.Len())
	valPerm := e.streams.Stream(prefix+"validation").Perm(region.Validation.Len())

	trainShards := rng.ArraySplit(trainPerm, nDevices)
	valShards := rng.ArraySplit(valPerm, nDevices)

	mapping := make(map[int]DeviceData, nDevices)
	for device := 0; device < nDevices; device++ {
		mapping[device] = DeviceData{
			Train:      region.Train.Select(trainShards[device]),
			Validation: region.Validation.Select(valShards[device]),
		}
	}
	return mapping, nil
}
