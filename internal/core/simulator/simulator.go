// Package simulator drives a complete federated learning run: data loading,
// partitioning, synchronous rounds, evaluation and result export.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/theblitlabs/fedsim/internal/core/dataset"
	"github.com/theblitlabs/fedsim/internal/core/fl"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/nn"
	"github.com/theblitlabs/fedsim/internal/core/partition"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/internal/core/rng"
	"github.com/theblitlabs/fedsim/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// TrainSplitRatio is the share of the training set kept for training; the
// rest is the global validation set.
const TrainSplitRatio = 0.8

var ErrSimulationDone = errors.New("simulation already finished")

type State int

const (
	StateConstructing State = iota
	StateRunning
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	Params   models.SimulationParams
	Provider ports.DatasetProvider
	Sinks    []ports.ResultSink
}

type Simulator struct {
	params models.SimulationParams
	sinks  []ports.ResultSink
	log    zerolog.Logger

	streams    *rng.Context
	validation dataset.Subset
	test       dataset.Subset
	clients    []fl.Client
	server     fl.Server
	recorder   *Recorder

	state State
	round int
}

// New loads the dataset and builds the environment, clients and server. It
// fails if any client would be left without training data.
func New(ctx context.Context, opts Options) (*Simulator, error) {
	params := opts.Params
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("dataset provider is required")
	}

	log := logger.WithComponent("simulator").With().
		Str("algorithm", string(params.Algorithm)).
		Str("dataset", params.Dataset).
		Str("partitioning", string(params.Partitioning)).
		Int64("seed", params.Seed).
		Logger()

	train, test, err := opts.Provider.DownloadDataset(ctx, params.Dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", params.Dataset, err)
	}

	streams := rng.New(params.Seed)
	training, validation, err := dataset.SplitTrainValidation(train, TrainSplitRatio, streams.Stream("split"))
	if err != nil {
		return nil, fmt.Errorf("failed to split training data: %w", err)
	}

	env, err := partition.PartitionToSubregions(
		training,
		validation,
		params.Dataset,
		params.Partitioning,
		params.Areas,
		params.Seed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to partition dataset: %w", err)
	}

	mapping, err := mapClientsToData(env, params.Clients, params.Areas)
	if err != nil {
		return nil, err
	}

	model := nn.ForDataset(params.Dataset, train.Dim(), train.NumClasses(), streams.Stream("model/init"))
	server, err := fl.NewServer(params.Algorithm, model, params.Clients)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	clients := make([]fl.Client, params.Clients)
	for index := range clients {
		clients[index], err = fl.NewClient(fl.ClientConfig{
			Index:        index,
			Algorithm:    params.Algorithm,
			Data:         mapping[index],
			BatchSize:    params.BatchSize,
			LocalEpochs:  params.LocalEpochs,
			LearningRate: params.LearningRate,
			Mu:           params.Mu,
			Stream:       clientStream(streams, index),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	}

	log.Info().
		Int("clients", params.Clients).
		Int("areas", params.Areas).
		Int("train_samples", training.Len()).
		Int("validation_samples", validation.Len()).
		Int("params", model.NumParams()).
		Msg("Simulation initialized")

	return &Simulator{
		params:     params,
		sinks:      opts.Sinks,
		log:        log,
		streams:    streams,
		validation: validation,
		test:       test.All(),
		clients:    clients,
		server:     server,
		recorder:   NewRecorder(params.GlobalRounds),
		state:      StateConstructing,
	}, nil
}

// mapClientsToData assigns contiguous blocks of client ids to areas and gives
// every client its shard of the area's data.
func mapClientsToData(env *partition.Environment, nClients, areas int) (map[int]partition.DeviceData, error) {
	ids := make([]int, nClients)
	for i := range ids {
		ids[i] = i
	}

	mapping := make(map[int]partition.DeviceData, nClients)
	for region, devices := range rng.ArraySplit(ids, areas) {
		shards, err := env.FromSubregionToDevices(region, len(devices))
		if err != nil {
			return nil, fmt.Errorf("failed to split region %d across devices: %w", region, err)
		}
		for device, data := range shards {
			mapping[devices[device]] = data
		}
	}
	return mapping, nil
}

func clientStream(streams *rng.Context, index int) *rand.Rand {
	return streams.Stream(fmt.Sprintf("client-%d", index))
}

// SeedEverything resets every random stream the run draws from after
// construction to the ones derived from seed.
func (s *Simulator) SeedEverything(seed int64) {
	s.streams = rng.New(seed)
	for _, c := range s.clients {
		c.Reseed(clientStream(s.streams, c.Index()))
	}
}

func (s *Simulator) State() State {
	return s.state
}

// Round returns the index of the round in progress or last completed.
func (s *Simulator) Round() int {
	return s.round
}

func (s *Simulator) Recorder() *Recorder {
	return s.recorder
}

// Start runs globalRounds synchronous rounds, evaluates the final model on the
// test set and writes the result to every sink. A simulator runs once.
func (s *Simulator) Start(ctx context.Context, globalRounds int) (*models.SimulationResult, error) {
	if s.state != StateConstructing {
		return nil, ErrSimulationDone
	}
	s.state = StateRunning
	startedAt := time.Now()

	result, err := s.run(ctx, globalRounds, startedAt)
	s.state = StateDone
	if err != nil {
		s.log.Error().Err(err).Int("round", s.round).Msg("Simulation failed")
		return nil, err
	}
	return result, nil
}

func (s *Simulator) run(ctx context.Context, globalRounds int, startedAt time.Time) (*models.SimulationResult, error) {
	for r := 0; r < globalRounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.round = r
		if err := s.runRound(ctx, r); err != nil {
			return nil, fmt.Errorf("round %d: %w", r, err)
		}
	}

	s.state = StateFinalizing
	testLoss, testAcc, err := nn.Evaluate(s.server.Model(), s.test, s.params.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate on test set: %w", err)
	}
	s.recorder.SetTest(testLoss, testAcc)

	test, _ := s.recorder.Test()
	result := &models.SimulationResult{
		Params:      s.params,
		Rounds:      s.recorder.Rounds(),
		Test:        test,
		ModelParams: append([]float64(nil), s.server.Model().Params()...),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}

	for _, sink := range s.sinks {
		if err := sink.Write(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to write results to %s: %w", sink.Name(), err)
		}
	}

	s.log.Info().
		Float64("test_loss", test.Loss).
		Float64("test_accuracy", test.Accuracy).
		Dur("elapsed", result.FinishedAt.Sub(startedAt)).
		Msg("Simulation completed")

	return result, nil
}

func (s *Simulator) runRound(ctx context.Context, round int) error {
	s.log.Info().Int("round", round).Msg("Starting global round")

	broadcast := s.server.Broadcast()
	for _, c := range s.clients {
		if err := c.NotifyUpdates(broadcast); err != nil {
			return fmt.Errorf("failed to notify client %d: %w", c.Index(), err)
		}
	}

	trainingLoss, err := s.trainClients(ctx)
	if err != nil {
		return err
	}

	updates := make(map[int]fl.Update, len(s.clients))
	for _, c := range s.clients {
		updates[c.Index()] = c.Update()
	}
	if err := s.server.ReceiveClientUpdate(updates); err != nil {
		return fmt.Errorf("failed to receive client updates: %w", err)
	}
	if err := s.server.Aggregate(); err != nil {
		return fmt.Errorf("failed to aggregate: %w", err)
	}

	validationLoss, validationAcc, err := nn.Evaluate(s.server.Model(), s.validation, s.params.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to validate global model: %w", err)
	}
	s.recorder.Record(round, trainingLoss, validationLoss, validationAcc)

	s.log.Debug().
		Int("round", round).
		Float64("training_loss", trainingLoss).
		Float64("validation_loss", validationLoss).
		Float64("validation_accuracy", validationAcc).
		Msg("Round completed")
	return nil
}

// trainClients trains every client and returns the mean of their losses. With
// parallelism above one, up to that many clients train at once; the call
// still returns only after all of them finished.
func (s *Simulator) trainClients(ctx context.Context) (float64, error) {
	losses := make([]float64, len(s.clients))

	if s.params.Parallelism <= 1 {
		for i, c := range s.clients {
			loss, err := c.Train(ctx)
			if err != nil {
				return 0, fmt.Errorf("client %d failed to train: %w", c.Index(), err)
			}
			losses[i] = loss
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.params.Parallelism)
		for i, c := range s.clients {
			g.Go(func() error {
				loss, err := c.Train(gctx)
				if err != nil {
					return fmt.Errorf("client %d failed to train: %w", c.Index(), err)
				}
				losses[i] = loss
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
	}

	var total float64
	for _, loss := range losses {
		total += loss
	}
	return total / float64(len(losses)), nil
}
