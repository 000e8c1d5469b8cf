// Package fl implements the client and server halves of the supported
// federated optimization algorithms.
package fl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/nn"
	"github.com/theblitlabs/fedsim/internal/core/partition"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrEmptyShard   = errors.New("client has no training samples")
	ErrDivergence   = errors.New("training loss is not finite")
	ErrNotNotified  = errors.New("client has not received a global model")
	ErrMissingState = errors.New("broadcast lacks the server control state")
)

// Broadcast is what the server sends every client at the start of a round.
// Both fields are read-only for receivers.
type Broadcast struct {
	Model   nn.Model
	Control []float64
}

// Update is what a client reports after local training. ControlDelta is set
// only by SCAFFOLD clients.
type Update struct {
	Params       []float64
	ControlDelta []float64
}

type Client interface {
	Index() int
	NotifyUpdates(b Broadcast) error
	// Train runs the configured number of local epochs and returns the mean
	// batch loss over all of them.
	Train(ctx context.Context) (float64, error)
	Update() Update
	Reseed(r *rand.Rand)
}

type ClientConfig struct {
	Index        int
	Algorithm    models.Algorithm
	Data         partition.DeviceData
	BatchSize    int
	LocalEpochs  int
	LearningRate float64
	Mu           float64
	Stream       *rand.Rand
}

func NewClient(cfg ClientConfig) (Client, error) {
	if cfg.Data.Train.Len() == 0 {
		return nil, fmt.Errorf("client %d: %w", cfg.Index, ErrEmptyShard)
	}
	if cfg.BatchSize <= 0 || cfg.LocalEpochs <= 0 || cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("client %d: batch size, local epochs and learning rate must be positive", cfg.Index)
	}
	if cfg.Stream == nil {
		return nil, fmt.Errorf("client %d: random stream is required", cfg.Index)
	}

	base := baseClient{
		index:       cfg.Index,
		data:        cfg.Data,
		batchSize:   cfg.BatchSize,
		localEpochs: cfg.LocalEpochs,
		lr:          cfg.LearningRate,
		stream:      cfg.Stream,
	}

	switch cfg.Algorithm {
	case models.AlgorithmFedAvg:
		return &fedAvgClient{baseClient: base}, nil
	case models.AlgorithmFedProx:
		return &fedProxClient{baseClient: base, mu: cfg.Mu}, nil
	case models.AlgorithmScaffold:
		return &scaffoldClient{baseClient: base}, nil
	default:
		return nil, fmt.Errorf("client %d: algorithm %q: %w", cfg.Index, cfg.Algorithm, models.ErrUnsupportedAlgorithm)
	}
}

type baseClient struct {
	index       int
	data        partition.DeviceData
	batchSize   int
	localEpochs int
	lr          float64
	stream      *rand.Rand

	model  nn.Model
	global []float64
	grad   []float64
	steps  int
}

func (c *baseClient) Index() int {
	return c.index
}

func (c *baseClient) Reseed(r *rand.Rand) {
	c.stream = r
}

func (c *baseClient) notify(b Broadcast) error {
	if b.Model == nil {
		return fmt.Errorf("client %d: broadcast has no model", c.index)
	}
	c.model = b.Model.Clone()
	c.global = append(c.global[:0], b.Model.Params()...)
	if len(c.grad) != len(c.global) {
		c.grad = make([]float64, len(c.global))
	}
	return nil
}

func (c *baseClient) Update() Update {
	if c.model == nil {
		return Update{}
	}
	params := make([]float64, c.model.NumParams())
	copy(params, c.model.Params())
	return Update{Params: params}
}

// train runs SGD over the local shard. correct, when set, adjusts the raw
// gradient in place before each step.
func (c *baseClient) train(ctx context.Context, correct func(w, grad []float64)) (float64, error) {
	if c.model == nil {
		return 0, fmt.Errorf("client %d: %w", c.index, ErrNotNotified)
	}

	n := c.data.Train.Len()
	var total float64
	batches := 0
	for epoch := 0; epoch < c.localEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		perm := c.stream.Perm(n)
		for start := 0; start < n; start += c.batchSize {
			end := min(start+c.batchSize, n)
			x, labels := c.data.Train.Batch(perm[start:end])

			w := c.model.Params()
			loss := c.model.LossAndGrad(x, labels, c.grad)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return 0, fmt.Errorf("client %d epoch %d: %w", c.index, epoch, ErrDivergence)
			}
			if correct != nil {
				correct(w, c.grad)
			}
			floats.AddScaled(w, -c.lr, c.grad)

			total += loss
			batches++
		}
	}

	c.steps = batches
	return total / float64(batches), nil
}

type fedAvgClient struct {
	baseClient
}

func (c *fedAvgClient) NotifyUpdates(b Broadcast) error {
	return c.notify(b)
}

func (c *fedAvgClient) Train(ctx context.Context) (float64, error) {
	return c.train(ctx, nil)
}

// fedProxClient adds the proximal term mu/2·||w - w_global||² to the local
// objective.
type fedProxClient struct {
	baseClient
	mu float64
}

func (c *fedProxClient) NotifyUpdates(b Broadcast) error {
	return c.notify(b)
}

func (c *fedProxClient) Train(ctx context.Context) (float64, error) {
	return c.train(ctx, func(w, grad []float64) {
		for i := range grad {
			grad[i] += c.mu * (w[i] - c.global[i])
		}
	})
}

// scaffoldClient corrects every step by the drift between its own control
// variate and the server's.
type scaffoldClient struct {
	baseClient
	control []float64
	server  []float64
	delta   []float64
}

func (c *scaffoldClient) NotifyUpdates(b Broadcast) error {
	if err := c.notify(b); err != nil {
		return err
	}
	if len(b.Control) != len(c.global) {
		return fmt.Errorf("client %d: %w", c.index, ErrMissingState)
	}
	c.server = append(c.server[:0], b.Control...)
	if c.control == nil {
		c.control = make([]float64, len(c.global))
	}
	return nil
}

func (c *scaffoldClient) Train(ctx context.Context) (float64, error) {
	loss, err := c.train(ctx, func(_, grad []float64) {
		floats.Sub(grad, c.control)
		floats.Add(grad, c.server)
	})
	if err != nil {
		return 0, err
	}

	// c_i+ = c_i - c + (w_global - w) / (K·lr)
	w := c.model.Params()
	scale := 1 / (float64(c.steps) * c.lr)
	if len(c.delta) != len(w) {
		c.delta = make([]float64, len(w))
	}
	for i := range w {
		c.delta[i] = (c.global[i]-w[i])*scale - c.server[i]
	}
	floats.Add(c.control, c.delta)
	return loss, nil
}

func (c *scaffoldClient) Update() Update {
	u := c.baseClient.Update()
	if c.delta != nil {
		u.ControlDelta = append([]float64(nil), c.delta...)
	}
	return u
}

// ControlState returns a copy of the client control variate c_i.
func (c *scaffoldClient) ControlState() []float64 {
	return append([]float64(nil), c.control...)
}
