package fl

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/nn"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrNoUpdates      = errors.New("no client updates to aggregate")
	ErrUnexpectedPeer = errors.New("update set does not match the client population")
)

type Server interface {
	// Model is the canonical global model. Callers must not modify it.
	Model() nn.Model
	Broadcast() Broadcast
	ReceiveClientUpdate(updates map[int]Update) error
	Aggregate() error
}

// NewServer owns model from here on. FedAvg and FedProx share the same
// server; only the client objective differs.
func NewServer(algorithm models.Algorithm, model nn.Model, nClients int) (Server, error) {
	if nClients <= 0 {
		return nil, fmt.Errorf("client count must be positive, got %d", nClients)
	}

	base := fedAvgServer{model: model, nClients: nClients}
	switch algorithm {
	case models.AlgorithmFedAvg, models.AlgorithmFedProx:
		return &base, nil
	case models.AlgorithmScaffold:
		return &scaffoldServer{
			fedAvgServer: base,
			control:      make([]float64, model.NumParams()),
		}, nil
	default:
		return nil, fmt.Errorf("server: algorithm %q: %w", algorithm, models.ErrUnsupportedAlgorithm)
	}
}

type fedAvgServer struct {
	model    nn.Model
	nClients int
	updates  map[int]Update
}

func (s *fedAvgServer) Model() nn.Model {
	return s.model
}

func (s *fedAvgServer) Broadcast() Broadcast {
	return Broadcast{Model: s.model}
}

func (s *fedAvgServer) ReceiveClientUpdate(updates map[int]Update) error {
	if err := s.validate(updates, false); err != nil {
		return err
	}
	s.updates = updates
	return nil
}

func (s *fedAvgServer) validate(updates map[int]Update, needControl bool) error {
	if len(updates) != s.nClients {
		return fmt.Errorf("got %d updates for %d clients: %w", len(updates), s.nClients, ErrUnexpectedPeer)
	}

	size := s.model.NumParams()
	for index := 0; index < s.nClients; index++ {
		u, ok := updates[index]
		if !ok {
			return fmt.Errorf("client %d missing: %w", index, ErrUnexpectedPeer)
		}
		if len(u.Params) != size {
			return fmt.Errorf("client %d sent %d parameters, want %d: %w", index, len(u.Params), size, nn.ErrParamLength)
		}
		if needControl && len(u.ControlDelta) != size {
			return fmt.Errorf("client %d: control delta has %d values, want %d: %w", index, len(u.ControlDelta), size, ErrMissingState)
		}
	}
	return nil
}

// mean reduces a per-client vector in client-index order so the result does
// not depend on the order clients finished in.
func (s *fedAvgServer) mean(pick func(Update) []float64) []float64 {
	out := make([]float64, s.model.NumParams())
	for index := 0; index < s.nClients; index++ {
		floats.Add(out, pick(s.updates[index]))
	}
	floats.Scale(1/float64(s.nClients), out)
	return out
}

func (s *fedAvgServer) Aggregate() error {
	if len(s.updates) == 0 {
		return ErrNoUpdates
	}

	avg := s.mean(func(u Update) []float64 { return u.Params })
	if err := s.model.SetParams(avg); err != nil {
		return fmt.Errorf("failed to install aggregated model: %w", err)
	}

	log.Debug().
		Str("component", "fl_server").
		Int("clients", s.nClients).
		Float64("param_norm", floats.Norm(avg, 2)).
		Msg("Aggregated client models")

	s.updates = nil
	return nil
}

type scaffoldServer struct {
	fedAvgServer
	control []float64
}

func (s *scaffoldServer) Broadcast() Broadcast {
	return Broadcast{Model: s.model, Control: s.control}
}

func (s *scaffoldServer) ReceiveClientUpdate(updates map[int]Update) error {
	if err := s.validate(updates, true); err != nil {
		return err
	}
	s.updates = updates
	return nil
}

// Aggregate averages the models and moves c by the mean client control delta.
func (s *scaffoldServer) Aggregate() error {
	if len(s.updates) == 0 {
		return ErrNoUpdates
	}
	delta := s.mean(func(u Update) []float64 { return u.ControlDelta })
	if err := s.fedAvgServer.Aggregate(); err != nil {
		return err
	}
	floats.Add(s.control, delta)
	return nil
}

// ControlState returns a copy of the server control variate c.
func (s *scaffoldServer) ControlState() []float64 {
	return append([]float64(nil), s.control...)
}
