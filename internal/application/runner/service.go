package runner

import (
	"context"
	"sync"

	sagaapp "saga-transaction/internal/application/saga"
	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidDefinition = errors.New("invalid saga definition")

// StageFactory turns a stage definition into a runnable stage
type StageFactory interface {
	Build(def saga.StageDefinition) (saga.Stage, error)
}

// Service builds orchestrators from definitions, runs them and keeps them for lookup
type Service struct {
	factory  StageFactory
	observer saga.Observer
	logger   logger.Logger
	options  []sagaapp.Option

	mu    sync.RWMutex
	sagas map[uuid.UUID]*sagaapp.Orchestrator
	order []uuid.UUID
	wg    sync.WaitGroup
}

func NewService(factory StageFactory, observer saga.Observer, l logger.Logger, opts ...sagaapp.Option) *Service {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Service{
		factory:  factory,
		observer: observer,
		logger:   l,
		options:  opts,
		sagas:    make(map[uuid.UUID]*sagaapp.Orchestrator),
	}
}

// Run processes def to the end and returns the final snapshot along with the orchestrator's error
func (s *Service) Run(ctx context.Context, def saga.Definition) (sagaapp.Snapshot, error) {
	o, err := s.prepare(def)
	if err != nil {
		return sagaapp.Snapshot{}, err
	}

	_, err = o.Process(ctx, def.Mode)
	return o.Snapshot(), err
}

// Submit starts def in the background and returns the snapshot taken before processing.
// The run is detached from ctx cancellation; Wait blocks until every submitted run is done.
func (s *Service) Submit(ctx context.Context, def saga.Definition) (sagaapp.Snapshot, error) {
	o, err := s.prepare(def)
	if err != nil {
		return sagaapp.Snapshot{}, err
	}

	snapshot := o.Snapshot()
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := o.Process(runCtx, def.Mode); err != nil {
			s.logger.Warn("Submitted saga returned an error",
				logger.Field{Key: "transaction_id", Value: o.TransactionID().String()},
				logger.Field{Key: "error", Value: err},
			)
		}
	}()

	return snapshot, nil
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Get(id uuid.UUID) (sagaapp.Snapshot, bool) {
	s.mu.RLock()
	o, ok := s.sagas[id]
	s.mu.RUnlock()
	if !ok {
		return sagaapp.Snapshot{}, false
	}
	return o.Snapshot(), true
}

// List returns snapshots of every known saga in submission order
func (s *Service) List() []sagaapp.Snapshot {
	s.mu.RLock()
	orchestrators := make([]*sagaapp.Orchestrator, 0, len(s.order))
	for _, id := range s.order {
		orchestrators = append(orchestrators, s.sagas[id])
	}
	s.mu.RUnlock()

	out := make([]sagaapp.Snapshot, 0, len(orchestrators))
	for _, o := range orchestrators {
		out = append(out, o.Snapshot())
	}
	return out
}

func (s *Service) prepare(def saga.Definition) (*sagaapp.Orchestrator, error) {
	if err := s.validate(def); err != nil {
		return nil, err
	}

	stages := make([]saga.Stage, 0, len(def.Stages))
	for i, sd := range def.Stages {
		stage, err := s.factory.Build(sd)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDefinition, "stage %d: %v", i, err)
		}
		stages = append(stages, stage)
	}

	opts := append([]sagaapp.Option{}, s.options...)
	opts = append(opts, sagaapp.WithObserver(s.observer))
	o := sagaapp.NewOrchestrator(s.logger, opts...)
	if err := o.AddStages(stages...); err != nil {
		return nil, errors.Wrap(ErrInvalidDefinition, err.Error())
	}

	s.mu.Lock()
	s.sagas[o.TransactionID()] = o
	s.order = append(s.order, o.TransactionID())
	s.mu.Unlock()

	s.logger.Info("Saga registered",
		logger.Field{Key: "transaction_id", Value: o.TransactionID().String()},
		logger.Field{Key: "mode", Value: def.Mode.String()},
		logger.Field{Key: "stages", Value: len(stages)},
	)
	return o, nil
}

func (s *Service) validate(def saga.Definition) error {
	if !def.Mode.IsValid() {
		return errors.Wrapf(ErrInvalidDefinition, "unknown mode %d", int(def.Mode))
	}

	seen := make(map[string]int, len(def.Stages))
	for i, sd := range def.Stages {
		if prev, dup := seen[sd.Info]; dup && sd.Info != "" {
			return errors.Wrapf(ErrInvalidDefinition, "stage %d repeats info %q of stage %d", i, sd.Info, prev)
		}
		seen[sd.Info] = i
	}
	return nil
}
