package stages

import (
	"context"

	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
)

type StepFunc func(ctx context.Context, transactionID uuid.UUID) error

// FuncStage adapts two functions into a Stage. A nil compensate always succeeds.
type FuncStage struct {
	base
	process    StepFunc
	compensate StepFunc
}

func NewFuncStage(info string, process, compensate StepFunc) *FuncStage {
	return &FuncStage{
		base:       base{info: info},
		process:    process,
		compensate: compensate,
	}
}

func (s *FuncStage) Process(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if err := s.begin(); err != nil {
		return s.Status(), err
	}
	var err error
	if s.process != nil {
		err = s.process(ctx, transactionID)
	}
	return s.finish(err)
}

func (s *FuncStage) Rollback(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if s.compensate == nil {
		return saga.Completed, nil
	}
	if err := s.compensate(ctx, transactionID); err != nil {
		return saga.Faulted, err
	}
	return saga.Completed, nil
}
