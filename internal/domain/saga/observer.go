package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Observer receives saga lifecycle notifications. In parallel mode the stage callbacks
// arrive concurrently, so implementations must be safe for concurrent use.
type Observer interface {
	SagaStarted(ctx context.Context, transactionID uuid.UUID, mode ProcessMode, stageCount int)
	StageProcessed(ctx context.Context, transactionID uuid.UUID, stage string, status ExecutionStatus, err error, elapsed time.Duration)
	StageCompensated(ctx context.Context, transactionID uuid.UUID, stage string, status ExecutionStatus, err error, elapsed time.Duration)
	SagaFinished(ctx context.Context, transactionID uuid.UUID, status, rollbackStatus ExecutionStatus)
}

// RunScoper is implemented by observers that derive the context handed to every stage
// call of a run, for example to carry the run's trace span to outbound requests.
type RunScoper interface {
	ScopeRun(ctx context.Context, transactionID uuid.UUID, mode ProcessMode, stageCount int) context.Context
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) SagaStarted(context.Context, uuid.UUID, ProcessMode, int) {}

func (NopObserver) StageProcessed(context.Context, uuid.UUID, string, ExecutionStatus, error, time.Duration) {
}

func (NopObserver) StageCompensated(context.Context, uuid.UUID, string, ExecutionStatus, error, time.Duration) {
}

func (NopObserver) SagaFinished(context.Context, uuid.UUID, ExecutionStatus, ExecutionStatus) {}

// Observers fans every notification out to each member in order
type Observers []Observer

// ScopeRun threads ctx through every member that implements RunScoper
func (o Observers) ScopeRun(ctx context.Context, transactionID uuid.UUID, mode ProcessMode, stageCount int) context.Context {
	for _, obs := range o {
		if s, ok := obs.(RunScoper); ok {
			ctx = s.ScopeRun(ctx, transactionID, mode, stageCount)
		}
	}
	return ctx
}

func (o Observers) SagaStarted(ctx context.Context, transactionID uuid.UUID, mode ProcessMode, stageCount int) {
	for _, obs := range o {
		obs.SagaStarted(ctx, transactionID, mode, stageCount)
	}
}

func (o Observers) StageProcessed(ctx context.Context, transactionID uuid.UUID, stage string, status ExecutionStatus, err error, elapsed time.Duration) {
	for _, obs := range o {
		obs.StageProcessed(ctx, transactionID, stage, status, err, elapsed)
	}
}

func (o Observers) StageCompensated(ctx context.Context, transactionID uuid.UUID, stage string, status ExecutionStatus, err error, elapsed time.Duration) {
	for _, obs := range o {
		obs.StageCompensated(ctx, transactionID, stage, status, err, elapsed)
	}
}

func (o Observers) SagaFinished(ctx context.Context, transactionID uuid.UUID, status, rollbackStatus ExecutionStatus) {
	for _, obs := range o {
		obs.SagaFinished(ctx, transactionID, status, rollbackStatus)
	}
}
