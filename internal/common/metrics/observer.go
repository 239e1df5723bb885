package metrics

import (
	"context"
	"sync"
	"time"

	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
)

// Observer feeds saga lifecycle notifications into a Collector
type Observer struct {
	collector Collector
	modes     sync.Map // transaction id -> saga.ProcessMode
}

func NewObserver(c Collector) *Observer {
	return &Observer{collector: c}
}

func (o *Observer) SagaStarted(_ context.Context, transactionID uuid.UUID, mode saga.ProcessMode, _ int) {
	o.modes.Store(transactionID, mode)
}

func (o *Observer) StageProcessed(_ context.Context, _ uuid.UUID, _ string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	o.collector.RecordStageCall(OperationProcess, outcome(status, err), elapsed)
}

func (o *Observer) StageCompensated(_ context.Context, _ uuid.UUID, _ string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	o.collector.RecordStageCall(OperationRollback, outcome(status, err), elapsed)
}

func (o *Observer) SagaFinished(_ context.Context, transactionID uuid.UUID, status, rollbackStatus saga.ExecutionStatus) {
	mode := saga.Sequential
	if v, ok := o.modes.LoadAndDelete(transactionID); ok {
		mode = v.(saga.ProcessMode)
	}
	o.collector.RecordSagaRun(mode.String(), status.String(), rollbackStatus.String())
}

// outcome labels a call that raised an error as "error" regardless of the returned status
func outcome(status saga.ExecutionStatus, err error) string {
	if err != nil {
		return "error"
	}
	return status.String()
}
