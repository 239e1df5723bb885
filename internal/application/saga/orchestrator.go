package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs an ordered list of stages once and compensates the committed ones
// when the run faults.
type Orchestrator struct {
	transactionID uuid.UUID
	logger        logger.Logger
	options       Options

	// stateMu guards status, mode and stages
	stateMu sync.RWMutex
	status  saga.ExecutionStatus
	mode    saga.ProcessMode
	stages  []saga.Stage

	rollbackMu     sync.RWMutex
	rollbackStatus saga.ExecutionStatus

	// compensationMu serializes compensation sweeps
	compensationMu sync.Mutex
}

func NewOrchestrator(l logger.Logger, opts ...Option) *Orchestrator {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Observer == nil {
		options.Observer = saga.NopObserver{}
	}
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &Orchestrator{
		transactionID: uuid.New(),
		logger:        l,
		options:       options,
		status:        saga.None,
		mode:          saga.Sequential,
	}
}

func (o *Orchestrator) TransactionID() uuid.UUID {
	return o.transactionID
}

func (o *Orchestrator) Status() saga.ExecutionStatus {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.status
}

func (o *Orchestrator) RollbackStatus() saga.ExecutionStatus {
	o.rollbackMu.RLock()
	defer o.rollbackMu.RUnlock()
	return o.rollbackStatus
}

// Mode returns the mode of the current or last run; Sequential before any run
func (o *Orchestrator) Mode() saga.ProcessMode {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.mode
}

// Stages returns a copy of the registered stages in registration order
func (o *Orchestrator) Stages() []saga.Stage {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	out := make([]saga.Stage, len(o.stages))
	copy(out, o.stages)
	return out
}

// AddStages appends stages in order. It fails with ErrInvalidUsage once the run has started
// or when any stage is nil; in both cases nothing is appended.
func (o *Orchestrator) AddStages(stages ...saga.Stage) error {
	for i, stage := range stages {
		if stage == nil {
			return saga.NewInvalidUsageError(o.transactionID.String(), fmt.Sprintf("stage %d is nil", i))
		}
	}

	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	if o.status != saga.None {
		return saga.NewInvalidUsageError(o.transactionID.String(), "stages can only be added before processing starts")
	}
	o.stages = append(o.stages, stages...)
	return nil
}

// Process runs the saga once in the given mode and compensates if it faults. It returns the
// final saga status. The error is non-nil for invalid usage, contract violations and a cancelled
// context. In sequential mode it also carries the error raised by the stage that faulted the saga;
// a stage that merely returns Faulted is reported through the status alone.
func (o *Orchestrator) Process(ctx context.Context, mode saga.ProcessMode) (saga.ExecutionStatus, error) {
	if !mode.IsValid() {
		return o.Status(), saga.NewInvalidUsageError(o.transactionID.String(), fmt.Sprintf("unknown process mode %d", int(mode)))
	}

	stages, err := o.start(mode)
	if err != nil {
		return o.Status(), err
	}

	o.logger.Info("Saga started",
		logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
		logger.Field{Key: "mode", Value: mode.String()},
		logger.Field{Key: "stages", Value: len(stages)},
	)
	if scoper, ok := o.options.Observer.(saga.RunScoper); ok {
		ctx = scoper.ScopeRun(ctx, o.transactionID, mode, len(stages))
	}
	o.options.Observer.SagaStarted(ctx, o.transactionID, mode, len(stages))

	var runErr error
	switch mode {
	case saga.Sequential:
		runErr = o.processSequential(ctx, stages)
	case saga.Parallel:
		runErr = o.processParallel(ctx, stages)
	}

	o.complete()

	if o.Status() == saga.Faulted && o.RollbackStatus() == saga.None {
		o.rollback(ctx, stages, mode)
	}

	status, rollbackStatus := o.Status(), o.RollbackStatus()
	o.options.Observer.SagaFinished(ctx, o.transactionID, status, rollbackStatus)
	o.logger.Info("Saga finished",
		logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
		logger.Field{Key: "status", Value: status.String()},
		logger.Field{Key: "rollback_status", Value: rollbackStatus.String()},
	)

	return status, runErr
}

// start is the single-run guard: None -> InProcess, atomically
func (o *Orchestrator) start(mode saga.ProcessMode) ([]saga.Stage, error) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	if o.status != saga.None {
		return nil, saga.NewInvalidUsageError(o.transactionID.String(), "process has already been started")
	}
	o.status = saga.InProcess
	o.mode = mode

	stages := make([]saga.Stage, len(o.stages))
	copy(stages, o.stages)
	return stages, nil
}

func (o *Orchestrator) markFaulted() {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.status == saga.InProcess {
		o.status = saga.Faulted
	}
}

func (o *Orchestrator) complete() {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.status == saga.InProcess {
		o.status = saga.Completed
	}
}

func (o *Orchestrator) processSequential(ctx context.Context, stages []saga.Stage) error {
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			o.markFaulted()
			o.logger.Warn("Saga cancelled",
				logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
				logger.Field{Key: "error", Value: err},
			)
			return saga.NewCancelledError(o.transactionID.String(), err)
		}
		if o.Status() != saga.InProcess {
			return nil
		}
		if err := o.processStage(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

// processParallel launches every stage and waits for all of them. Execution failures are
// isolated per unit; only contract violations and cancellation are reported.
func (o *Orchestrator) processParallel(ctx context.Context, stages []saga.Stage) error {
	var (
		g          errgroup.Group
		mu         sync.Mutex
		violations []error
		cancelErr  error
	)
	if o.options.MaxParallelism > 0 {
		g.SetLimit(o.options.MaxParallelism)
	}

	for _, stage := range stages {
		stage := stage
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				o.markFaulted()
				mu.Lock()
				if cancelErr == nil {
					cancelErr = saga.NewCancelledError(o.transactionID.String(), err)
				}
				mu.Unlock()
				return nil
			}
			if o.Status() != saga.InProcess {
				return nil
			}

			err := o.processStage(ctx, stage)
			if errors.Is(err, saga.ErrStageContractViolation) {
				mu.Lock()
				violations = append(violations, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if cancelErr != nil {
		o.logger.Warn("Saga cancelled",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "error", Value: cancelErr},
		)
		violations = append([]error{cancelErr}, violations...)
	}
	return errors.Join(violations...)
}

// processStage runs one forward call and enforces the stage contract
func (o *Orchestrator) processStage(ctx context.Context, stage saga.Stage) error {
	info := stage.Info()
	started := time.Now()
	status, err := invoke(ctx, o.transactionID, stage.Process)
	o.options.Observer.StageProcessed(ctx, o.transactionID, info, status, err, time.Since(started))

	if err != nil {
		o.markFaulted()
		o.logger.Error("Stage processing failed",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "stage", Value: info},
			logger.Field{Key: "error", Value: err},
		)
		return saga.NewExecutionFailureError(o.transactionID.String(), info, err)
	}

	if status != saga.Completed {
		o.markFaulted()
	}

	if reported := stage.Status(); reported != status || !status.IsTerminal() {
		o.markFaulted()
		o.logger.Error("Stage violated its status contract",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "stage", Value: info},
			logger.Field{Key: "status", Value: status.String()},
			logger.Field{Key: "reported_status", Value: reported.String()},
		)
		return saga.NewContractViolationError(o.transactionID.String(), info,
			fmt.Sprintf("returned status %s but reports %s", status, reported))
	}

	if status == saga.Faulted {
		o.logger.Error("Stage faulted",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "stage", Value: info},
			logger.Field{Key: "status", Value: status.String()},
		)
	}
	return nil
}

// invoke calls a stage method and converts a panic into an error
func invoke(ctx context.Context, transactionID uuid.UUID, call func(context.Context, uuid.UUID) (saga.ExecutionStatus, error)) (status saga.ExecutionStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = saga.None
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return call(ctx, transactionID)
}
