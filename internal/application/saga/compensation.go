package saga

import (
	"context"
	"fmt"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
)

// rollback compensates every stage that reports Completed. It runs at most once per
// orchestrator and only for a Faulted saga.
func (o *Orchestrator) rollback(ctx context.Context, stages []saga.Stage, mode saga.ProcessMode) {
	o.compensationMu.Lock()
	defer o.compensationMu.Unlock()

	if o.Status() != saga.Faulted || o.RollbackStatus() != saga.None {
		return
	}

	if err := ctx.Err(); err != nil {
		if !o.options.CompensateOnCancel {
			o.logger.Warn("Compensation skipped for cancelled saga",
				logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
				logger.Field{Key: "error", Value: err},
			)
			return
		}
		ctx = context.WithoutCancel(ctx)
	}

	o.awaitStragglers(ctx, stages)

	var committed []saga.Stage
	for _, stage := range stages {
		if stage.Status() == saga.Completed {
			committed = append(committed, stage)
		}
	}

	o.logger.Info("Compensation started",
		logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
		logger.Field{Key: "stages", Value: len(committed)},
	)

	switch mode {
	case saga.Parallel:
		o.compensateParallel(ctx, committed)
	default:
		o.compensateSequential(ctx, committed)
	}

	for _, stage := range stages {
		if stage.Status() == saga.InProcess {
			o.logger.Error("Stage is still in process and cannot be compensated",
				logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
				logger.Field{Key: "stage", Value: stage.Info()},
				logger.Field{Key: "status", Value: saga.InProcess.String()},
			)
			o.markRollbackFaulted()
		}
	}

	o.finishRollback()
}

func (o *Orchestrator) compensateSequential(ctx context.Context, committed []saga.Stage) {
	for i := len(committed) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			o.abandonCompensation(err)
			return
		}
		o.compensateStage(ctx, committed[i])
	}
}

func (o *Orchestrator) compensateParallel(ctx context.Context, committed []saga.Stage) {
	var g errgroup.Group
	if o.options.MaxParallelism > 0 {
		g.SetLimit(o.options.MaxParallelism)
	}
	for _, stage := range committed {
		stage := stage
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				o.abandonCompensation(err)
				return nil
			}
			o.compensateStage(ctx, stage)
			return nil
		})
	}
	_ = g.Wait()
}

// compensateStage never stops the sweep; failures only mark the rollback Faulted
func (o *Orchestrator) compensateStage(ctx context.Context, stage saga.Stage) {
	info := stage.Info()
	started := time.Now()
	status, err := invoke(ctx, o.transactionID, stage.Rollback)
	o.options.Observer.StageCompensated(ctx, o.transactionID, info, status, err, time.Since(started))

	if err != nil {
		failure := saga.NewCompensationFailureError(o.transactionID.String(), info, err)
		o.logger.Error("Stage compensation failed",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "stage", Value: info},
			logger.Field{Key: "error", Value: failure},
		)
		o.markRollbackFaulted()
		return
	}
	if status != saga.Completed {
		o.logger.Error("Stage compensation did not complete",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "stage", Value: info},
			logger.Field{Key: "status", Value: status.String()},
		)
		o.markRollbackFaulted()
	}
}

func (o *Orchestrator) abandonCompensation(err error) {
	o.logger.Error("Compensation interrupted by cancellation",
		logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
		logger.Field{Key: "error", Value: err},
	)
	o.markRollbackFaulted()
}

// awaitStragglers waits, bounded, for stages still reporting InProcess to settle
func (o *Orchestrator) awaitStragglers(ctx context.Context, stages []saga.Stage) {
	pending := func() int {
		n := 0
		for _, stage := range stages {
			if stage.Status() == saga.InProcess {
				n++
			}
		}
		return n
	}
	if pending() == 0 {
		return
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.options.StragglerPollInterval), o.options.StragglerMaxRetries),
		ctx,
	)
	err := backoff.Retry(func() error {
		if n := pending(); n > 0 {
			return fmt.Errorf("%d stages still in process", n)
		}
		return nil
	}, b)
	if err != nil {
		o.logger.Warn("Stages still in process before compensation",
			logger.Field{Key: "transaction_id", Value: o.transactionID.String()},
			logger.Field{Key: "error", Value: err},
		)
	}
}

func (o *Orchestrator) markRollbackFaulted() {
	o.rollbackMu.Lock()
	defer o.rollbackMu.Unlock()
	o.rollbackStatus = saga.Faulted
}

// finishRollback sets Completed unless a failure already set Faulted
func (o *Orchestrator) finishRollback() {
	o.rollbackMu.Lock()
	defer o.rollbackMu.Unlock()
	if o.rollbackStatus == saga.None {
		o.rollbackStatus = saga.Completed
	}
}
