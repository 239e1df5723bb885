package telemetry

import (
	"context"
	"sync"
	"time"

	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrTransactionID  = attribute.Key("saga.transaction_id")
	attrMode           = attribute.Key("saga.mode")
	attrStageCount     = attribute.Key("saga.stage_count")
	attrStage          = attribute.Key("saga.stage")
	attrStatus         = attribute.Key("saga.status")
	attrRollbackStatus = attribute.Key("saga.rollback_status")
)

// TracingObserver records one span per saga run with a child span per stage call.
// The run span is placed in the context the orchestrator hands to stages, so outbound
// HTTP requests and published commands join the run's trace. Stage spans are reported
// after the call returns, back-dated by its duration.
type TracingObserver struct {
	tracer trace.Tracer
	runs   sync.Map // transaction id -> trace.Span
}

func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{tracer: tracer}
}

// ScopeRun opens the run span and returns ctx carrying it
func (o *TracingObserver) ScopeRun(ctx context.Context, transactionID uuid.UUID, mode saga.ProcessMode, stageCount int) context.Context {
	ctx, span := o.tracer.Start(ctx, "saga.run",
		trace.WithAttributes(
			attrTransactionID.String(transactionID.String()),
			attrMode.String(mode.String()),
			attrStageCount.Int(stageCount),
		),
	)
	if prev, loaded := o.runs.Swap(transactionID, span); loaded {
		prev.(trace.Span).End()
	}
	return ctx
}

func (o *TracingObserver) SagaStarted(ctx context.Context, transactionID uuid.UUID, mode saga.ProcessMode, stageCount int) {
	if _, ok := o.runs.Load(transactionID); ok {
		return
	}
	o.ScopeRun(ctx, transactionID, mode, stageCount)
}

func (o *TracingObserver) StageProcessed(ctx context.Context, transactionID uuid.UUID, stage string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	o.recordStage(ctx, "saga.stage.process", transactionID, stage, status, err, elapsed)
}

func (o *TracingObserver) StageCompensated(ctx context.Context, transactionID uuid.UUID, stage string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	o.recordStage(ctx, "saga.stage.rollback", transactionID, stage, status, err, elapsed)
}

func (o *TracingObserver) SagaFinished(_ context.Context, transactionID uuid.UUID, status, rollbackStatus saga.ExecutionStatus) {
	v, ok := o.runs.LoadAndDelete(transactionID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attrStatus.String(status.String()),
		attrRollbackStatus.String(rollbackStatus.String()),
	)
	if status != saga.Completed {
		span.SetStatus(codes.Error, "saga "+status.String())
	}
	span.End()
}

func (o *TracingObserver) recordStage(ctx context.Context, name string, transactionID uuid.UUID, stage string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	if v, ok := o.runs.Load(transactionID); ok {
		ctx = trace.ContextWithSpan(ctx, v.(trace.Span))
	}

	end := time.Now()
	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(
			attrTransactionID.String(transactionID.String()),
			attrStage.String(stage),
			attrStatus.String(status.String()),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if status != saga.Completed {
		span.SetStatus(codes.Error, "stage "+status.String())
	}
	span.End(trace.WithTimestamp(end))
}
