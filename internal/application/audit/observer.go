package audit

import (
	"context"
	"sync"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/events"
	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/eventbus"
	"saga-transaction/internal/infrastructure/eventstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEmitTimeout bounds each journal write and each publish
const DefaultEmitTimeout = 2 * time.Second

// Observer journals every saga lifecycle notification as an event and then publishes it.
// Journal and bus failures are logged and never reach the saga. A nil bus only journals.
type Observer struct {
	eventStore  eventstore.EventStore
	eventBus    eventbus.EventBus
	topic       string
	source      string
	logger      logger.Logger
	emitTimeout time.Duration

	mu        sync.Mutex
	sequences map[uuid.UUID]int64
}

func NewObserver(es eventstore.EventStore, eb eventbus.EventBus, topic, source string, l logger.Logger) *Observer {
	return &Observer{
		eventStore:  es,
		eventBus:    eb,
		topic:       topic,
		source:      source,
		logger:      l,
		emitTimeout: DefaultEmitTimeout,
		sequences:   make(map[uuid.UUID]int64),
	}
}

// WithEmitTimeout replaces the bound on each journal write and publish; non-positive values are ignored
func (o *Observer) WithEmitTimeout(d time.Duration) *Observer {
	if d > 0 {
		o.emitTimeout = d
	}
	return o
}

func (o *Observer) SagaStarted(ctx context.Context, transactionID uuid.UUID, mode saga.ProcessMode, stageCount int) {
	o.emit(ctx, events.NewSagaStarted(transactionID.String(), mode.String(), stageCount, o.metadata(ctx, transactionID), o.next(transactionID)))
}

func (o *Observer) StageProcessed(ctx context.Context, transactionID uuid.UUID, stage string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	o.emit(ctx, events.NewStageProcessed(transactionID.String(), stage, status.String(), err, elapsed, o.metadata(ctx, transactionID), o.next(transactionID)))
}

func (o *Observer) StageCompensated(ctx context.Context, transactionID uuid.UUID, stage string, status saga.ExecutionStatus, err error, elapsed time.Duration) {
	o.emit(ctx, events.NewStageCompensated(transactionID.String(), stage, status.String(), err, elapsed, o.metadata(ctx, transactionID), o.next(transactionID)))
}

func (o *Observer) SagaFinished(ctx context.Context, transactionID uuid.UUID, status, rollbackStatus saga.ExecutionStatus) {
	event := events.NewSagaFinished(transactionID.String(), status.String(), rollbackStatus.String(), o.metadata(ctx, transactionID), o.next(transactionID))

	o.mu.Lock()
	delete(o.sequences, transactionID)
	o.mu.Unlock()

	o.emit(ctx, event)
}

func (o *Observer) metadata(ctx context.Context, transactionID uuid.UUID) events.EventMetadata {
	metadata := events.EventMetadata{
		CorrelationID: transactionID.String(),
		Source:        o.source,
		Timestamp:     time.Now(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata.TraceID = sc.TraceID().String()
	}
	return metadata
}

// next returns the per-saga sequence number of the next event, starting at 1
func (o *Observer) next(transactionID uuid.UUID) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sequences[transactionID]++
	return o.sequences[transactionID]
}

// emit detaches from cancellation so a cancelled saga still leaves a complete audit trail.
// Each call is bounded by emitTimeout since it runs inline on the saga.
func (o *Observer) emit(ctx context.Context, event events.Event) {
	detached := context.WithoutCancel(ctx)

	saveCtx, cancel := context.WithTimeout(detached, o.emitTimeout)
	err := o.eventStore.SaveEvent(saveCtx, event)
	cancel()
	if err != nil {
		o.logger.Error("Failed to journal saga event",
			logger.Field{Key: "transaction_id", Value: event.AggregateID()},
			logger.Field{Key: "event_type", Value: event.Type()},
			logger.Field{Key: "error", Value: err},
		)
	}

	if o.eventBus == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(detached, o.emitTimeout)
	defer cancel()
	if err := o.eventBus.Publish(publishCtx, o.topic, event); err != nil {
		o.logger.Error("Failed to publish saga event",
			logger.Field{Key: "transaction_id", Value: event.AggregateID()},
			logger.Field{Key: "event_type", Value: event.Type()},
			logger.Field{Key: "error", Value: err},
		)
	}
}
