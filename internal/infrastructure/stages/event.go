package stages

import (
	"context"

	"saga-transaction/internal/domain/events"
	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/eventbus"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// EventStage hands its work to a remote participant by publishing a command event. The stage
// completes once the command is accepted by the bus.
type EventStage struct {
	base
	bus               eventbus.EventBus
	topic             string
	command           string
	compensateCommand string
	source            string
}

func NewEventStage(info string, bus eventbus.EventBus, topic, command, compensateCommand, source string) *EventStage {
	return &EventStage{
		base:              base{info: info},
		bus:               bus,
		topic:             topic,
		command:           command,
		compensateCommand: compensateCommand,
		source:            source,
	}
}

func (s *EventStage) Process(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if err := s.begin(); err != nil {
		return s.Status(), err
	}
	return s.finish(s.publish(ctx, transactionID, s.command, false))
}

func (s *EventStage) Rollback(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if s.compensateCommand == "" {
		return saga.Completed, nil
	}
	if err := s.publish(ctx, transactionID, s.compensateCommand, true); err != nil {
		return saga.Faulted, err
	}
	return saga.Completed, nil
}

func (s *EventStage) publish(ctx context.Context, transactionID uuid.UUID, command string, compensation bool) error {
	metadata := events.EventMetadata{
		CorrelationID: transactionID.String(),
		Source:        s.source,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata.TraceID = sc.TraceID().String()
	}
	event := events.NewStageCommandRequested(transactionID.String(), s.info, command, compensation, metadata)
	if err := s.bus.Publish(ctx, s.topic, event); err != nil {
		return errors.Wrapf(err, "publish %s", command)
	}
	return nil
}
