package stages

import (
	"context"

	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/eventbus"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrUnknownStageType = errors.New("unknown stage type")
	ErrStageUnavailable = errors.New("stage type not configured")
	errConfiguredToFail = errors.New("stage configured to fail")
)

// Factory builds stages from definitions. A nil dependency disables the stage types needing it.
type Factory struct {
	client       Client
	db           Execer
	bus          eventbus.EventBus
	commandTopic string
	source       string
}

func NewFactory(client Client, db Execer, bus eventbus.EventBus, commandTopic, source string) *Factory {
	return &Factory{
		client:       client,
		db:           db,
		bus:          bus,
		commandTopic: commandTopic,
		source:       source,
	}
}

func (f *Factory) Build(def saga.StageDefinition) (saga.Stage, error) {
	if def.Info == "" {
		return nil, errors.Errorf("%s stage: info is required", def.Type)
	}

	switch def.Type {
	case saga.StageTypeHTTP:
		if f.client == nil {
			return nil, errors.Wrap(ErrStageUnavailable, def.Type)
		}
		if def.BaseURL == "" {
			return nil, errors.Errorf("http stage %s: base_url is required", def.Info)
		}
		return NewHTTPStage(def.Info, def.BaseURL, def.Path, f.client), nil

	case saga.StageTypeSQL:
		if f.db == nil {
			return nil, errors.Wrap(ErrStageUnavailable, def.Type)
		}
		if def.Statement == "" {
			return nil, errors.Errorf("sql stage %s: statement is required", def.Info)
		}
		return NewSQLStage(def.Info, f.db, def.Statement, def.CompensateStatement), nil

	case saga.StageTypeEvent:
		if f.bus == nil {
			return nil, errors.Wrap(ErrStageUnavailable, def.Type)
		}
		if def.Command == "" {
			return nil, errors.Errorf("event stage %s: command is required", def.Info)
		}
		topic := def.Topic
		if topic == "" {
			topic = f.commandTopic
		}
		return NewEventStage(def.Info, f.bus, topic, def.Command, def.CompensateCommand, f.source), nil

	case saga.StageTypeNoop:
		return NewFuncStage(def.Info, nil, nil), nil

	case saga.StageTypeFail:
		return NewFuncStage(def.Info, func(context.Context, uuid.UUID) error {
			return errConfiguredToFail
		}, nil), nil

	default:
		return nil, errors.Wrap(ErrUnknownStageType, def.Type)
	}
}
