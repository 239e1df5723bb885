package eventbus

import (
	"encoding/json"
	"time"

	"saga-transaction/internal/domain/events"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)

type envelope struct {
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	AggregateID    string               `json:"aggregate_id"`
	AggregateType  string               `json:"aggregate_type"`
	Version        int                  `json:"version"`
	Data           json.RawMessage      `json:"data"`
	Metadata       events.EventMetadata `json:"metadata"`
	Timestamp      time.Time            `json:"timestamp"`
	SequenceNumber int64                `json:"sequence_number"`
}

// encodeMessage keys the message by aggregate id so one saga's events share a partition
func encodeMessage(event events.Event) (kafka.Message, error) {
	data, err := json.Marshal(event.Data())
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "failed to marshal event data")
	}

	value, err := json.Marshal(envelope{
		ID:             event.ID(),
		Type:           event.Type(),
		AggregateID:    event.AggregateID(),
		AggregateType:  event.AggregateType(),
		Version:        event.Version(),
		Data:           data,
		Metadata:       event.Metadata(),
		Timestamp:      event.Timestamp(),
		SequenceNumber: event.SequenceNumber(),
	})
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "failed to marshal event")
	}

	return kafka.Message{
		Key:   []byte(event.AggregateID()),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type())},
			{Key: headerEventID, Value: []byte(event.ID())},
		},
		Time: event.Timestamp(),
	}, nil
}

func decodeMessage(msg kafka.Message) (events.Event, error) {
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event")
	}

	data, err := events.DecodeData(env.Type, env.Data)
	if err != nil {
		return nil, err
	}

	return events.NewBaseEventWithTimestamp(
		env.ID,
		env.Type,
		env.AggregateID,
		env.AggregateType,
		env.Version,
		data,
		env.Metadata,
		env.SequenceNumber,
		env.Timestamp,
	), nil
}
