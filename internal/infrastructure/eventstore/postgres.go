package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"saga-transaction/internal/domain/events"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

const (
	createEventsTableQuery = `
		CREATE TABLE IF NOT EXISTS saga_events (
			id             BIGSERIAL PRIMARY KEY,
			event_id       UUID NOT NULL UNIQUE,
			aggregate_id   TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			saga_sequence  BIGINT NOT NULL,
			event_type     TEXT NOT NULL,
			event_version  INT NOT NULL,
			event_data     JSONB NOT NULL,
			event_metadata JSONB,
			timestamp      TIMESTAMPTZ NOT NULL,
			CONSTRAINT saga_events_sequence_key UNIQUE (aggregate_id, saga_sequence)
		)
	`

	insertEventQuery = `
		INSERT INTO saga_events (
			event_id, aggregate_id, aggregate_type, saga_sequence, event_type,
			event_version, event_data, event_metadata, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	selectEventsByAggregateQuery = `
		SELECT event_id, aggregate_id, aggregate_type, event_type,
		       event_version, event_data, event_metadata, timestamp, saga_sequence
		FROM saga_events
		WHERE aggregate_id = $1
		ORDER BY saga_sequence ASC
	`
)

type PostgresEventStore struct {
	db *sql.DB
}

// Open connects to Postgres through the pgx driver and verifies the connection
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return db, nil
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// EnsureSchema creates the journal table when missing. Events of one saga are unique and
// ordered by their per-saga sequence number.
func (es *PostgresEventStore) EnsureSchema(ctx context.Context) error {
	if _, err := es.db.ExecContext(ctx, createEventsTableQuery); err != nil {
		return errors.Wrap(err, "failed to create saga_events table")
	}
	return nil
}

func (es *PostgresEventStore) SaveEvent(ctx context.Context, event events.Event) error {
	eventData, err := json.Marshal(event.Data())
	if err != nil {
		return errors.Wrap(err, "failed to marshal event data")
	}

	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return errors.Wrap(err, "failed to marshal event metadata")
	}

	_, err = es.db.ExecContext(ctx, insertEventQuery,
		event.ID(),
		event.AggregateID(),
		event.AggregateType(),
		event.SequenceNumber(),
		event.Type(),
		event.Version(),
		eventData,
		metadata,
		event.Timestamp(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save event %s", event.Type())
	}

	return nil
}

func (es *PostgresEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]events.Event, error) {
	rows, err := es.db.QueryContext(ctx, selectEventsByAggregateQuery, aggregateID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var loadedEvents []events.Event
	for rows.Next() {
		var eventID, aggID, aggType, eventType string
		var version int
		var eventDataJSON, metadataJSON []byte
		var timestamp sql.NullTime
		var sequenceNumber int64

		err := rows.Scan(&eventID, &aggID, &aggType, &eventType, &version, &eventDataJSON, &metadataJSON, &timestamp, &sequenceNumber)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}

		event, err := reconstructEvent(eventType, eventID, aggID, aggType, version, eventDataJSON, metadataJSON, timestamp.Time, sequenceNumber)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to reconstruct event %s", eventID)
		}

		loadedEvents = append(loadedEvents, event)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating events")
	}

	return loadedEvents, nil
}

func reconstructEvent(eventType, eventID, aggID, aggType string, version int, eventDataJSON, metadataJSON []byte, timestamp time.Time, sequenceNumber int64) (events.Event, error) {
	var metadata events.EventMetadata
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal metadata")
		}
	}

	eventData, err := events.DecodeData(eventType, eventDataJSON)
	if err != nil {
		return nil, err
	}

	return events.NewBaseEventWithTimestamp(eventID, eventType, aggID, aggType, version, eventData, metadata, sequenceNumber, timestamp), nil
}

func (es *PostgresEventStore) Close() error {
	return es.db.Close()
}
