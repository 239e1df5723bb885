package failures

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	createFailuresTableQuery = `
		CREATE TABLE IF NOT EXISTS compensation_failures (
			failure_id     UUID PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			stage          TEXT NOT NULL,
			status         TEXT NOT NULL,
			reason         TEXT NOT NULL,
			occurred_at    TIMESTAMPTZ NOT NULL,
			resolved       BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at    TIMESTAMPTZ
		)
	`

	insertFailureQuery = `
		INSERT INTO compensation_failures (
			failure_id, transaction_id, stage, status, reason, occurred_at, resolved
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`

	selectUnresolvedQuery = `
		SELECT failure_id, transaction_id, stage, status, reason, occurred_at, resolved
		FROM compensation_failures
		WHERE resolved = FALSE
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	resolveFailureQuery = `
		UPDATE compensation_failures
		SET resolved = TRUE, resolved_at = NOW()
		WHERE failure_id = $1 AND resolved = FALSE
	`
)

var ErrFailureNotFound = errors.New("compensation failure not found or already resolved")

// Failure is a stage whose compensation did not complete and needs manual repair
type Failure struct {
	ID            uuid.UUID `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Stage         string    `json:"stage"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
	Resolved      bool      `json:"resolved"`
}

type Log interface {
	Record(ctx context.Context, f Failure) error
	Unresolved(ctx context.Context, limit int) ([]Failure, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createFailuresTableQuery); err != nil {
		return errors.Wrap(err, "failed to create compensation_failures table")
	}
	return nil
}

// Record stores f, assigning an id and timestamp when they are zero
func (l *PostgresLog) Record(ctx context.Context, f Failure) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, insertFailureQuery, f.ID, f.TransactionID, f.Stage, f.Status, f.Reason, f.OccurredAt)
	if err != nil {
		return errors.Wrapf(err, "failed to record compensation failure of stage %s", f.Stage)
	}
	return nil
}

// Unresolved returns up to limit open failures, newest first
func (l *PostgresLog) Unresolved(ctx context.Context, limit int) ([]Failure, error) {
	rows, err := l.db.QueryContext(ctx, selectUnresolvedQuery, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unresolved failures")
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.TransactionID, &f.Stage, &f.Status, &f.Reason, &f.OccurredAt, &f.Resolved); err != nil {
			return nil, errors.Wrap(err, "failed to scan failure")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate failures")
	}
	return out, nil
}

func (l *PostgresLog) Resolve(ctx context.Context, id uuid.UUID) error {
	result, err := l.db.ExecContext(ctx, resolveFailureQuery, id)
	if err != nil {
		return errors.Wrap(err, "failed to resolve failure")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.Wrap(ErrFailureNotFound, id.String())
	}
	return nil
}
