package stages

import (
	"context"
	"database/sql"

	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLStage runs a forward statement and, to compensate, a second statement. Both receive
// the transaction id as $1. database/sql has no carrier for trace context, so the statements
// are not linked to the run's trace.
type SQLStage struct {
	base
	db         Execer
	statement  string
	compensate string
}

func NewSQLStage(info string, db Execer, statement, compensate string) *SQLStage {
	return &SQLStage{
		base:       base{info: info},
		db:         db,
		statement:  statement,
		compensate: compensate,
	}
}

func (s *SQLStage) Process(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if err := s.begin(); err != nil {
		return s.Status(), err
	}
	if _, err := s.db.ExecContext(ctx, s.statement, transactionID.String()); err != nil {
		return s.finish(errors.Wrapf(err, "stage %s", s.info))
	}
	return s.finish(nil)
}

func (s *SQLStage) Rollback(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if s.compensate == "" {
		return saga.Completed, nil
	}
	if _, err := s.db.ExecContext(ctx, s.compensate, transactionID.String()); err != nil {
		return saga.Faulted, errors.Wrapf(err, "compensate stage %s", s.info)
	}
	return saga.Completed, nil
}
