package audit

import (
	"context"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/failures"

	"github.com/google/uuid"
)

// FailureRecorder stores every stage whose compensation did not complete so it can be repaired by hand
type FailureRecorder struct {
	saga.NopObserver
	log    failures.Log
	logger logger.Logger
}

func NewFailureRecorder(log failures.Log, l logger.Logger) *FailureRecorder {
	return &FailureRecorder{log: log, logger: l}
}

func (r *FailureRecorder) StageCompensated(ctx context.Context, transactionID uuid.UUID, stage string, status saga.ExecutionStatus, err error, _ time.Duration) {
	if err == nil && status == saga.Completed {
		return
	}

	reason := "compensation finished " + status.String()
	if err != nil {
		reason = err.Error()
	}

	f := failures.Failure{
		TransactionID: transactionID.String(),
		Stage:         stage,
		Status:        status.String(),
		Reason:        reason,
	}
	if err := r.log.Record(context.WithoutCancel(ctx), f); err != nil {
		r.logger.Error("Failed to record compensation failure",
			logger.Field{Key: "transaction_id", Value: f.TransactionID},
			logger.Field{Key: "stage", Value: stage},
			logger.Field{Key: "error", Value: err},
		)
	}
}
