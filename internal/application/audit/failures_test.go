package audit

import (
	"context"
	"errors"
	"testing"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/failures"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockFailureLog struct {
	mock.Mock
}

func (m *MockFailureLog) Record(ctx context.Context, f failures.Failure) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFailureLog) Unresolved(ctx context.Context, limit int) ([]failures.Failure, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]failures.Failure), args.Error(1)
}

func (m *MockFailureLog) Resolve(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestFailureRecorder_StageCompensated(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		status     saga.ExecutionStatus
		err        error
		wantRecord bool
		wantReason string
	}{
		{name: "completed compensation", status: saga.Completed},
		{name: "compensation error", status: saga.Faulted, err: errors.New("refund rejected"), wantRecord: true, wantReason: "refund rejected"},
		{name: "compensation left faulted", status: saga.Faulted, wantRecord: true, wantReason: "compensation finished Faulted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := new(MockFailureLog)
			if tt.wantRecord {
				log.On("Record", mock.Anything, failures.Failure{
					TransactionID: id.String(),
					Stage:         "charge",
					Status:        tt.status.String(),
					Reason:        tt.wantReason,
				}).Return(nil).Once()
			}

			NewFailureRecorder(log, logger.NewRecorder()).StageCompensated(context.Background(), id, "charge", tt.status, tt.err, 0)

			log.AssertExpectations(t)
			if !tt.wantRecord {
				log.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestFailureRecorder_LogsRecordError(t *testing.T) {
	log := new(MockFailureLog)
	log.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down"))
	rec := logger.NewRecorder()

	r := NewFailureRecorder(log, rec)
	r.SagaStarted(context.Background(), uuid.New(), saga.Sequential, 1)
	r.StageCompensated(context.Background(), uuid.New(), "charge", saga.Faulted, nil, 0)

	assert.Equal(t, []string{"Failed to record compensation failure"}, rec.Messages("error"))
}
