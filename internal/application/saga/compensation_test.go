package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompensation_FailureDoesNotStopSweep(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s2.rollbackErr = errors.New("ledger unavailable")
	s3 := newFakeStage("S3", log)
	s4 := newFakeStage("S4", log)
	s4.err = errors.New("declined")

	rec := logger.NewRecorder()
	o := NewOrchestrator(rec)
	require.NoError(t, o.AddStages(s1, s2, s3, s4))

	status, err := o.Process(context.Background(), saga.Sequential)

	assert.Equal(t, saga.Faulted, status)
	assert.ErrorIs(t, err, saga.ErrStageExecutionFailure)
	assert.NotErrorIs(t, err, saga.ErrCompensationFailure)
	assert.Equal(t, []string{"S3", "S2", "S1"}, log.with("rollback:"))
	assert.Equal(t, saga.Faulted, o.RollbackStatus())

	failures := rec.ByLevel("error")
	var found bool
	for _, e := range failures {
		if e.Message == "Stage compensation failed" {
			found = true
			assert.Equal(t, "S2", e.Fields["stage"])
			assert.ErrorIs(t, e.Fields["error"].(error), saga.ErrCompensationFailure)
		}
	}
	assert.True(t, found)
}

func TestCompensation_NonCompletedResultFaultsRollback(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s1.rollbackResult = saga.Faulted
	s2 := newFakeStage("S2", log)
	s2.result = saga.Faulted

	rec := logger.NewRecorder()
	o := NewOrchestrator(rec)
	require.NoError(t, o.AddStages(s1, s2))

	_, err := o.Process(context.Background(), saga.Sequential)

	require.NoError(t, err)
	assert.Equal(t, saga.Faulted, o.RollbackStatus())
	assert.Equal(t, int32(1), s1.rolledBack.Load())
	assert.Contains(t, rec.Messages("error"), "Stage compensation did not complete")
}

func TestCompensation_ParallelSweepReachesEveryCommittedStage(t *testing.T) {
	log := &callLog{}
	var committed []*fakeStage
	for _, info := range []string{"A", "B", "C"} {
		st := newFakeStage(info, log)
		committed = append(committed, st)
	}
	committed[1].rollbackErr = errors.New("refund rejected")

	failing := newFakeStage("D", log)
	failing.result = saga.Faulted
	failing.delay = 10 * time.Millisecond

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(committed[0], committed[1], committed[2], failing))

	status, err := o.Process(context.Background(), saga.Parallel)

	require.NoError(t, err)
	assert.Equal(t, saga.Faulted, status)
	assert.Equal(t, saga.Faulted, o.RollbackStatus())
	for _, st := range committed {
		assert.Equal(t, int32(1), st.rolledBack.Load(), st.info)
	}
	assert.Equal(t, int32(0), failing.rolledBack.Load())
}

func TestCompensation_WaitsForStraggler(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	slow := newFakeStage("slow", log)
	slow.settleAfter = 20 * time.Millisecond

	o := NewOrchestrator(logger.NewRecorder(), WithStragglerWait(5*time.Millisecond, 40))
	require.NoError(t, o.AddStages(s1, slow))

	status, err := o.Process(context.Background(), saga.Sequential)

	assert.Equal(t, saga.Faulted, status)
	assert.ErrorIs(t, err, saga.ErrStageContractViolation)
	assert.Equal(t, []string{"slow", "S1"}, log.with("rollback:"))
	assert.Equal(t, saga.Completed, o.RollbackStatus())
}

func TestCompensation_StageLeftInProcess(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	stuck := newFakeStage("stuck", log)
	stuck.settleAfter = time.Second

	rec := logger.NewRecorder()
	o := NewOrchestrator(rec, WithStragglerWait(time.Millisecond, 3))
	require.NoError(t, o.AddStages(s1, stuck))

	_, err := o.Process(context.Background(), saga.Sequential)

	assert.ErrorIs(t, err, saga.ErrStageContractViolation)
	assert.Equal(t, int32(1), s1.rolledBack.Load())
	assert.Equal(t, int32(0), stuck.rolledBack.Load())
	assert.Equal(t, saga.Faulted, o.RollbackStatus())
	assert.Contains(t, rec.Messages("warn"), "Stages still in process before compensation")
	assert.Contains(t, rec.Messages("error"), "Stage is still in process and cannot be compensated")
}

func TestCompensation_Cancellation(t *testing.T) {
	tests := []struct {
		name               string
		compensateOnCancel bool
		wantRollback       saga.ExecutionStatus
		wantRolledBack     int32
	}{
		{name: "compensates on a detached context", compensateOnCancel: true, wantRollback: saga.Completed, wantRolledBack: 1},
		{name: "skips compensation", compensateOnCancel: false, wantRollback: saga.None, wantRolledBack: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			log := &callLog{}
			s1 := newFakeStage("S1", log)
			s1.before = cancel
			s2 := newFakeStage("S2", log)

			rec := logger.NewRecorder()
			o := NewOrchestrator(rec, WithCompensateOnCancel(tt.compensateOnCancel))
			require.NoError(t, o.AddStages(s1, s2))

			status, err := o.Process(ctx, saga.Sequential)

			assert.Equal(t, saga.Faulted, status)
			assert.ErrorIs(t, err, saga.ErrCancelled)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, int32(0), s2.processed.Load())
			assert.Equal(t, tt.wantRolledBack, s1.rolledBack.Load())
			assert.Equal(t, tt.wantRollback, o.RollbackStatus())
			if tt.compensateOnCancel {
				assert.NoError(t, s1.rollbackCtxErr)
			} else {
				assert.Contains(t, rec.Messages("warn"), "Compensation skipped for cancelled saga")
			}
		})
	}
}

func TestCompensation_ParallelCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1, s2))

	status, err := o.Process(ctx, saga.Parallel)

	assert.Equal(t, saga.Faulted, status)
	assert.ErrorIs(t, err, saga.ErrCancelled)
	assert.Empty(t, log.all())
	assert.Equal(t, saga.Completed, o.RollbackStatus())
}

func TestCompensation_RunsOnce(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s2.result = saga.Faulted

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1, s2))
	_, err := o.Process(context.Background(), saga.Sequential)
	require.NoError(t, err)

	o.rollback(context.Background(), o.Stages(), saga.Sequential)

	assert.Equal(t, int32(1), s1.rolledBack.Load())
	assert.Equal(t, saga.Completed, o.RollbackStatus())
}

func TestCompensation_NotTriggeredForCompletedSaga(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1))
	_, err := o.Process(context.Background(), saga.Sequential)
	require.NoError(t, err)

	o.rollback(context.Background(), o.Stages(), saga.Sequential)

	assert.Equal(t, int32(0), s1.rolledBack.Load())
	assert.Equal(t, saga.None, o.RollbackStatus())
}
