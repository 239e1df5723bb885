package saga

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_AllStagesComplete(t *testing.T) {
	o := NewOrchestrator(logger.NewRecorder())

	var stages []*MockStage
	for i := 1; i <= 3; i++ {
		st := new(MockStage)
		st.On("Info").Return(fmt.Sprintf("S%d", i)).Maybe()
		st.On("Status").Return(saga.Completed)
		st.On("Process", mock.Anything, o.TransactionID()).Return(saga.Completed, nil).Once()
		require.NoError(t, o.AddStages(st))
		stages = append(stages, st)
	}

	status, err := o.Process(context.Background(), saga.Sequential)

	require.NoError(t, err)
	assert.Equal(t, saga.Completed, status)
	assert.Equal(t, saga.Completed, o.Status())
	assert.Equal(t, saga.None, o.RollbackStatus())
	for _, st := range stages {
		st.AssertExpectations(t)
		st.AssertNotCalled(t, "Rollback", mock.Anything, mock.Anything)
	}
}

func TestOrchestrator_SequentialFaultStopsAndCompensates(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s2.result = saga.Faulted
	s3 := newFakeStage("S3", log)

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1, s2, s3))

	status, err := o.Process(context.Background(), saga.Sequential)

	require.NoError(t, err)
	assert.Equal(t, saga.Faulted, status)
	assert.Equal(t, saga.Completed, o.RollbackStatus())
	assert.Equal(t, int32(0), s3.processed.Load())
	assert.Equal(t, int32(1), s1.rolledBack.Load())
	assert.Equal(t, int32(0), s2.rolledBack.Load())
	assert.Equal(t, int32(0), s3.rolledBack.Load())
	assert.Equal(t, []string{"process:S1", "process:S2", "rollback:S1"}, log.all())
}

func TestOrchestrator_SequentialCompensatesInReverseOrder(t *testing.T) {
	log := &callLog{}
	cause := errors.New("card declined")
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s3 := newFakeStage("S3", log)
	s4 := newFakeStage("S4", log)
	s4.err = cause

	rec := logger.NewRecorder()
	o := NewOrchestrator(rec)
	require.NoError(t, o.AddStages(s1, s2, s3, s4))

	status, err := o.Process(context.Background(), saga.Sequential)

	assert.Equal(t, saga.Faulted, status)
	assert.ErrorIs(t, err, saga.ErrStageExecutionFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"S3", "S2", "S1"}, log.with("rollback:"))
	assert.Equal(t, saga.Completed, o.RollbackStatus())
	assert.Contains(t, rec.Messages("error"), "Stage processing failed")
}

func TestOrchestrator_ParallelSingleFaultCompensatesCommitted(t *testing.T) {
	log := &callLog{}
	var stages []*fakeStage
	for i := 0; i < 10; i++ {
		st := newFakeStage(fmt.Sprintf("S%d", i), log)
		st.delay = time.Duration(i%3) * time.Millisecond
		if i == 4 {
			st.result = saga.Faulted
		}
		stages = append(stages, st)
	}

	o := NewOrchestrator(logger.NewRecorder())
	for _, st := range stages {
		require.NoError(t, o.AddStages(st))
	}

	status, err := o.Process(context.Background(), saga.Parallel)

	require.NoError(t, err)
	assert.Equal(t, saga.Faulted, status)
	assert.Equal(t, saga.Completed, o.RollbackStatus())
	for _, st := range stages {
		assert.NotEqual(t, saga.InProcess, st.Status(), st.info)
		if st.Status() == saga.Completed {
			assert.Equal(t, int32(1), st.rolledBack.Load(), st.info)
		} else {
			assert.Equal(t, int32(0), st.rolledBack.Load(), st.info)
		}
	}
	assert.Equal(t, int32(0), stages[4].rolledBack.Load())
}

func TestOrchestrator_ParallelExecutionFailureIsIsolated(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s2.err = errors.New("timeout")

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1, s2))

	status, err := o.Process(context.Background(), saga.Parallel)

	require.NoError(t, err)
	assert.Equal(t, saga.Faulted, status)
	assert.Equal(t, saga.Faulted, s2.Status())
}

func TestOrchestrator_PassesTransactionID(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	o := NewOrchestrator(nil)
	require.NoError(t, o.AddStages(s1))

	_, err := o.Process(context.Background(), saga.Sequential)

	require.NoError(t, err)
	assert.Equal(t, o.TransactionID(), s1.lastTxID.Load())
}

func TestOrchestrator_ProcessTwiceIsInvalidUsage(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1))

	_, err := o.Process(context.Background(), saga.Sequential)
	require.NoError(t, err)

	status, err := o.Process(context.Background(), saga.Parallel)

	assert.ErrorIs(t, err, saga.ErrInvalidUsage)
	assert.Equal(t, saga.Completed, status)
	assert.Equal(t, saga.Sequential, o.Mode())
	assert.Equal(t, int32(1), s1.processed.Load())
}

func TestOrchestrator_ConcurrentProcessRunsOnce(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s1.delay = 5 * time.Millisecond
	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1))

	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := o.Process(context.Background(), saga.Parallel)
			errs <- err
		}()
	}

	invalid := 0
	for i := 0; i < 5; i++ {
		if err := <-errs; errors.Is(err, saga.ErrInvalidUsage) {
			invalid++
		}
	}
	assert.Equal(t, 4, invalid)
	assert.Equal(t, int32(1), s1.processed.Load())
}

func TestOrchestrator_AddStages(t *testing.T) {
	log := &callLog{}

	t.Run("after processing starts", func(t *testing.T) {
		o := NewOrchestrator(logger.NewRecorder())
		require.NoError(t, o.AddStages(newFakeStage("S1", log)))
		_, err := o.Process(context.Background(), saga.Sequential)
		require.NoError(t, err)

		err = o.AddStages(newFakeStage("late", log))

		assert.ErrorIs(t, err, saga.ErrInvalidUsage)
		assert.Len(t, o.Stages(), 1)
	})

	t.Run("nil stage", func(t *testing.T) {
		o := NewOrchestrator(logger.NewRecorder())

		err := o.AddStages(newFakeStage("S1", log), nil)

		assert.ErrorIs(t, err, saga.ErrInvalidUsage)
		assert.Empty(t, o.Stages())
	})

	t.Run("keeps insertion order", func(t *testing.T) {
		o := NewOrchestrator(logger.NewRecorder())
		require.NoError(t, o.AddStages(newFakeStage("A", log), newFakeStage("B", log)))
		require.NoError(t, o.AddStages(newFakeStage("C", log)))

		var infos []string
		for _, st := range o.Stages() {
			infos = append(infos, st.Info())
		}
		assert.Equal(t, []string{"A", "B", "C"}, infos)
	})
}

func TestOrchestrator_UnknownModeIsInvalidUsage(t *testing.T) {
	o := NewOrchestrator(logger.NewRecorder())

	status, err := o.Process(context.Background(), saga.ProcessMode(9))

	assert.ErrorIs(t, err, saga.ErrInvalidUsage)
	assert.Equal(t, saga.None, status)

	// still usable
	_, err = o.Process(context.Background(), saga.Sequential)
	assert.NoError(t, err)
}

func TestOrchestrator_EmptySagaCompletes(t *testing.T) {
	o := NewOrchestrator(logger.NewRecorder())

	status, err := o.Process(context.Background(), saga.Parallel)

	require.NoError(t, err)
	assert.Equal(t, saga.Completed, status)
	assert.Equal(t, saga.None, o.RollbackStatus())
}

func TestOrchestrator_ContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		mode  saga.ProcessMode
		setup func(*fakeStage)
	}{
		{
			name:  "returned value differs from reported status",
			mode:  saga.Sequential,
			setup: func(s *fakeStage) { s.returns = statusPtr(saga.Faulted) },
		},
		{
			name: "parallel mismatch",
			mode: saga.Parallel,
			setup: func(s *fakeStage) {
				s.returns = statusPtr(saga.Faulted)
				s.delay = 10 * time.Millisecond
			},
		},
		{
			name: "returned None",
			mode: saga.Sequential,
			setup: func(s *fakeStage) {
				s.returns = statusPtr(saga.None)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			ok := newFakeStage("ok", log)
			bad := newFakeStage("bad", log)
			tt.setup(bad)

			rec := logger.NewRecorder()
			o := NewOrchestrator(rec)
			require.NoError(t, o.AddStages(ok, bad))

			status, err := o.Process(context.Background(), tt.mode)

			assert.ErrorIs(t, err, saga.ErrStageContractViolation)
			assert.Equal(t, saga.Faulted, status)
			assert.Equal(t, saga.Completed, o.RollbackStatus())
			assert.Equal(t, int32(1), ok.rolledBack.Load())
			// the violator still reports Completed, so it is compensated too
			assert.Equal(t, int32(1), bad.rolledBack.Load())
			assert.Contains(t, rec.Messages("error"), "Stage violated its status contract")
		})
	}
}

func TestOrchestrator_ParallelJoinsContractViolations(t *testing.T) {
	log := &callLog{}
	a := newFakeStage("A", log)
	a.returns = statusPtr(saga.Faulted)
	a.delay = 10 * time.Millisecond
	b := newFakeStage("B", log)
	b.returns = statusPtr(saga.Faulted)
	b.delay = 10 * time.Millisecond

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(a, b))

	_, err := o.Process(context.Background(), saga.Parallel)

	require.ErrorIs(t, err, saga.ErrStageContractViolation)
	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 2)
}

func TestOrchestrator_PanickingStageIsExecutionFailure(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s2.panics = true

	o := NewOrchestrator(logger.NewRecorder(), WithStragglerWait(5*time.Millisecond, 20))
	require.NoError(t, o.AddStages(s1, s2))

	status, err := o.Process(context.Background(), saga.Sequential)

	assert.Equal(t, saga.Faulted, status)
	assert.ErrorIs(t, err, saga.ErrStageExecutionFailure)
	assert.Contains(t, err.Error(), "stage panicked: boom")
	assert.Equal(t, int32(1), s1.rolledBack.Load())
	// the panicking stage never left InProcess
	assert.Equal(t, saga.Faulted, o.RollbackStatus())
}

func TestOrchestrator_MaxParallelism(t *testing.T) {
	log := &callLog{}
	var inFlight, peak atomic.Int32

	o := NewOrchestrator(logger.NewRecorder(), WithMaxParallelism(2))
	for i := 0; i < 6; i++ {
		st := newFakeStage(fmt.Sprintf("S%d", i), log)
		st.delay = 5 * time.Millisecond
		st.inFlight = &inFlight
		st.peak = &peak
		require.NoError(t, o.AddStages(st))
	}

	status, err := o.Process(context.Background(), saga.Parallel)

	require.NoError(t, err)
	assert.Equal(t, saga.Completed, status)
	assert.Len(t, log.with("process:"), 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestOrchestrator_NotifiesObserver(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("S1", log)
	s2 := newFakeStage("S2", log)
	s2.result = saga.Faulted
	obs := newObserverRecorder()

	o := NewOrchestrator(logger.NewRecorder(), WithObserver(obs))
	require.NoError(t, o.AddStages(s1, s2))

	_, err := o.Process(context.Background(), saga.Sequential)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.started)
	assert.Equal(t, map[string]saga.ExecutionStatus{"S1": saga.Completed, "S2": saga.Faulted}, obs.processed)
	assert.Equal(t, map[string]saga.ExecutionStatus{"S1": saga.Completed}, obs.compensated)
	assert.Equal(t, 1, obs.finished)
	assert.Equal(t, saga.Faulted, obs.status)
	assert.Equal(t, saga.Completed, obs.rollbackStatus)
}

func TestOrchestrator_Snapshot(t *testing.T) {
	log := &callLog{}
	s1 := newFakeStage("reserve", log)
	s2 := newFakeStage("charge", log)
	s2.result = saga.Faulted

	o := NewOrchestrator(logger.NewRecorder())
	require.NoError(t, o.AddStages(s1, s2))

	before := o.Snapshot()
	assert.Equal(t, saga.None, before.Status)
	assert.Equal(t, o.TransactionID().String(), before.TransactionID)

	_, err := o.Process(context.Background(), saga.Sequential)
	require.NoError(t, err)

	after := o.Snapshot()
	assert.Equal(t, saga.Sequential, after.Mode)
	assert.Equal(t, saga.Faulted, after.Status)
	assert.Equal(t, saga.Completed, after.RollbackStatus)
	assert.Equal(t, []StageSnapshot{
		{Info: "reserve", Status: saga.Completed},
		{Info: "charge", Status: saga.Faulted},
	}, after.Stages)
}

func TestWithObserver_Accumulates(t *testing.T) {
	a, b := newObserverRecorder(), newObserverRecorder()
	opts := DefaultOptions()

	WithObserver(a)(&opts)
	assert.Same(t, a, opts.Observer)

	WithObserver(b)(&opts)
	WithObserver(nil)(&opts)
	assert.Equal(t, saga.Observers{a, b}, opts.Observer)
}
