package saga

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockStage struct {
	mock.Mock
}

func (m *MockStage) Info() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockStage) Status() saga.ExecutionStatus {
	args := m.Called()
	return args.Get(0).(saga.ExecutionStatus)
}

func (m *MockStage) Process(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(saga.ExecutionStatus), args.Error(1)
}

func (m *MockStage) Rollback(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(saga.ExecutionStatus), args.Error(1)
}

// callLog records stage calls across goroutines in arrival order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func (l *callLog) with(prefix string) []string {
	var out []string
	for _, c := range l.all() {
		if len(c) > len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c[len(prefix):])
		}
	}
	return out
}

// fakeStage settles to result, or fails with err, after an optional delay
type fakeStage struct {
	saga.StageStatus

	info   string
	result saga.ExecutionStatus
	err    error
	delay  time.Duration
	// returns overrides the value handed back from Process
	returns *saga.ExecutionStatus
	// settleAfter leaves the stage InProcess on return and settles it in the background
	settleAfter time.Duration
	panics      bool
	// before runs right after the stage enters InProcess
	before func()
	// inFlight and peak, when set, track concurrent Process calls across stages
	inFlight *atomic.Int32
	peak     *atomic.Int32

	rollbackResult saga.ExecutionStatus
	rollbackErr    error

	log            *callLog
	rollbackCtxErr error
	processed      atomic.Int32
	rolledBack     atomic.Int32
	lastTxID       atomic.Value
}

func newFakeStage(info string, log *callLog) *fakeStage {
	return &fakeStage{
		info:           info,
		result:         saga.Completed,
		rollbackResult: saga.Completed,
		log:            log,
	}
}

func (s *fakeStage) Info() string {
	return s.info
}

func (s *fakeStage) Process(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	s.processed.Add(1)
	s.lastTxID.Store(transactionID)
	s.log.add("process:" + s.info)
	_ = s.SetStatus(saga.InProcess)

	if s.before != nil {
		s.before()
	}
	if s.inFlight != nil {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		_ = s.SetStatus(saga.Faulted)
		return saga.Faulted, s.err
	}
	if s.settleAfter > 0 {
		go func() {
			time.Sleep(s.settleAfter)
			_ = s.SetStatus(s.result)
		}()
		return saga.InProcess, nil
	}

	_ = s.SetStatus(s.result)
	if s.returns != nil {
		return *s.returns, nil
	}
	return s.result, nil
}

func (s *fakeStage) Rollback(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	s.rolledBack.Add(1)
	s.rollbackCtxErr = ctx.Err()
	s.log.add("rollback:" + s.info)
	if s.rollbackErr != nil {
		return saga.Faulted, s.rollbackErr
	}
	return s.rollbackResult, nil
}

// observerRecorder counts lifecycle notifications
type observerRecorder struct {
	mu             sync.Mutex
	started        int
	processed      map[string]saga.ExecutionStatus
	compensated    map[string]saga.ExecutionStatus
	finished       int
	status         saga.ExecutionStatus
	rollbackStatus saga.ExecutionStatus
}

func newObserverRecorder() *observerRecorder {
	return &observerRecorder{
		processed:   map[string]saga.ExecutionStatus{},
		compensated: map[string]saga.ExecutionStatus{},
	}
}

func (r *observerRecorder) SagaStarted(context.Context, uuid.UUID, saga.ProcessMode, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *observerRecorder) StageProcessed(_ context.Context, _ uuid.UUID, stage string, status saga.ExecutionStatus, _ error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[stage] = status
}

func (r *observerRecorder) StageCompensated(_ context.Context, _ uuid.UUID, stage string, status saga.ExecutionStatus, _ error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensated[stage] = status
}

func (r *observerRecorder) SagaFinished(_ context.Context, _ uuid.UUID, status, rollbackStatus saga.ExecutionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	r.status = status
	r.rollbackStatus = rollbackStatus
}

func statusPtr(s saga.ExecutionStatus) *saga.ExecutionStatus {
	return &s
}
