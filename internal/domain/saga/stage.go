package saga

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Stage is one unit of forward work with a compensating action.
//
// Process must set the stage's own status before returning and return exactly that value,
// which must be Completed or Faulted. Rollback undoes a completed Process; any result other
// than Completed, or an error, counts as a failed compensation and is never retried.
type Stage interface {
	Info() string
	Status() ExecutionStatus
	Process(ctx context.Context, transactionID uuid.UUID) (ExecutionStatus, error)
	Rollback(ctx context.Context, transactionID uuid.UUID) (ExecutionStatus, error)
}

// StageStatus is a concurrency-safe status holder for Stage implementations to embed.
// Transitions follow ExecutionStatus.CanTransitionTo.
type StageStatus struct {
	mu     sync.RWMutex
	status ExecutionStatus
}

func (s *StageStatus) Status() ExecutionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus moves the holder to target, or returns ErrInvalidTransition leaving it unchanged
func (s *StageStatus) SetStatus(target ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	s.status = target
	return nil
}
