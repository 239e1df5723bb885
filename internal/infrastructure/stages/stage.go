package stages

import (
	"saga-transaction/internal/domain/saga"
)

// base carries the name and status every concrete stage shares
type base struct {
	saga.StageStatus
	info string
}

func (b *base) Info() string {
	return b.info
}

// begin moves the stage to InProcess. A stage already past None cannot run again.
func (b *base) begin() error {
	return b.SetStatus(saga.InProcess)
}

// finish settles the forward call and returns the status the stage now reports
func (b *base) finish(err error) (saga.ExecutionStatus, error) {
	if err != nil {
		_ = b.SetStatus(saga.Faulted)
		return b.Status(), err
	}
	_ = b.SetStatus(saga.Completed)
	return b.Status(), nil
}
