package saga

import (
	"saga-transaction/internal/domain/saga"
)

// Snapshot is a point-in-time, read-only view of an orchestrator
type Snapshot struct {
	TransactionID  string               `json:"transaction_id"`
	Mode           saga.ProcessMode     `json:"mode"`
	Status         saga.ExecutionStatus `json:"status"`
	RollbackStatus saga.ExecutionStatus `json:"rollback_status"`
	Stages         []StageSnapshot      `json:"stages"`
}

type StageSnapshot struct {
	Info   string               `json:"info"`
	Status saga.ExecutionStatus `json:"status"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	stages := o.Stages()
	s := Snapshot{
		TransactionID:  o.transactionID.String(),
		Mode:           o.Mode(),
		Status:         o.Status(),
		RollbackStatus: o.RollbackStatus(),
		Stages:         make([]StageSnapshot, 0, len(stages)),
	}
	for _, stage := range stages {
		s.Stages = append(s.Stages, StageSnapshot{Info: stage.Info(), Status: stage.Status()})
	}
	return s
}
