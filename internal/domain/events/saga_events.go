package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeSagaStarted           = "SagaStarted"
	TypeStageProcessed        = "StageProcessed"
	TypeStageCompensated      = "StageCompensated"
	TypeSagaFinished          = "SagaFinished"
	TypeStageCommandRequested = "StageCommandRequested"
)

type SagaStartedData struct {
	TransactionID string    `json:"transaction_id"`
	Mode          string    `json:"mode"`
	StageCount    int       `json:"stage_count"`
	StartedAt     time.Time `json:"started_at"`
}

type SagaStarted struct {
	*BaseEvent
}

func NewSagaStarted(transactionID, mode string, stageCount int, metadata EventMetadata, sequenceNumber int64) *SagaStarted {
	data := SagaStartedData{
		TransactionID: transactionID,
		Mode:          mode,
		StageCount:    stageCount,
		StartedAt:     time.Now(),
	}

	base := NewBaseEvent(
		uuid.New().String(),
		TypeSagaStarted,
		transactionID,
		AggregateTypeSaga,
		1,
		data,
		metadata,
		sequenceNumber,
	)

	return &SagaStarted{BaseEvent: base}
}

// StageOutcomeData describes one forward or compensating call of a stage
type StageOutcomeData struct {
	TransactionID string `json:"transaction_id"`
	Stage         string `json:"stage"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}

type StageProcessed struct {
	*BaseEvent
}

func NewStageProcessed(transactionID, stage, status string, err error, elapsed time.Duration, metadata EventMetadata, sequenceNumber int64) *StageProcessed {
	base := NewBaseEvent(
		uuid.New().String(),
		TypeStageProcessed,
		transactionID,
		AggregateTypeSaga,
		1,
		newStageOutcome(transactionID, stage, status, err, elapsed),
		metadata,
		sequenceNumber,
	)

	return &StageProcessed{BaseEvent: base}
}

type StageCompensated struct {
	*BaseEvent
}

func NewStageCompensated(transactionID, stage, status string, err error, elapsed time.Duration, metadata EventMetadata, sequenceNumber int64) *StageCompensated {
	base := NewBaseEvent(
		uuid.New().String(),
		TypeStageCompensated,
		transactionID,
		AggregateTypeSaga,
		1,
		newStageOutcome(transactionID, stage, status, err, elapsed),
		metadata,
		sequenceNumber,
	)

	return &StageCompensated{BaseEvent: base}
}

func newStageOutcome(transactionID, stage, status string, err error, elapsed time.Duration) StageOutcomeData {
	data := StageOutcomeData{
		TransactionID: transactionID,
		Stage:         stage,
		Status:        status,
		DurationMs:    elapsed.Milliseconds(),
	}
	if err != nil {
		data.Error = err.Error()
	}
	return data
}

type SagaFinishedData struct {
	TransactionID  string    `json:"transaction_id"`
	Status         string    `json:"status"`
	RollbackStatus string    `json:"rollback_status"`
	FinishedAt     time.Time `json:"finished_at"`
}

type SagaFinished struct {
	*BaseEvent
}

func NewSagaFinished(transactionID, status, rollbackStatus string, metadata EventMetadata, sequenceNumber int64) *SagaFinished {
	data := SagaFinishedData{
		TransactionID:  transactionID,
		Status:         status,
		RollbackStatus: rollbackStatus,
		FinishedAt:     time.Now(),
	}

	base := NewBaseEvent(
		uuid.New().String(),
		TypeSagaFinished,
		transactionID,
		AggregateTypeSaga,
		1,
		data,
		metadata,
		sequenceNumber,
	)

	return &SagaFinished{BaseEvent: base}
}

// StageCommandData asks a remote participant to perform, or undo, a stage's work
type StageCommandData struct {
	TransactionID string    `json:"transaction_id"`
	Stage         string    `json:"stage"`
	Command       string    `json:"command"`
	Compensation  bool      `json:"compensation"`
	RequestedAt   time.Time `json:"requested_at"`
}

type StageCommandRequested struct {
	*BaseEvent
}

func NewStageCommandRequested(transactionID, stage, command string, compensation bool, metadata EventMetadata) *StageCommandRequested {
	data := StageCommandData{
		TransactionID: transactionID,
		Stage:         stage,
		Command:       command,
		Compensation:  compensation,
		RequestedAt:   time.Now(),
	}

	base := NewBaseEvent(
		uuid.New().String(),
		TypeStageCommandRequested,
		transactionID,
		AggregateTypeSaga,
		1,
		data,
		metadata,
		0,
	)

	return &StageCommandRequested{BaseEvent: base}
}
