package saga

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrorKind classifies saga failures
type ErrorKind string

const (
	KindInvalidUsage        ErrorKind = "INVALID_USAGE"
	KindContractViolation   ErrorKind = "STAGE_CONTRACT_VIOLATION"
	KindExecutionFailure    ErrorKind = "STAGE_EXECUTION_FAILURE"
	KindCompensationFailure ErrorKind = "COMPENSATION_FAILURE"
	KindCancelled           ErrorKind = "CANCELLED"
)

// Error is returned by the orchestrator. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind          ErrorKind
	Message       string
	TransactionID string
	Stage         string
	Cause         error
}

func (e *Error) Error() string {
	var base string
	switch {
	case e.TransactionID != "" && e.Stage != "":
		base = fmt.Sprintf("%s: %s (transaction=%s, stage=%s)", e.Kind, e.Message, e.TransactionID, e.Stage)
	case e.TransactionID != "":
		base = fmt.Sprintf("%s: %s (transaction=%s)", e.Kind, e.Message, e.TransactionID)
	default:
		base = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is; never returned directly.
var (
	ErrInvalidUsage           = &Error{Kind: KindInvalidUsage, Message: "invalid usage"}
	ErrStageContractViolation = &Error{Kind: KindContractViolation, Message: "stage contract violation"}
	ErrStageExecutionFailure  = &Error{Kind: KindExecutionFailure, Message: "stage execution failed"}
	ErrCompensationFailure    = &Error{Kind: KindCompensationFailure, Message: "compensation failed"}
	ErrCancelled              = &Error{Kind: KindCancelled, Message: "saga cancelled"}
)

func NewInvalidUsageError(transactionID, message string) *Error {
	return &Error{
		Kind:          KindInvalidUsage,
		Message:       message,
		TransactionID: transactionID,
	}
}

func NewContractViolationError(transactionID, stage, message string) *Error {
	return &Error{
		Kind:          KindContractViolation,
		Message:       message,
		TransactionID: transactionID,
		Stage:         stage,
	}
}

func NewExecutionFailureError(transactionID, stage string, cause error) *Error {
	return &Error{
		Kind:          KindExecutionFailure,
		Message:       "stage execution failed",
		TransactionID: transactionID,
		Stage:         stage,
		Cause:         cause,
	}
}

func NewCompensationFailureError(transactionID, stage string, cause error) *Error {
	return &Error{
		Kind:          KindCompensationFailure,
		Message:       "compensation failed",
		TransactionID: transactionID,
		Stage:         stage,
		Cause:         cause,
	}
}

func NewCancelledError(transactionID string, cause error) *Error {
	return &Error{
		Kind:          KindCancelled,
		Message:       "saga cancelled",
		TransactionID: transactionID,
		Cause:         cause,
	}
}
