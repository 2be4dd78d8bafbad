package types

import (
	"fmt"
	"time"
)

// InvalidRequestError rejects malformed input before graph construction.
// It is never retried.
type InvalidRequestError struct {
	Field   string // Field that failed validation, if known
	Message string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request: field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// DuplicateWorkerError reports a registration with an id already present.
type DuplicateWorkerError struct {
	WorkerID string
}

// Error implements the error interface.
func (e *DuplicateWorkerError) Error() string {
	return fmt.Sprintf("worker already registered: %s", e.WorkerID)
}

// NoWorkerAvailableError reports that no healthy worker serves a capability.
type NoWorkerAvailableError struct {
	Capability Capability
}

// Error implements the error interface.
func (e *NoWorkerAvailableError) Error() string {
	return fmt.Sprintf("no healthy worker available for capability: %s", e.Capability)
}

// TaskTimeoutError reports a dispatched call exceeding its per-task timeout.
// It follows the same retry and cancellation path as an execution failure.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

// TaskExecutionError wraps an application-level failure returned by a worker.
type TaskExecutionError struct {
	TaskID string
	Cause  error
}

// Error implements the error interface.
func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TaskExecutionError) Unwrap() error {
	return e.Cause
}

// TransportError reports a connection-level failure reaching a worker,
// distinguishable from application errors returned by the worker itself.
type TransportError struct {
	WorkerID string
	Cause    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure reaching worker %s: %v", e.WorkerID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ConflictUnresolvedError surfaces a conflict that automatic resolution
// could not clear. It is handed to the escalation gate, never retried.
type ConflictUnresolvedError struct {
	Kind    ConflictKind
	TaskIDs []string
}

// Error implements the error interface.
func (e *ConflictUnresolvedError) Error() string {
	return fmt.Sprintf("unresolved %s conflict involving tasks %v", e.Kind, e.TaskIDs)
}
