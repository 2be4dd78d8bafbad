package types

import (
	"time"
)

// RunStatus is the lifecycle state of one submitted trip request.
type RunStatus string

const (
	// RunStatusPending means the run is accepted but not yet dispatching.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning means the dispatcher is walking the task graph.
	RunStatusRunning RunStatus = "running"
	// RunStatusPendingApproval means an unresolved conflict awaits a human
	// decision; only the itinerary assembly is blocked.
	RunStatusPendingApproval RunStatus = "pending_approval"
	// RunStatusCompleted means the itinerary task succeeded.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed means a required task chain or approval failed.
	RunStatusFailed RunStatus = "failed"
	// RunStatusAborted means the run was stopped externally.
	RunStatusAborted RunStatus = "aborted"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// Failure reasons reported in RunState.Reason. Status always carries the
// most specific terminal cause.
const (
	ReasonHumanApprovalTimeout = "HumanApprovalTimeout"
	ReasonApprovalRejected     = "ApprovalRejected"
	ReasonConflictUnresolved   = "ConflictUnresolved"
	ReasonTaskChainFailed      = "TaskChainFailed"
	ReasonAborted              = "Aborted"
)

// RunState is the externally visible snapshot of a run.
type RunState struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
	// Reason is set when the run ends without completing.
	Reason string `json:"reason,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	// Tasks maps task id to its current state.
	Tasks map[string]TaskState `json:"tasks,omitempty"`

	Conflicts []Conflict         `json:"conflicts,omitempty"`
	Approvals []*ApprovalRequest `json:"approvals,omitempty"`

	// Itinerary is present once the run completes.
	Itinerary *Itinerary `json:"itinerary,omitempty"`
}

// EventType classifies orchestrator events for observability consumers.
type EventType string

const (
	// EventTaskStateChanged fires on every task transition.
	EventTaskStateChanged EventType = "task_state_changed"
	// EventConflictDetected fires when the resolver surfaces a conflict.
	EventConflictDetected EventType = "conflict_detected"
	// EventConflictResolved fires when a conflict is auto-resolved.
	EventConflictResolved EventType = "conflict_resolved"
	// EventApprovalRequested fires when a conflict escalates.
	EventApprovalRequested EventType = "approval_requested"
	// EventApprovalDecided fires when a decision is applied or expires.
	EventApprovalDecided EventType = "approval_decided"
	// EventRunStateChanged fires on run status transitions.
	EventRunStateChanged EventType = "run_state_changed"
)

// Event is one observability record emitted by the orchestrator.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	TaskID    string    `json:"task_id,omitempty"`
	TaskState TaskState `json:"task_state,omitempty"`

	Conflict  *Conflict        `json:"conflict,omitempty"`
	Approval  *ApprovalRequest `json:"approval,omitempty"`
	RunStatus RunStatus        `json:"run_status,omitempty"`
	Detail    string           `json:"detail,omitempty"`
}
