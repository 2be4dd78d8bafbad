package types

import (
	"time"
)

// ConflictKind classifies a detected violation among aggregated results.
type ConflictKind string

const (
	// ConflictScheduleOverlap means two bookings' time windows intersect
	// when they should not.
	ConflictScheduleOverlap ConflictKind = "schedule_overlap"
	// ConflictBudgetExceeded means selected costs exceed the budget ceiling.
	ConflictBudgetExceeded ConflictKind = "budget_exceeded"
	// ConflictResourceUnavailable means a selected option is not available.
	ConflictResourceUnavailable ConflictKind = "resource_unavailable"
	// ConflictRequirementContradiction means accepted options violate a
	// stated hard preference.
	ConflictRequirementContradiction ConflictKind = "requirement_contradiction"
)

// AutoResolvable reports whether the resolver may attempt automatic
// resolution for this kind. Unavailability and contradictions always
// escalate.
func (k ConflictKind) AutoResolvable() bool {
	return k == ConflictScheduleOverlap || k == ConflictBudgetExceeded
}

// Conflict records a violated predicate over the result set. Conflicts are
// derived from results; they are never persisted on their own.
type Conflict struct {
	ID      string       `json:"id"`
	Kind    ConflictKind `json:"kind"`
	TaskIDs []string     `json:"task_ids"`
	// Detail states the predicate that became true, human-readable.
	Detail     string    `json:"detail"`
	DetectedAt time.Time `json:"detected_at"`
}

// Resolution is one candidate adjustment that would clear a conflict.
type Resolution struct {
	Description string `json:"description"`
	// TaskID and CandidateIndex identify the substitution to apply.
	TaskID         string `json:"task_id"`
	CandidateIndex int    `json:"candidate_index"`
}

// Decision is the state of an approval request.
type Decision string

const (
	// DecisionPending means no decision has arrived yet.
	DecisionPending Decision = "pending"
	// DecisionApproved applies the chosen resolution and resumes the run.
	DecisionApproved Decision = "approved"
	// DecisionRejected aborts the affected run.
	DecisionRejected Decision = "rejected"
	// DecisionExpired means the deadline passed without a decision.
	DecisionExpired Decision = "expired"
)

// ApprovalRequest asks a human to settle a conflict the resolver could not.
type ApprovalRequest struct {
	ID       string       `json:"id"`
	RunID    string       `json:"run_id"`
	Conflict Conflict     `json:"conflict"`
	Proposed []Resolution `json:"proposed,omitempty"`
	Deadline time.Time    `json:"deadline"`

	Decision Decision `json:"decision"`
	// ChosenIndex indexes Proposed when the decision is approved; -1 means
	// approve as-is.
	ChosenIndex int        `json:"chosen_index"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}
