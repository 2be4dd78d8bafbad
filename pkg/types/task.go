package types

import (
	"encoding/json"
	"time"
)

// TaskState is the lifecycle state of a task within its graph.
//
// Transitions: PENDING -> READY -> DISPATCHED -> SUCCEEDED | FAILED.
// A task with any failed dependency moves straight to CANCELLED and is
// never dispatched.
type TaskState string

const (
	// TaskStatePending means at least one dependency has not succeeded yet.
	TaskStatePending TaskState = "pending"
	// TaskStateReady means all dependencies succeeded and the task awaits dispatch.
	TaskStateReady TaskState = "ready"
	// TaskStateDispatched means the task has been handed to a worker.
	TaskStateDispatched TaskState = "dispatched"
	// TaskStateSucceeded means the task completed and produced an output.
	TaskStateSucceeded TaskState = "succeeded"
	// TaskStateFailed means the task failed terminally (retry budget exhausted).
	TaskStateFailed TaskState = "failed"
	// TaskStateCancelled means an ancestor failed before this task could run.
	TaskStateCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is one a task never leaves.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSucceeded, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

// Task is one unit of work inside a task graph. The payload is opaque to
// the dispatch machinery; only the target capability's worker interprets it.
type Task struct {
	ID         string          `json:"id"`
	Capability Capability      `json:"capability"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DependsOn  []string        `json:"depends_on,omitempty"`

	State TaskState `json:"state"`

	// Attempts counts dispatches, including retries.
	Attempts int `json:"attempts"`
	// LastError records the most recent failure message, if any.
	LastError string `json:"last_error,omitempty"`

	// Output is set once the task succeeds.
	Output *TaskOutput `json:"output,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskOutput is the successful result of a single task. Search capabilities
// return a ranked candidate list with the selected option first by index;
// keeping the full candidate set allows the conflict resolver to substitute
// alternatives without re-invoking the worker.
type TaskOutput struct {
	TaskID     string     `json:"task_id"`
	Capability Capability `json:"capability"`

	// Candidates is ranked best-fit first. Empty for BUDGET and ITINERARY.
	Candidates []Option `json:"candidates,omitempty"`
	// Selected indexes the currently chosen candidate.
	Selected int `json:"selected"`

	// Report carries capability-specific output that is not a candidate
	// list (budget reports, assembled itineraries).
	Report json.RawMessage `json:"report,omitempty"`
}

// SelectedOption returns the currently selected candidate, or nil when the
// output carries no candidates.
func (o *TaskOutput) SelectedOption() *Option {
	if o == nil || len(o.Candidates) == 0 {
		return nil
	}
	if o.Selected < 0 || o.Selected >= len(o.Candidates) {
		return nil
	}
	return &o.Candidates[o.Selected]
}

// SelectedCost is the cost of the selected candidate, 0 when none.
func (o *TaskOutput) SelectedCost() float64 {
	if opt := o.SelectedOption(); opt != nil {
		return opt.TotalCost
	}
	return 0
}
