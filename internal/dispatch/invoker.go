package dispatch

import (
	"context"
	"encoding/json"

	"tripweave/orchestrator/pkg/types"
)

// Invocation is one worker call: the task being executed plus the outputs
// of its dependencies, in dependency declaration order.
type Invocation struct {
	RunID   string              `json:"run_id"`
	TaskID  string              `json:"task_id"`
	Payload json.RawMessage     `json:"payload,omitempty"`
	Inputs  []*types.TaskOutput `json:"inputs,omitempty"`
}

// Invoker executes a task against a resolved worker. Implementations are
// transport-specific; the HTTP invoker talks to remote worker services,
// the local invoker calls in-process workers. Transport failures must be
// returned as *types.TransportError so the dispatcher can distinguish them
// from application-level errors.
type Invoker interface {
	Invoke(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error) {
	return f(ctx, worker, inv)
}
