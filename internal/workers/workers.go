// Package workers provides the built-in worker implementations. Each
// worker serves one capability over a deterministic catalog, which keeps
// planning reproducible without external booking providers.
package workers

import (
	"context"
	"fmt"
	"sync"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/pkg/types"
)

// Worker handles invocations for one capability.
type Worker interface {
	Capability() types.Capability
	Handle(ctx context.Context, inv *dispatch.Invocation) (*types.TaskOutput, error)
}

// LocalInvoker routes invocations to in-process workers by worker id.
type LocalInvoker struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewLocalInvoker creates an empty local invoker.
func NewLocalInvoker() *LocalInvoker {
	return &LocalInvoker{workers: make(map[string]Worker)}
}

// Add binds a worker id to an implementation.
func (l *LocalInvoker) Add(workerID string, w Worker) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.workers[workerID] = w
}

// Invoke implements dispatch.Invoker.
func (l *LocalInvoker) Invoke(ctx context.Context, worker *types.WorkerDescriptor, inv *dispatch.Invocation) (*types.TaskOutput, error) {
	l.mu.RLock()
	w, ok := l.workers[worker.ID]
	l.mu.RUnlock()
	if !ok {
		return nil, &types.TransportError{
			WorkerID: worker.ID,
			Cause:    fmt.Errorf("no local worker bound to id %s", worker.ID),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.Handle(ctx, inv)
}

// RegisterBuiltins registers one worker per capability into the registry
// and binds them to the invoker. The returned ids are in capability order.
func RegisterBuiltins(ctx context.Context, reg *registry.InMemoryRegistry, inv *LocalInvoker) ([]string, error) {
	builtins := []Worker{
		NewHotelWorker(),
		NewTransportWorker(),
		NewActivityWorker(),
		NewBudgetWorker(),
		NewItineraryWorker(),
	}

	var ids []string
	for _, w := range builtins {
		id := fmt.Sprintf("builtin-%s-1", w.Capability())
		desc := &types.WorkerDescriptor{
			ID:         id,
			Capability: w.Capability(),
			Endpoint:   "local://" + id,
		}
		if err := reg.Register(ctx, desc); err != nil {
			return nil, err
		}
		if err := reg.Heartbeat(ctx, id, true); err != nil {
			return nil, err
		}
		inv.Add(id, w)
		ids = append(ids, id)
	}
	return ids, nil
}
