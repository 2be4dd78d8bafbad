// Package registry tracks worker services, their capabilities and liveness.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// DefaultMissedHeartbeatLimit is the number of consecutive missed
// heartbeats after which a worker is marked unreachable.
const DefaultMissedHeartbeatLimit = 3

// WorkerRegistry manages worker registration, health and selection.
type WorkerRegistry interface {
	// Register adds a worker. Fails with *types.DuplicateWorkerError when
	// the id is already present.
	Register(ctx context.Context, worker *types.WorkerDescriptor) error

	// Unregister removes a worker.
	Unregister(ctx context.Context, workerID string) error

	// Resolve returns one healthy worker for the capability, chosen by
	// round-robin among healthy candidates. Fails with
	// *types.NoWorkerAvailableError when none are healthy.
	Resolve(ctx context.Context, c types.Capability) (*types.WorkerDescriptor, error)

	// Heartbeat records a liveness report for a worker.
	Heartbeat(ctx context.Context, workerID string, healthy bool) error

	// Status returns the current health record for a worker.
	Status(ctx context.Context, workerID string) (*types.WorkerStatus, error)

	// List returns all workers, optionally filtered by capability.
	List(ctx context.Context, c types.Capability) []*types.WorkerDescriptor

	// Watch returns a channel of registry events, closed when ctx ends.
	Watch(ctx context.Context) <-chan *types.WorkerEvent
}

// InMemoryRegistry implements WorkerRegistry with in-memory storage. The
// health map is the only structure mutated by multiple heartbeat sources;
// updates are serialized per registry, reads take the shared lock.
type InMemoryRegistry struct {
	workers map[string]*types.WorkerDescriptor
	status  map[string]*types.WorkerStatus
	// rrIndex is the per-capability round-robin cursor.
	rrIndex map[types.Capability]int
	// missedLimit is the consecutive-miss threshold for UNREACHABLE.
	missedLimit int

	subscribers []chan *types.WorkerEvent
	subMu       sync.RWMutex

	mu sync.RWMutex
}

// NewInMemoryRegistry creates a registry with the given missed-heartbeat
// limit (0 uses the default).
func NewInMemoryRegistry(missedLimit int) *InMemoryRegistry {
	if missedLimit <= 0 {
		missedLimit = DefaultMissedHeartbeatLimit
	}
	return &InMemoryRegistry{
		workers:     make(map[string]*types.WorkerDescriptor),
		status:      make(map[string]*types.WorkerStatus),
		rrIndex:     make(map[types.Capability]int),
		missedLimit: missedLimit,
	}
}

// Register adds a worker.
func (r *InMemoryRegistry) Register(ctx context.Context, worker *types.WorkerDescriptor) error {
	if worker == nil {
		return fmt.Errorf("worker cannot be nil")
	}
	if worker.ID == "" {
		return fmt.Errorf("worker ID cannot be empty")
	}
	if !worker.Capability.Valid() {
		return fmt.Errorf("unknown capability: %s", worker.Capability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[worker.ID]; exists {
		return &types.DuplicateWorkerError{WorkerID: worker.ID}
	}

	r.workers[worker.ID] = worker
	r.status[worker.ID] = &types.WorkerStatus{
		Health: types.WorkerHealthUnknown,
	}

	r.notifyEvent(&types.WorkerEvent{
		Type:     types.WorkerEventRegistered,
		WorkerID: worker.ID,
		Worker:   worker,
	})
	return nil
}

// Unregister removes a worker.
func (r *InMemoryRegistry) Unregister(ctx context.Context, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[workerID]
	if !exists {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	delete(r.workers, workerID)
	delete(r.status, workerID)

	r.notifyEvent(&types.WorkerEvent{
		Type:     types.WorkerEventUnregistered,
		WorkerID: workerID,
		Worker:   worker,
	})
	return nil
}

// Resolve returns one healthy worker for the capability by round-robin.
func (r *InMemoryRegistry) Resolve(ctx context.Context, c types.Capability) (*types.WorkerDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var healthy []*types.WorkerDescriptor
	// Iterate deterministically so round-robin cycles a stable order.
	for _, w := range r.sortedWorkersLocked() {
		if w.Capability != c {
			continue
		}
		if s, ok := r.status[w.ID]; ok && s.Health == types.WorkerHealthHealthy {
			healthy = append(healthy, w)
		}
	}

	if len(healthy) == 0 {
		return nil, &types.NoWorkerAvailableError{Capability: c}
	}

	idx := r.rrIndex[c] % len(healthy)
	r.rrIndex[c] = (idx + 1) % len(healthy)
	return healthy[idx], nil
}

// sortedWorkersLocked returns the workers ordered by id. Caller holds a lock.
func (r *InMemoryRegistry) sortedWorkersLocked() []*types.WorkerDescriptor {
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*types.WorkerDescriptor, len(ids))
	for i, id := range ids {
		out[i] = r.workers[id]
	}
	return out
}

// Heartbeat records a liveness report. A healthy report resets the missed
// counter and restores the worker to HEALTHY; an unhealthy report counts a
// miss and trips UNREACHABLE at the configured limit.
func (r *InMemoryRegistry) Heartbeat(ctx context.Context, workerID string, healthy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.status[workerID]
	if !exists {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	status.LastHeartbeat = time.Now()

	if healthy {
		status.MissedHeartbeats = 0
		if status.Health != types.WorkerHealthHealthy {
			status.Health = types.WorkerHealthHealthy
			r.notifyEvent(&types.WorkerEvent{
				Type:     types.WorkerEventHealthy,
				WorkerID: workerID,
				Worker:   r.workers[workerID],
			})
		}
		return nil
	}

	status.MissedHeartbeats++
	if status.MissedHeartbeats >= r.missedLimit && status.Health != types.WorkerHealthUnreachable {
		status.Health = types.WorkerHealthUnreachable
		logger.Warn("worker %s unreachable after %d missed heartbeats", workerID, status.MissedHeartbeats)
		r.notifyEvent(&types.WorkerEvent{
			Type:     types.WorkerEventUnreachable,
			WorkerID: workerID,
			Worker:   r.workers[workerID],
		})
	}
	return nil
}

// Sweep marks a missed heartbeat for every worker whose last report is
// older than maxAge. It is called periodically by the health monitor and
// returns the ids that became unreachable during this pass.
func (r *InMemoryRegistry) Sweep(now time.Time, maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tripped []string
	for id, status := range r.status {
		if status.Health == types.WorkerHealthUnreachable {
			continue
		}
		if status.LastHeartbeat.IsZero() || now.Sub(status.LastHeartbeat) <= maxAge {
			continue
		}
		status.MissedHeartbeats++
		// Count this sweep window as a missed report.
		status.LastHeartbeat = now
		if status.MissedHeartbeats >= r.missedLimit {
			status.Health = types.WorkerHealthUnreachable
			tripped = append(tripped, id)
			r.notifyEvent(&types.WorkerEvent{
				Type:     types.WorkerEventUnreachable,
				WorkerID: id,
				Worker:   r.workers[id],
			})
		}
	}
	return tripped
}

// Status returns a copy of the worker's health record.
func (r *InMemoryRegistry) Status(ctx context.Context, workerID string) (*types.WorkerStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, exists := r.status[workerID]
	if !exists {
		return nil, fmt.Errorf("worker not found: %s", workerID)
	}
	cp := *status
	return &cp, nil
}

// List returns the registered workers, filtered by capability when c is
// non-empty.
func (r *InMemoryRegistry) List(ctx context.Context, c types.Capability) []*types.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.WorkerDescriptor
	for _, w := range r.sortedWorkersLocked() {
		if c != "" && w.Capability != c {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Watch returns a channel of registry events.
func (r *InMemoryRegistry) Watch(ctx context.Context) <-chan *types.WorkerEvent {
	ch := make(chan *types.WorkerEvent, 100)

	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.removeSubscriber(ch)
		close(ch)
	}()

	return ch
}

// notifyEvent sends an event to all subscribers without blocking.
func (r *InMemoryRegistry) notifyEvent(event *types.WorkerEvent) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

// removeSubscriber removes a subscriber channel.
func (r *InMemoryRegistry) removeSubscriber(ch chan *types.WorkerEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered workers.
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// CountHealthy returns the number of healthy workers.
func (r *InMemoryRegistry) CountHealthy() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for id := range r.workers {
		if s, ok := r.status[id]; ok && s.Health == types.WorkerHealthHealthy {
			count++
		}
	}
	return count
}
