package graph

import (
	"fmt"
	"sync"
	"time"

	"tripweave/orchestrator/pkg/types"
)

// TaskGraph is the dependency DAG of tasks for one trip request. It is
// acyclic by construction: an edge insertion that would create a cycle is
// rejected. The graph is owned by a single run; a mutex guards it because
// the dispatcher mutates task states while status snapshots are read
// concurrently.
type TaskGraph struct {
	mu    sync.RWMutex
	tasks map[string]*types.Task
	// dependents is the reverse adjacency: task id -> ids that depend on it.
	dependents map[string][]string
	// order preserves insertion order for deterministic iteration.
	order []string
}

// NewTaskGraph creates an empty task graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{
		tasks:      make(map[string]*types.Task),
		dependents: make(map[string][]string),
	}
}

// AddTask inserts a task with no dependencies yet. Duplicate ids are
// rejected.
func (g *TaskGraph) AddTask(id string, capability types.Capability, payload []byte) error {
	if id == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	if !capability.Valid() {
		return fmt.Errorf("unknown capability: %s", capability)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[id]; exists {
		return fmt.Errorf("duplicate task id: %s", id)
	}

	g.tasks[id] = &types.Task{
		ID:         id,
		Capability: capability,
		Payload:    payload,
		State:      types.TaskStatePending,
	}
	g.order = append(g.order, id)
	return nil
}

// AddDependency adds the edge "from depends on to". Both tasks must exist
// and the edge must not close a cycle.
func (g *TaskGraph) AddDependency(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.tasks[from]
	if !ok {
		return fmt.Errorf("dependency source not in graph: %s", from)
	}
	if _, ok := g.tasks[to]; !ok {
		return fmt.Errorf("dependency target not in graph: %s", to)
	}
	if from == to {
		return fmt.Errorf("task cannot depend on itself: %s", from)
	}

	// Reject the edge if "to" can already reach "from".
	if g.reaches(to, from) {
		return fmt.Errorf("dependency %s -> %s would create a cycle", from, to)
	}

	for _, dep := range src.DependsOn {
		if dep == to {
			return nil // edge already present
		}
	}

	src.DependsOn = append(src.DependsOn, to)
	g.dependents[to] = append(g.dependents[to], from)
	return nil
}

// reaches reports whether start transitively depends on target.
// Caller holds the lock.
func (g *TaskGraph) reaches(start, target string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := g.tasks[id]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

// Ready promotes every PENDING task whose dependencies have all succeeded
// to READY and returns the promoted tasks in insertion order.
func (g *TaskGraph) Ready() []*types.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*types.Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.State != types.TaskStatePending {
			continue
		}
		if g.depsSucceeded(t) {
			t.State = types.TaskStateReady
			ready = append(ready, t)
		}
	}
	return ready
}

// depsSucceeded reports whether every dependency of t succeeded.
// Caller holds the lock.
func (g *TaskGraph) depsSucceeded(t *types.Task) bool {
	for _, dep := range t.DependsOn {
		d, ok := g.tasks[dep]
		if !ok || d.State != types.TaskStateSucceeded {
			return false
		}
	}
	return true
}

// MarkDispatched moves a READY task to DISPATCHED and bumps its attempt
// counter.
func (g *TaskGraph) MarkDispatched(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("task not in graph: %s", id)
	}
	if t.State != types.TaskStateReady {
		return fmt.Errorf("task %s is not ready (state: %s)", id, t.State)
	}
	t.State = types.TaskStateDispatched
	t.Attempts++
	now := time.Now()
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	return nil
}

// NoteRetry records a retry attempt on a DISPATCHED task.
func (g *TaskGraph) NoteRetry(id string, lastErr error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("task not in graph: %s", id)
	}
	if t.State != types.TaskStateDispatched {
		return fmt.Errorf("task %s is not dispatched (state: %s)", id, t.State)
	}
	t.Attempts++
	if lastErr != nil {
		t.LastError = lastErr.Error()
	}
	return nil
}

// MarkSucceeded records a task's output and moves it to SUCCEEDED.
func (g *TaskGraph) MarkSucceeded(id string, out *types.TaskOutput) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("task not in graph: %s", id)
	}
	if t.State != types.TaskStateDispatched {
		return fmt.Errorf("task %s is not dispatched (state: %s)", id, t.State)
	}
	t.State = types.TaskStateSucceeded
	t.Output = out
	now := time.Now()
	t.FinishedAt = &now
	return nil
}

// MarkFailed moves a task to FAILED terminally and synchronously cancels
// every transitive dependent. No dependent is ever dispatched after its
// ancestor is known failed. It returns the ids of the cancelled tasks.
func (g *TaskGraph) MarkFailed(id string, cause error) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task not in graph: %s", id)
	}
	if t.State.Terminal() {
		return nil, fmt.Errorf("task %s already terminal (state: %s)", id, t.State)
	}
	t.State = types.TaskStateFailed
	if cause != nil {
		t.LastError = cause.Error()
	}
	now := time.Now()
	t.FinishedAt = &now

	return g.cancelDependents(id, now), nil
}

// cancelDependents cancels every transitive dependent of id that is not
// already terminal. Caller holds the lock.
func (g *TaskGraph) cancelDependents(id string, now time.Time) []string {
	var cancelled []string
	stack := append([]string(nil), g.dependents[id]...)
	seen := make(map[string]bool)

	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[next] {
			continue
		}
		seen[next] = true

		t := g.tasks[next]
		if !t.State.Terminal() {
			t.State = types.TaskStateCancelled
			finished := now
			t.FinishedAt = &finished
			cancelled = append(cancelled, next)
		}
		stack = append(stack, g.dependents[next]...)
	}
	return cancelled
}

// Task returns the task with the given id, or nil.
func (g *TaskGraph) Task(id string) *types.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tasks[id]
}

// Tasks returns all tasks in insertion order.
func (g *TaskGraph) Tasks() []*types.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*types.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// ByCapability returns the tasks of one capability in insertion order.
func (g *TaskGraph) ByCapability(c types.Capability) []*types.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*types.Task
	for _, id := range g.order {
		if g.tasks[id].Capability == c {
			out = append(out, g.tasks[id])
		}
	}
	return out
}

// Len returns the number of tasks.
func (g *TaskGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Done reports whether every task is terminal.
func (g *TaskGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		if !t.State.Terminal() {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of every task's state keyed by id.
func (g *TaskGraph) Snapshot() map[string]types.TaskState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap := make(map[string]types.TaskState, len(g.tasks))
	for id, t := range g.tasks {
		snap[id] = t.State
	}
	return snap
}

// DependsTransitively reports whether from reaches to through dependency
// edges.
func (g *TaskGraph) DependsTransitively(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reaches(from, to)
}
