// Package dispatch walks a task graph, issuing ready tasks to workers
// while respecting dependency order, fan-out limits, per-task timeouts and
// retry budgets.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripweave/orchestrator/internal/graph"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// Config holds dispatcher tuning knobs. Defaults follow DefaultConfig.
type Config struct {
	// FanOut is the maximum number of concurrently executing tasks per run.
	FanOut int `yaml:"fan_out"`

	// TaskTimeout bounds a single dispatched call; exceeding it counts as
	// a failure (*types.TaskTimeoutError) and follows the retry path.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// RetryLimit is the number of retries after the first attempt.
	RetryLimit int `yaml:"retry_limit"`

	// RetryBackoff is the initial backoff, doubled per retry.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// ResolveTimeout bounds how long a task waits for a healthy worker to
	// appear before failing terminally.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// ResolveBackoff is the wait between worker resolution attempts.
	ResolveBackoff time.Duration `yaml:"resolve_backoff"`
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() *Config {
	return &Config{
		FanOut:         5,
		TaskTimeout:    30 * time.Second,
		RetryLimit:     2,
		RetryBackoff:   time.Second,
		ResolveTimeout: time.Minute,
		ResolveBackoff: 500 * time.Millisecond,
	}
}

// Gate runs before a task of its capability is resolved and invoked. It
// may block (the escalation path holds the itinerary here) and may return
// a replacement payload; returning an error fails the task without retry.
type Gate func(ctx context.Context, task *types.Task) ([]byte, error)

// TaskObserver is notified after every task state transition.
type TaskObserver func(task *types.Task)

// LatencyRecorder receives per-task execution timings.
type LatencyRecorder interface {
	Record(c types.Capability, d time.Duration, success bool)
}

// Dispatcher executes task graphs against registered workers.
type Dispatcher struct {
	config   *Config
	registry registry.WorkerRegistry
	invoker  Invoker

	gates    map[types.Capability]Gate
	observer TaskObserver
	recorder LatencyRecorder
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithGate installs a pre-dispatch gate for a capability.
func WithGate(c types.Capability, gate Gate) Option {
	return func(d *Dispatcher) { d.gates[c] = gate }
}

// WithObserver installs a task state observer.
func WithObserver(obs TaskObserver) Option {
	return func(d *Dispatcher) { d.observer = obs }
}

// WithRecorder installs a latency recorder.
func WithRecorder(rec LatencyRecorder) Option {
	return func(d *Dispatcher) { d.recorder = rec }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config *Config, reg registry.WorkerRegistry, invoker Invoker, opts ...Option) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	d := &Dispatcher{
		config:   config,
		registry: reg,
		invoker:  invoker,
		gates:    make(map[types.Capability]Gate),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// completion carries one task's final outcome back to the run loop.
type completion struct {
	task *types.Task
	out  *types.TaskOutput
	err  error
}

// Run walks the graph until every task is terminal. It returns the result
// set and a nil error only when the terminal ITINERARY task succeeded.
// The loop is driven strictly by completion events; because the graph is
// acyclic and failures cancel dependents synchronously, it cannot deadlock.
func (d *Dispatcher) Run(ctx context.Context, runID string, g *graph.TaskGraph) (*types.ResultSet, error) {
	rs := types.NewResultSet()
	completions := make(chan completion, g.Len())
	sem := make(chan struct{}, d.config.FanOut)
	inflight := 0

	for {
		for _, t := range g.Ready() {
			if err := g.MarkDispatched(t.ID); err != nil {
				continue
			}
			d.observe(t)
			inflight++
			go func(t *types.Task) {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					completions <- completion{task: t, err: ctx.Err()}
					return
				}
				defer func() { <-sem }()
				out, err := d.executeTask(ctx, runID, g, t)
				completions <- completion{task: t, out: out, err: err}
			}(t)
		}

		if inflight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return rs, ctx.Err()
		case c := <-completions:
			inflight--
			if c.err == nil {
				if err := g.MarkSucceeded(c.task.ID, c.out); err != nil {
					logger.Error("run %s: %v", runID, err)
					continue
				}
				rs.Append(c.out)
				d.observe(c.task)
				d.record(c.task.Capability, c.task, true)
				continue
			}

			logger.Warn("run %s: task %s failed terminally: %v", runID, c.task.ID, c.err)
			cancelled, err := g.MarkFailed(c.task.ID, c.err)
			if err != nil {
				logger.Error("run %s: %v", runID, err)
				continue
			}
			d.observe(c.task)
			d.record(c.task.Capability, c.task, false)
			for _, id := range cancelled {
				d.observe(g.Task(id))
			}
		}
	}

	for _, t := range g.ByCapability(types.CapabilityItinerary) {
		if t.State == types.TaskStateSucceeded {
			return rs, nil
		}
	}
	return rs, fmt.Errorf("required task chain never completed")
}

// executeTask runs one task to a final outcome: gate, worker resolution,
// invocation with timeout, and the retry loop with exponential backoff.
func (d *Dispatcher) executeTask(ctx context.Context, runID string, g *graph.TaskGraph, t *types.Task) (*types.TaskOutput, error) {
	payload := t.Payload
	if gate, ok := d.gates[t.Capability]; ok {
		replacement, err := gate(ctx, t)
		if err != nil {
			return nil, err
		}
		if replacement != nil {
			payload = replacement
		}
	}

	inputs := d.collectInputs(g, t)
	inv := &Invocation{
		RunID:   runID,
		TaskID:  t.ID,
		Payload: payload,
		Inputs:  inputs,
	}

	var lastErr error
	for attempt := 0; attempt <= d.config.RetryLimit; attempt++ {
		if attempt > 0 {
			backoff := d.config.RetryBackoff << (attempt - 1)
			logger.Debug("run %s: retrying task %s in %s (attempt %d)", runID, t.ID, backoff, attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if err := g.NoteRetry(t.ID, lastErr); err != nil {
				return nil, err
			}
		}

		worker, err := d.resolveWorker(ctx, t.Capability)
		if err != nil {
			// Resolution exhaustion is terminal: no amount of task
			// retries helps while no worker serves the capability.
			return nil, err
		}

		out, err := d.invokeOnce(ctx, worker, inv, t)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// invokeOnce performs a single invocation bounded by the per-task timeout.
func (d *Dispatcher) invokeOnce(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation, t *types.Task) (*types.TaskOutput, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.config.TaskTimeout)
	defer cancel()

	out, err := d.invoker.Invoke(callCtx, worker, inv)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &types.TaskTimeoutError{TaskID: t.ID, Timeout: d.config.TaskTimeout}
	}
	var transport *types.TransportError
	if errors.As(err, &transport) {
		return nil, err
	}
	return nil, &types.TaskExecutionError{TaskID: t.ID, Cause: err}
}

// resolveWorker resolves a healthy worker, retrying with backoff while
// none is available, up to the capability-unavailability timeout.
func (d *Dispatcher) resolveWorker(ctx context.Context, c types.Capability) (*types.WorkerDescriptor, error) {
	deadline := time.Now().Add(d.config.ResolveTimeout)
	for {
		worker, err := d.registry.Resolve(ctx, c)
		if err == nil {
			return worker, nil
		}
		var unavailable *types.NoWorkerAvailableError
		if !errors.As(err, &unavailable) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.config.ResolveBackoff):
		}
	}
}

// collectInputs gathers the outputs of a task's dependencies in
// declaration order.
func (d *Dispatcher) collectInputs(g *graph.TaskGraph, t *types.Task) []*types.TaskOutput {
	var inputs []*types.TaskOutput
	for _, dep := range t.DependsOn {
		if dt := g.Task(dep); dt != nil && dt.Output != nil {
			inputs = append(inputs, dt.Output)
		}
	}
	return inputs
}

func (d *Dispatcher) observe(t *types.Task) {
	if d.observer != nil && t != nil {
		d.observer(t)
	}
}

func (d *Dispatcher) record(c types.Capability, t *types.Task, success bool) {
	if d.recorder == nil || t.StartedAt == nil {
		return
	}
	end := time.Now()
	if t.FinishedAt != nil {
		end = *t.FinishedAt
	}
	d.recorder.Record(c, end.Sub(*t.StartedAt), success)
}
