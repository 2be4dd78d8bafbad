package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripweave/orchestrator/internal/graph"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/pkg/types"
)

// fastConfig keeps retry and resolve waits short for tests.
func fastConfig() *Config {
	return &Config{
		FanOut:         5,
		TaskTimeout:    500 * time.Millisecond,
		RetryLimit:     2,
		RetryBackoff:   5 * time.Millisecond,
		ResolveTimeout: 100 * time.Millisecond,
		ResolveBackoff: 10 * time.Millisecond,
	}
}

// tripGraph builds the standard five-task template without the builder.
func tripGraph(t *testing.T) *graph.TaskGraph {
	t.Helper()
	g := graph.NewTaskGraph()
	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))
	require.NoError(t, g.AddTask("transport", types.CapabilityTransport, nil))
	require.NoError(t, g.AddTask("activity:general", types.CapabilityActivity, nil))
	require.NoError(t, g.AddTask("budget", types.CapabilityBudget, nil))
	require.NoError(t, g.AddTask("itinerary", types.CapabilityItinerary, nil))
	for _, dep := range []string{"hotel", "transport", "activity:general"} {
		require.NoError(t, g.AddDependency("budget", dep))
	}
	require.NoError(t, g.AddDependency("itinerary", "budget"))
	return g
}

// fullRegistry registers one healthy worker per capability.
func fullRegistry(t *testing.T) *registry.InMemoryRegistry {
	t.Helper()
	reg := registry.NewInMemoryRegistry(3)
	ctx := context.Background()
	for _, c := range types.AllCapabilities() {
		id := "w-" + string(c)
		require.NoError(t, reg.Register(ctx, &types.WorkerDescriptor{
			ID: id, Capability: c, Endpoint: "local://" + id,
		}))
		require.NoError(t, reg.Heartbeat(ctx, id, true))
	}
	return reg
}

// scriptedInvoker returns canned outcomes per task id and counts calls.
type scriptedInvoker struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	// failTimes fails the task this many times before succeeding.
	failTimes map[string]int
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		calls:     make(map[string]int),
		fail:      make(map[string]error),
		failTimes: make(map[string]int),
	}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error) {
	s.mu.Lock()
	s.calls[inv.TaskID]++
	n := s.calls[inv.TaskID]
	err := s.fail[inv.TaskID]
	remaining := s.failTimes[inv.TaskID]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if n <= remaining {
		return nil, fmt.Errorf("transient fault %d", n)
	}
	return &types.TaskOutput{
		TaskID:     inv.TaskID,
		Capability: worker.Capability,
		Candidates: []types.Option{{Ref: inv.TaskID, Name: inv.TaskID, TotalCost: 100, Available: true}},
	}, nil
}

func (s *scriptedInvoker) callCount(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[taskID]
}

func TestRunHappyPath(t *testing.T) {
	g := tripGraph(t)
	inv := newScriptedInvoker()
	d := NewDispatcher(fastConfig(), fullRegistry(t), inv)

	rs, err := d.Run(context.Background(), "run-1", g)
	require.NoError(t, err)
	assert.Equal(t, 5, rs.Len())
	assert.True(t, g.Done())
	for _, task := range g.Tasks() {
		assert.Equal(t, types.TaskStateSucceeded, task.State, task.ID)
		assert.Equal(t, 1, task.Attempts, task.ID)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	g := tripGraph(t)
	inv := newScriptedInvoker()
	inv.failTimes["hotel"] = 2 // fails twice, succeeds on the final retry
	d := NewDispatcher(fastConfig(), fullRegistry(t), inv)

	_, err := d.Run(context.Background(), "run-1", g)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.callCount("hotel"))
	assert.Equal(t, 3, g.Task("hotel").Attempts)
	assert.Equal(t, types.TaskStateSucceeded, g.Task("hotel").State)
}

func TestRunFailureCancelsDependents(t *testing.T) {
	g := tripGraph(t)
	inv := newScriptedInvoker()
	inv.fail["hotel"] = errors.New("no rooms anywhere")
	d := NewDispatcher(fastConfig(), fullRegistry(t), inv)

	rs, err := d.Run(context.Background(), "run-1", g)
	require.Error(t, err)

	// Retry budget: first attempt plus two retries.
	assert.Equal(t, 3, inv.callCount("hotel"))
	assert.Equal(t, types.TaskStateFailed, g.Task("hotel").State)
	assert.Equal(t, types.TaskStateCancelled, g.Task("budget").State)
	assert.Equal(t, types.TaskStateCancelled, g.Task("itinerary").State)

	// Independent siblings still run to completion.
	assert.Equal(t, types.TaskStateSucceeded, g.Task("transport").State)
	assert.Equal(t, types.TaskStateSucceeded, g.Task("activity:general").State)
	assert.Equal(t, 2, rs.Len())

	// Budget and itinerary are never invoked.
	assert.Zero(t, inv.callCount("budget"))
	assert.Zero(t, inv.callCount("itinerary"))
}

func TestRunWrapsExecutionErrors(t *testing.T) {
	g := tripGraph(t)
	inv := newScriptedInvoker()
	inv.fail["budget"] = errors.New("arithmetic exploded")
	d := NewDispatcher(fastConfig(), fullRegistry(t), inv)

	_, err := d.Run(context.Background(), "run-1", g)
	require.Error(t, err)
	assert.Contains(t, g.Task("budget").LastError, "arithmetic exploded")
	assert.Contains(t, g.Task("budget").LastError, "budget")
}

func TestRunTimeoutCountsAsFailure(t *testing.T) {
	g := graph.NewTaskGraph()
	require.NoError(t, g.AddTask("itinerary", types.CapabilityItinerary, nil))

	cfg := fastConfig()
	cfg.TaskTimeout = 20 * time.Millisecond
	cfg.RetryLimit = 1

	var calls atomic.Int32
	slow := InvokerFunc(func(ctx context.Context, w *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	d := NewDispatcher(cfg, fullRegistry(t), slow)
	_, err := d.Run(context.Background(), "run-1", g)
	require.Error(t, err)

	assert.Equal(t, int32(2), calls.Load(), "timeout follows the retry path")
	assert.Contains(t, g.Task("itinerary").LastError, "timed out")
}

func TestRunFanOutBound(t *testing.T) {
	g := graph.NewTaskGraph()
	for i := 0; i < 10; i++ {
		require.NoError(t, g.AddTask(fmt.Sprintf("activity:c%d", i), types.CapabilityActivity, nil))
	}

	cfg := fastConfig()
	cfg.FanOut = 2

	var inflight, peak atomic.Int32
	inv := InvokerFunc(func(ctx context.Context, w *types.WorkerDescriptor, i *Invocation) (*types.TaskOutput, error) {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return &types.TaskOutput{TaskID: i.TaskID, Capability: w.Capability}, nil
	})

	d := NewDispatcher(cfg, fullRegistry(t), inv)
	// No itinerary task here, so Run reports the chain incomplete; only the
	// concurrency bound is under test.
	_, err := d.Run(context.Background(), "run-1", g)
	require.Error(t, err)
	assert.True(t, g.Done())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunNoWorkerAvailableFailsTask(t *testing.T) {
	g := graph.NewTaskGraph()
	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))

	reg := registry.NewInMemoryRegistry(3) // empty
	cfg := fastConfig()
	cfg.ResolveTimeout = 30 * time.Millisecond

	d := NewDispatcher(cfg, reg, newScriptedInvoker())
	_, err := d.Run(context.Background(), "run-1", g)
	require.Error(t, err)
	assert.Equal(t, types.TaskStateFailed, g.Task("hotel").State)
	assert.Contains(t, g.Task("hotel").LastError, "no healthy worker")
}

func TestRunGateReplacesPayloadAndCanFail(t *testing.T) {
	g := graph.NewTaskGraph()
	require.NoError(t, g.AddTask("itinerary", types.CapabilityItinerary, []byte(`{"v":1}`)))

	var seen []byte
	inv := InvokerFunc(func(ctx context.Context, w *types.WorkerDescriptor, i *Invocation) (*types.TaskOutput, error) {
		seen = i.Payload
		return &types.TaskOutput{TaskID: i.TaskID, Capability: w.Capability}, nil
	})

	gate := func(ctx context.Context, task *types.Task) ([]byte, error) {
		return []byte(`{"v":2}`), nil
	}
	d := NewDispatcher(fastConfig(), fullRegistry(t), inv,
		WithGate(types.CapabilityItinerary, gate))

	_, err := d.Run(context.Background(), "run-1", g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(seen))

	// A gate error fails the task without invoking the worker.
	g2 := graph.NewTaskGraph()
	require.NoError(t, g2.AddTask("itinerary", types.CapabilityItinerary, nil))
	invoked := false
	d2 := NewDispatcher(fastConfig(), fullRegistry(t),
		InvokerFunc(func(ctx context.Context, w *types.WorkerDescriptor, i *Invocation) (*types.TaskOutput, error) {
			invoked = true
			return nil, nil
		}),
		WithGate(types.CapabilityItinerary, func(ctx context.Context, task *types.Task) ([]byte, error) {
			return nil, errors.New("approval rejected")
		}))

	_, err = d2.Run(context.Background(), "run-2", g2)
	require.Error(t, err)
	assert.False(t, invoked)
	assert.Equal(t, types.TaskStateFailed, g2.Task("itinerary").State)
}

func TestRunPassesDependencyOutputsAsInputs(t *testing.T) {
	g := tripGraph(t)

	var mu sync.Mutex
	inputsByTask := make(map[string][]*types.TaskOutput)
	inv := InvokerFunc(func(ctx context.Context, w *types.WorkerDescriptor, i *Invocation) (*types.TaskOutput, error) {
		mu.Lock()
		inputsByTask[i.TaskID] = i.Inputs
		mu.Unlock()
		return &types.TaskOutput{TaskID: i.TaskID, Capability: w.Capability}, nil
	})

	d := NewDispatcher(fastConfig(), fullRegistry(t), inv)
	_, err := d.Run(context.Background(), "run-1", g)
	require.NoError(t, err)

	// Budget receives the three search outputs in declaration order.
	budgetInputs := inputsByTask["budget"]
	require.Len(t, budgetInputs, 3)
	assert.Equal(t, "hotel", budgetInputs[0].TaskID)
	assert.Equal(t, "transport", budgetInputs[1].TaskID)
	assert.Equal(t, "activity:general", budgetInputs[2].TaskID)

	itineraryInputs := inputsByTask["itinerary"]
	require.Len(t, itineraryInputs, 1)
	assert.Equal(t, "budget", itineraryInputs[0].TaskID)
}

func TestRunObserverSeesTransitions(t *testing.T) {
	g := tripGraph(t)
	inv := newScriptedInvoker()
	inv.fail["hotel"] = errors.New("down")

	var mu sync.Mutex
	states := make(map[string][]types.TaskState)
	obs := func(task *types.Task) {
		mu.Lock()
		states[task.ID] = append(states[task.ID], task.State)
		mu.Unlock()
	}

	d := NewDispatcher(fastConfig(), fullRegistry(t), inv, WithObserver(obs))
	_, err := d.Run(context.Background(), "run-1", g)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states["hotel"], types.TaskStateDispatched)
	assert.Contains(t, states["hotel"], types.TaskStateFailed)
	assert.Contains(t, states["budget"], types.TaskStateCancelled)
	assert.Contains(t, states["transport"], types.TaskStateSucceeded)
}
