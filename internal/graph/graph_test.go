package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"tripweave/orchestrator/pkg/types"
)

func TestAddTask(t *testing.T) {
	g := NewTaskGraph()

	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, types.TaskStatePending, g.Task("hotel").State)

	err := g.AddTask("hotel", types.CapabilityHotel, nil)
	assert.Error(t, err, "duplicate ids must be rejected")

	assert.Error(t, g.AddTask("", types.CapabilityHotel, nil))
	assert.Error(t, g.AddTask("x", types.Capability("bogus"), nil))
}

func TestAddDependencyRejectsCycles(t *testing.T) {
	g := NewTaskGraph()
	require.NoError(t, g.AddTask("a", types.CapabilityHotel, nil))
	require.NoError(t, g.AddTask("b", types.CapabilityBudget, nil))
	require.NoError(t, g.AddTask("c", types.CapabilityItinerary, nil))

	require.NoError(t, g.AddDependency("b", "a"))
	require.NoError(t, g.AddDependency("c", "b"))

	assert.Error(t, g.AddDependency("a", "c"), "a -> c closes a cycle through b")
	assert.Error(t, g.AddDependency("a", "a"), "self-dependency")
	assert.Error(t, g.AddDependency("a", "missing"))
	assert.Error(t, g.AddDependency("missing", "a"))

	// Re-adding an existing edge is a no-op.
	require.NoError(t, g.AddDependency("b", "a"))
	assert.Len(t, g.Task("b").DependsOn, 1)
}

func TestReadyPromotesOnlySatisfiedTasks(t *testing.T) {
	g := NewTaskGraph()
	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))
	require.NoError(t, g.AddTask("transport", types.CapabilityTransport, nil))
	require.NoError(t, g.AddTask("budget", types.CapabilityBudget, nil))
	require.NoError(t, g.AddDependency("budget", "hotel"))
	require.NoError(t, g.AddDependency("budget", "transport"))

	ready := g.Ready()
	require.Len(t, ready, 2)
	assert.Equal(t, "hotel", ready[0].ID, "insertion order")
	assert.Equal(t, "transport", ready[1].ID)

	// Nothing new until both dependencies succeed.
	assert.Empty(t, g.Ready())

	require.NoError(t, g.MarkDispatched("hotel"))
	require.NoError(t, g.MarkSucceeded("hotel", &types.TaskOutput{}))
	assert.Empty(t, g.Ready())

	require.NoError(t, g.MarkDispatched("transport"))
	require.NoError(t, g.MarkSucceeded("transport", &types.TaskOutput{}))

	ready = g.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, "budget", ready[0].ID)
}

func TestMarkDispatchedStateChecks(t *testing.T) {
	g := NewTaskGraph()
	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))

	assert.Error(t, g.MarkDispatched("hotel"), "pending task cannot be dispatched")
	assert.Error(t, g.MarkDispatched("missing"))

	g.Ready()
	require.NoError(t, g.MarkDispatched("hotel"))
	assert.Equal(t, 1, g.Task("hotel").Attempts)
	assert.NotNil(t, g.Task("hotel").StartedAt)

	require.NoError(t, g.NoteRetry("hotel", errors.New("boom")))
	assert.Equal(t, 2, g.Task("hotel").Attempts)
	assert.Equal(t, "boom", g.Task("hotel").LastError)
}

func TestMarkFailedCancelsTransitiveDependents(t *testing.T) {
	g := NewTaskGraph()
	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))
	require.NoError(t, g.AddTask("transport", types.CapabilityTransport, nil))
	require.NoError(t, g.AddTask("budget", types.CapabilityBudget, nil))
	require.NoError(t, g.AddTask("itinerary", types.CapabilityItinerary, nil))
	require.NoError(t, g.AddDependency("budget", "hotel"))
	require.NoError(t, g.AddDependency("budget", "transport"))
	require.NoError(t, g.AddDependency("itinerary", "budget"))

	g.Ready()
	require.NoError(t, g.MarkDispatched("hotel"))

	cancelled, err := g.MarkFailed("hotel", errors.New("no rooms"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"budget", "itinerary"}, cancelled)

	assert.Equal(t, types.TaskStateFailed, g.Task("hotel").State)
	assert.Equal(t, types.TaskStateCancelled, g.Task("budget").State)
	assert.Equal(t, types.TaskStateCancelled, g.Task("itinerary").State)
	// Siblings without a path from the failed task are untouched.
	assert.Equal(t, types.TaskStateReady, g.Task("transport").State)

	// No dependent of the failure ever becomes ready afterwards.
	require.NoError(t, g.MarkDispatched("transport"))
	require.NoError(t, g.MarkSucceeded("transport", &types.TaskOutput{}))
	assert.Empty(t, g.Ready())

	_, err = g.MarkFailed("hotel", nil)
	assert.Error(t, err, "terminal task cannot fail again")
}

func TestDoneAndSnapshot(t *testing.T) {
	g := NewTaskGraph()
	require.NoError(t, g.AddTask("hotel", types.CapabilityHotel, nil))
	assert.False(t, g.Done())

	g.Ready()
	require.NoError(t, g.MarkDispatched("hotel"))
	require.NoError(t, g.MarkSucceeded("hotel", &types.TaskOutput{}))
	assert.True(t, g.Done())

	snap := g.Snapshot()
	assert.Equal(t, types.TaskStateSucceeded, snap["hotel"])
}

// TestGraphStaysAcyclicProperty inserts random edges and checks that every
// accepted edge set remains a DAG and every rejected edge would have
// closed a cycle.
func TestGraphStaysAcyclicProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 10).Draw(rt, "n")
		g := NewTaskGraph()
		ids := make([]string, n)
		for i := 0; i < n; i++ {
			ids[i] = fmt.Sprintf("t%d", i)
			require.NoError(rt, g.AddTask(ids[i], types.CapabilityActivity, nil))
		}

		edges := rapid.IntRange(1, 3*n).Draw(rt, "edges")
		for i := 0; i < edges; i++ {
			from := ids[rapid.IntRange(0, n-1).Draw(rt, "from")]
			to := ids[rapid.IntRange(0, n-1).Draw(rt, "to")]

			err := g.AddDependency(from, to)
			if err != nil {
				// Rejected edges are self-loops or would be reachable
				// the other way around.
				if from != to {
					assert.True(rt, g.DependsTransitively(to, from),
						"edge %s -> %s rejected without a cycle", from, to)
				}
				continue
			}
			// Accepted edges are one-directional.
			assert.True(rt, g.DependsTransitively(from, to))
			assert.False(rt, g.DependsTransitively(to, from))
		}

		// The whole graph drains: repeatedly complete ready tasks until done.
		for !g.Done() {
			ready := g.Ready()
			require.NotEmpty(rt, ready, "acyclic graph must always make progress")
			for _, task := range ready {
				require.NoError(rt, g.MarkDispatched(task.ID))
				require.NoError(rt, g.MarkSucceeded(task.ID, &types.TaskOutput{}))
			}
		}
	})
}
