package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripweave/orchestrator/pkg/types"
)

func budgetConflict() types.Conflict {
	return types.Conflict{
		ID:      "c-1",
		Kind:    types.ConflictBudgetExceeded,
		TaskIDs: []string{"hotel", "transport"},
		Detail:  "projected cost 3400.00 exceeds budget ceiling 3000.00",
	}
}

func someProposals() []types.Resolution {
	return []types.Resolution{
		{Description: "cheaper hotel", TaskID: "hotel", CandidateIndex: 2},
		{Description: "cheaper flight", TaskID: "transport", CandidateIndex: 1},
	}
}

func TestEscalateOpensPendingRequest(t *testing.T) {
	gate := NewGate(nil, nil)

	req := gate.Escalate("run-1", budgetConflict(), someProposals())
	require.NotNil(t, req)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "run-1", req.RunID)
	assert.Equal(t, types.DecisionPending, req.Decision)
	assert.Equal(t, -1, req.ChosenIndex)
	assert.Len(t, req.Proposed, 2)
	assert.WithinDuration(t, time.Now().Add(DefaultApprovalTimeout), req.Deadline, time.Second)

	assert.True(t, gate.Pending("run-1"))
	assert.False(t, gate.Pending("run-2"))
	require.NotNil(t, gate.Request(req.ID))
	assert.Nil(t, gate.Request("nope"))
}

func TestDecideApprovedWakesWaiter(t *testing.T) {
	gate := NewGate(nil, nil)
	req := gate.Escalate("run-1", budgetConflict(), someProposals())

	var wg sync.WaitGroup
	wg.Add(1)
	var settled *types.ApprovalRequest
	go func() {
		defer wg.Done()
		var err error
		settled, err = gate.Await(context.Background(), req.ID)
		assert.NoError(t, err)
	}()

	time.Sleep(10 * time.Millisecond)
	decided, err := gate.Decide(req.ID, types.DecisionApproved, 1)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionApproved, decided.Decision)
	assert.Equal(t, 1, decided.ChosenIndex)
	assert.NotNil(t, decided.DecidedAt)

	wg.Wait()
	require.NotNil(t, settled)
	assert.Equal(t, types.DecisionApproved, settled.Decision)
	assert.False(t, gate.Pending("run-1"))
}

func TestDecideValidation(t *testing.T) {
	gate := NewGate(nil, nil)
	req := gate.Escalate("run-1", budgetConflict(), someProposals())

	_, err := gate.Decide(req.ID, types.DecisionExpired, -1)
	assert.ErrorContains(t, err, "invalid decision")

	_, err = gate.Decide(req.ID, types.DecisionApproved, 2)
	assert.ErrorContains(t, err, "out of range")

	_, err = gate.Decide(req.ID, types.DecisionApproved, -2)
	assert.ErrorContains(t, err, "out of range")

	_, err = gate.Decide("nope", types.DecisionApproved, -1)
	assert.ErrorContains(t, err, "not found")

	// Approve-as-is is always in range.
	_, err = gate.Decide(req.ID, types.DecisionApproved, -1)
	require.NoError(t, err)

	// Settled requests cannot be re-decided.
	_, err = gate.Decide(req.ID, types.DecisionRejected, -1)
	assert.ErrorContains(t, err, "already settled")
}

func TestRejectSettlesRequest(t *testing.T) {
	gate := NewGate(nil, nil)
	req := gate.Escalate("run-1", budgetConflict(), nil)

	decided, err := gate.Decide(req.ID, types.DecisionRejected, -1)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionRejected, decided.Decision)

	settled, err := gate.Await(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionRejected, settled.Decision)
}

func TestRequestExpiresAtDeadline(t *testing.T) {
	gate := NewGate(&Config{ApprovalTimeout: 30 * time.Millisecond}, nil)
	req := gate.Escalate("run-1", budgetConflict(), someProposals())

	settled, err := gate.Await(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionExpired, settled.Decision)
	assert.NotNil(t, settled.DecidedAt)

	_, err = gate.Decide(req.ID, types.DecisionApproved, -1)
	assert.ErrorContains(t, err, "already settled")
	assert.False(t, gate.Pending("run-1"))
}

func TestAwaitHonorsContext(t *testing.T) {
	gate := NewGate(nil, nil)
	req := gate.Escalate("run-1", budgetConflict(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gate.Await(ctx, req.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = gate.Await(context.Background(), "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestListOrdersByDeadline(t *testing.T) {
	gate := NewGate(&Config{ApprovalTimeout: time.Minute}, nil)

	first := gate.Escalate("run-1", budgetConflict(), nil)
	time.Sleep(5 * time.Millisecond)
	second := gate.Escalate("run-1", budgetConflict(), nil)
	gate.Escalate("run-2", budgetConflict(), nil)

	reqs := gate.List("run-1")
	require.Len(t, reqs, 2)
	assert.Equal(t, first.ID, reqs[0].ID)
	assert.Equal(t, second.ID, reqs[1].ID)

	assert.Len(t, gate.List(""), 3)
}

func TestObserverSeesOpenAndSettle(t *testing.T) {
	var mu sync.Mutex
	var decisions []types.Decision
	gate := NewGate(nil, func(req *types.ApprovalRequest) {
		mu.Lock()
		decisions = append(decisions, req.Decision)
		mu.Unlock()
	})

	req := gate.Escalate("run-1", budgetConflict(), nil)
	_, err := gate.Decide(req.ID, types.DecisionApproved, -1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []types.Decision{types.DecisionPending, types.DecisionApproved}, decisions)
}
