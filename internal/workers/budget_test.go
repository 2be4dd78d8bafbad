package workers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripweave/orchestrator/pkg/types"
)

func searchInputs() []*types.TaskOutput {
	return []*types.TaskOutput{
		{TaskID: "hotel", Capability: types.CapabilityHotel,
			Candidates: []types.Option{{Name: "Grand", TotalCost: 1100}}},
		{TaskID: "transport", Capability: types.CapabilityTransport,
			Candidates: []types.Option{{Name: "Eurostar", TotalCost: 300}}},
		{TaskID: "activity:general", Capability: types.CapabilityActivity,
			Candidates: []types.Option{{Name: "City Tour", TotalCost: 120}}},
	}
}

func TestBudgetAggregatesSelectedCosts(t *testing.T) {
	w := NewBudgetWorker()
	inv := invocation(t, "budget", types.BudgetCheckPayload{Ceiling: 3000})
	inv.Inputs = searchInputs()

	out, err := w.Handle(context.Background(), inv)
	require.NoError(t, err)
	require.NotEmpty(t, out.Report)

	var report types.BudgetReport
	require.NoError(t, json.Unmarshal(out.Report, &report))
	assert.InDelta(t, 1520, report.Projected, 0.01)
	assert.True(t, report.WithinCap)
	assert.InDelta(t, 1100, report.Breakdown["hotel"], 0.01)
	assert.InDelta(t, 300, report.Breakdown["transport"], 0.01)
	assert.InDelta(t, 120, report.Breakdown["activity"], 0.01)
}

func TestBudgetOverCeilingStillSucceeds(t *testing.T) {
	w := NewBudgetWorker()
	inv := invocation(t, "budget", types.BudgetCheckPayload{Ceiling: 1000})
	inv.Inputs = searchInputs()

	out, err := w.Handle(context.Background(), inv)
	require.NoError(t, err, "enforcement belongs to the resolver, not the worker")

	var report types.BudgetReport
	require.NoError(t, json.Unmarshal(out.Report, &report))
	assert.False(t, report.WithinCap)
}

func TestBudgetRequiresInputs(t *testing.T) {
	w := NewBudgetWorker()
	inv := invocation(t, "budget", types.BudgetCheckPayload{Ceiling: 3000})

	_, err := w.Handle(context.Background(), inv)
	assert.ErrorContains(t, err, "requires upstream search results")
}
