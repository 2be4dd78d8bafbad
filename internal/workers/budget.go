package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/pkg/types"
)

// BudgetWorker serves the BUDGET capability. It never rejects an
// over-budget plan; it reports the projection and leaves enforcement to the
// conflict resolver.
type BudgetWorker struct{}

// NewBudgetWorker creates a budget worker.
func NewBudgetWorker() *BudgetWorker {
	return &BudgetWorker{}
}

// Capability implements Worker.
func (w *BudgetWorker) Capability() types.Capability {
	return types.CapabilityBudget
}

// Handle sums the selected cost of every upstream search output and builds
// the budget report.
func (w *BudgetWorker) Handle(ctx context.Context, inv *dispatch.Invocation) (*types.TaskOutput, error) {
	var payload types.BudgetCheckPayload
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid budget payload: %w", err)
	}
	if len(inv.Inputs) == 0 {
		return nil, fmt.Errorf("budget check requires upstream search results")
	}

	breakdown := make(map[string]float64)
	var projected float64
	for _, in := range inv.Inputs {
		cost := in.SelectedCost()
		breakdown[string(in.Capability)] += cost
		projected += cost
	}

	report := &types.BudgetReport{
		Ceiling:    payload.Ceiling,
		Projected:  projected,
		Breakdown:  breakdown,
		WithinCap:  payload.Ceiling <= 0 || projected <= payload.Ceiling,
		Allocation: payload.Allocation,
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode budget report: %w", err)
	}

	return &types.TaskOutput{
		TaskID:     inv.TaskID,
		Capability: types.CapabilityBudget,
		Report:     raw,
	}, nil
}
