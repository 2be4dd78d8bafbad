package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/pkg/types"
)

// ItineraryWorker serves the ITINERARY capability: it renders the final
// plan from the post-resolution selections carried in the payload.
type ItineraryWorker struct{}

// NewItineraryWorker creates an itinerary worker.
func NewItineraryWorker() *ItineraryWorker {
	return &ItineraryWorker{}
}

// Capability implements Worker.
func (w *ItineraryWorker) Capability() types.Capability {
	return types.CapabilityItinerary
}

// Handle assembles the itinerary. A plan without a hotel or transport
// selection is rejected; it means assembly was invoked before the searches
// settled.
func (w *ItineraryWorker) Handle(ctx context.Context, inv *dispatch.Invocation) (*types.TaskOutput, error) {
	var payload types.ItineraryAssemblyPayload
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid itinerary payload: %w", err)
	}
	if payload.Hotel == nil {
		return nil, fmt.Errorf("cannot assemble itinerary without a hotel selection")
	}
	if payload.Transport == nil {
		return nil, fmt.Errorf("cannot assemble itinerary without a transport selection")
	}

	req := payload.Request
	it := &types.Itinerary{
		TripID:      inv.RunID,
		Destination: req.Destination,
		Origin:      req.Origin,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Hotel:       payload.Hotel,
		Transport:   payload.Transport,
		Activities:  payload.Activities,
		TotalCost:   payload.TotalCost,
		Currency:    req.Currency,
		CreatedAt:   time.Now(),
	}
	if payload.TotalCost == 0 {
		it.TotalCost = payload.Hotel.TotalCost + payload.Transport.TotalCost
		for _, a := range payload.Activities {
			it.TotalCost += a.TotalCost
		}
	}
	if req.Budget > 0 && it.TotalCost > req.Budget {
		it.Notes = append(it.Notes, fmt.Sprintf("total %.2f exceeds the requested budget %.2f", it.TotalCost, req.Budget))
	}

	raw, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("failed to encode itinerary: %w", err)
	}
	return &types.TaskOutput{
		TaskID:     inv.TaskID,
		Capability: types.CapabilityItinerary,
		Report:     raw,
	}, nil
}
