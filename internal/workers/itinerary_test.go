package workers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripweave/orchestrator/pkg/types"
)

func assemblyPayload() types.ItineraryAssemblyPayload {
	return types.ItineraryAssemblyPayload{
		Request: types.TripRequest{
			Destination: "Paris",
			Origin:      "London",
			StartDate:   date(2026, 9, 10),
			EndDate:     date(2026, 9, 15),
			Budget:      3000,
			Travelers:   2,
			Currency:    "USD",
		},
		Hotel:     &types.Option{Name: "Grand", TotalCost: 1100},
		Transport: &types.Option{Name: "Eurostar", TotalCost: 300},
		Activities: []types.Option{
			{Name: "City Tour", TotalCost: 120},
		},
	}
}

func TestItineraryAssembly(t *testing.T) {
	w := NewItineraryWorker()

	out, err := w.Handle(context.Background(), invocation(t, "itinerary", assemblyPayload()))
	require.NoError(t, err)

	var it types.Itinerary
	require.NoError(t, json.Unmarshal(out.Report, &it))
	assert.Equal(t, "run-1", it.TripID)
	assert.Equal(t, "Paris", it.Destination)
	assert.Equal(t, "USD", it.Currency)
	require.NotNil(t, it.Hotel)
	assert.Equal(t, "Grand", it.Hotel.Name)
	assert.InDelta(t, 1520, it.TotalCost, 0.01, "summed when not precomputed")
	assert.Empty(t, it.Notes)
	assert.False(t, it.CreatedAt.IsZero())
}

func TestItineraryKeepsPrecomputedTotal(t *testing.T) {
	w := NewItineraryWorker()
	payload := assemblyPayload()
	payload.TotalCost = 1499.5

	out, err := w.Handle(context.Background(), invocation(t, "itinerary", payload))
	require.NoError(t, err)

	var it types.Itinerary
	require.NoError(t, json.Unmarshal(out.Report, &it))
	assert.InDelta(t, 1499.5, it.TotalCost, 0.01)
}

func TestItineraryNotesOverBudgetTotal(t *testing.T) {
	w := NewItineraryWorker()
	payload := assemblyPayload()
	payload.TotalCost = 3400

	out, err := w.Handle(context.Background(), invocation(t, "itinerary", payload))
	require.NoError(t, err)

	var it types.Itinerary
	require.NoError(t, json.Unmarshal(out.Report, &it))
	require.Len(t, it.Notes, 1)
	assert.Contains(t, it.Notes[0], "exceeds the requested budget")
}

func TestItineraryRequiresSelections(t *testing.T) {
	w := NewItineraryWorker()

	payload := assemblyPayload()
	payload.Hotel = nil
	_, err := w.Handle(context.Background(), invocation(t, "itinerary", payload))
	assert.ErrorContains(t, err, "without a hotel selection")

	payload = assemblyPayload()
	payload.Transport = nil
	_, err = w.Handle(context.Background(), invocation(t, "itinerary", payload))
	assert.ErrorContains(t, err, "without a transport selection")
}
