package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"tripweave/orchestrator/pkg/types"
)

// Well-known task ids within a trip graph. Activity tasks are suffixed
// with their category ("activity:museums").
const (
	TaskIDHotel     = "hotel"
	TaskIDTransport = "transport"
	TaskIDBudget    = "budget"
	TaskIDItinerary = "itinerary"

	activityTaskPrefix = "activity:"
	// DefaultActivityCategory is used when the request names no categories.
	DefaultActivityCategory = "general"
)

// ActivityTaskID returns the task id for an activity category.
func ActivityTaskID(category string) string {
	return activityTaskPrefix + category
}

// Builder deterministically maps a trip request to a task graph. Building
// is pure construction: no I/O, no side effects.
type Builder struct{}

// NewBuilder creates a new graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build produces the fixed task template for a request:
// one HOTEL task, one TRANSPORT task, one ACTIVITY task per requested
// category (at least one "general" task), one BUDGET task depending on
// every search task, and one ITINERARY task depending on BUDGET.
func (b *Builder) Build(req *types.TripRequest) (*TaskGraph, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	alloc := types.AllocateBudget(req)
	g := NewTaskGraph()

	hotelPayload, err := marshalPayload(types.CapabilityHotel, &types.HotelSearchPayload{
		Destination: req.Destination,
		CheckIn:     req.StartDate,
		CheckOut:    req.EndDate,
		Guests:      req.Travelers,
		MaxBudget:   alloc.Hotel,
		MinRating:   req.MinHotelRating,
		Preferences: req.HardPreferences,
	})
	if err != nil {
		return nil, err
	}
	if err := g.AddTask(TaskIDHotel, types.CapabilityHotel, hotelPayload); err != nil {
		return nil, err
	}

	transportPayload, err := marshalPayload(types.CapabilityTransport, &types.TransportSearchPayload{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartDate:    req.StartDate,
		Travelers:     req.Travelers,
		MaxBudget:     alloc.Transport,
		PreferredMode: req.PreferredTransport,
	})
	if err != nil {
		return nil, err
	}
	if err := g.AddTask(TaskIDTransport, types.CapabilityTransport, transportPayload); err != nil {
		return nil, err
	}

	categories := normalizeCategories(req.ActivityCategories)
	perCategoryBudget := alloc.Activities / float64(len(categories))
	activityIDs := make([]string, 0, len(categories))
	for _, category := range categories {
		payload, err := marshalPayload(types.CapabilityActivity, &types.ActivitySearchPayload{
			Destination:  req.Destination,
			Category:     category,
			From:         req.StartDate,
			To:           req.EndDate,
			Participants: req.Travelers,
			MaxBudget:    perCategoryBudget,
			Preferences:  req.HardPreferences,
		})
		if err != nil {
			return nil, err
		}
		id := ActivityTaskID(category)
		if err := g.AddTask(id, types.CapabilityActivity, payload); err != nil {
			return nil, &types.InvalidRequestError{
				Field:   "activity_categories",
				Message: fmt.Sprintf("duplicate category: %s", category),
			}
		}
		activityIDs = append(activityIDs, id)
	}

	budgetPayload, err := marshalPayload(types.CapabilityBudget, &types.BudgetCheckPayload{
		Ceiling:    req.Budget,
		Currency:   req.Currency,
		Allocation: alloc,
	})
	if err != nil {
		return nil, err
	}
	if err := g.AddTask(TaskIDBudget, types.CapabilityBudget, budgetPayload); err != nil {
		return nil, err
	}

	itineraryPayload, err := marshalPayload(types.CapabilityItinerary, &types.ItineraryAssemblyPayload{
		Request: *req,
	})
	if err != nil {
		return nil, err
	}
	if err := g.AddTask(TaskIDItinerary, types.CapabilityItinerary, itineraryPayload); err != nil {
		return nil, err
	}

	// BUDGET depends on every search task; ITINERARY depends on BUDGET.
	budgetDeps := append([]string{TaskIDHotel, TaskIDTransport}, activityIDs...)
	for _, dep := range budgetDeps {
		if err := g.AddDependency(TaskIDBudget, dep); err != nil {
			return nil, err
		}
	}
	if err := g.AddDependency(TaskIDItinerary, TaskIDBudget); err != nil {
		return nil, err
	}

	return g, nil
}

// normalizeCategories lowercases, trims and deduplicates the requested
// categories, defaulting to a single general category.
func normalizeCategories(categories []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		out = []string{DefaultActivityCategory}
	}
	return out
}

// marshalPayload marshals a typed payload and checks it against the
// capability's contract before it enters the graph.
func marshalPayload(c types.Capability, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", c, err)
	}
	if err := ValidatePayload(c, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
