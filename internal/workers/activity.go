package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/pkg/types"
)

// activityEntry is one catalog activity, priced per participant. Slot
// hours are relative to the trip's second day so activities never collide
// with arrival-day transport.
type activityEntry struct {
	name      string
	startHour int
	endHour   int
	perPerson float64
	tags      []string
	dayOffset int
}

// activityCatalog keys category to its offerings, best-fit first.
var activityCatalog = map[string][]activityEntry{
	"culture": {
		{"Museum Tour", 10, 13, 30, []string{"indoor", "city-center"}, 1},
		{"Historical Walking Tour", 14, 17, 25, []string{"outdoor", "city-center"}, 1},
		{"Art Gallery Experience", 10, 12, 18, []string{"indoor", "quiet"}, 2},
	},
	"adventure": {
		{"Kayaking Tour", 9, 12, 55, []string{"outdoor", "near-beach"}, 1},
		{"Rock Climbing", 13, 16, 60, []string{"outdoor"}, 1},
		{"Zip Line Adventure", 10, 14, 85, []string{"outdoor"}, 2},
	},
	"food": {
		{"Food Walking Tour", 11, 14, 60, []string{"outdoor", "city-center"}, 1},
		{"Cooking Class", 15, 19, 75, []string{"indoor"}, 1},
		{"Wine Tasting", 17, 19, 50, []string{"indoor", "nightlife"}, 2},
	},
	"nature": {
		{"Botanical Garden Visit", 10, 12, 15, []string{"outdoor", "quiet"}, 1},
		{"Hiking Expedition", 8, 13, 30, []string{"outdoor"}, 2},
		{"Beach & Snorkeling", 10, 14, 60, []string{"outdoor", "near-beach"}, 2},
	},
	"entertainment": {
		{"Theater Show", 19, 22, 95, []string{"indoor", "nightlife", "city-center"}, 1},
		{"Comedy Club", 20, 22, 30, []string{"indoor", "nightlife"}, 2},
		{"Escape Room", 16, 18, 32, []string{"indoor"}, 2},
	},
	"general": {
		{"City Highlights Tour", 10, 13, 35, []string{"outdoor", "city-center"}, 1},
		{"River Cruise", 15, 17, 28, []string{"outdoor"}, 1},
		{"Observation Deck Visit", 18, 19, 22, []string{"indoor", "city-center"}, 2},
	},
}

// ActivityWorker serves the ACTIVITY capability over the static catalog.
type ActivityWorker struct{}

// NewActivityWorker creates an activity worker.
func NewActivityWorker() *ActivityWorker {
	return &ActivityWorker{}
}

// Capability implements Worker.
func (w *ActivityWorker) Capability() types.Capability {
	return types.CapabilityActivity
}

// Handle returns the category's offerings scheduled into the trip window,
// catalog order preserved as the ranking.
func (w *ActivityWorker) Handle(ctx context.Context, inv *dispatch.Invocation) (*types.TaskOutput, error) {
	var payload types.ActivitySearchPayload
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid activity payload: %w", err)
	}
	if payload.Participants < 1 {
		return nil, fmt.Errorf("at least one participant is required")
	}

	entries, ok := activityCatalog[payload.Category]
	if !ok {
		entries = activityCatalog["culture"]
	}

	tripDays := int(payload.To.Sub(payload.From).Hours() / 24)
	var candidates []types.Option
	for _, e := range entries {
		day := e.dayOffset
		if day > tripDays {
			day = tripDays
		}
		slot := payload.From.AddDate(0, 0, day)
		candidates = append(candidates, types.Option{
			Ref:       fmt.Sprintf("activity:%s:%s", payload.Category, slug(e.name)),
			Name:      fmt.Sprintf("%s in %s", e.name, payload.Destination),
			TotalCost: e.perPerson * float64(payload.Participants),
			Window: types.TimeWindow{
				Start: atHour(slot, e.startHour),
				End:   atHour(slot, e.endHour),
			},
			Available: true,
			Tags:      e.tags,
			Location:  payload.Destination,
		})
	}

	return &types.TaskOutput{
		TaskID:     inv.TaskID,
		Capability: types.CapabilityActivity,
		Candidates: candidates,
	}, nil
}
