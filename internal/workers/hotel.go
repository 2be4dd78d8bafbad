package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/pkg/types"
)

// hotelEntry is one catalog hotel.
type hotelEntry struct {
	name          string
	pricePerNight float64
	rating        float64
	tags          []string
	available     bool
}

// hotelCatalog keys city name (lowercase) to its hotels.
var hotelCatalog = map[string][]hotelEntry{
	"new york": {
		{"The Plaza Hotel", 450, 4.7, []string{"luxury", "city-center", "spa", "wifi"}, true},
		{"Hilton Times Square", 280, 4.3, []string{"city-center", "wifi", "gym"}, true},
		{"Pod Times Square", 150, 4.1, []string{"budget", "city-center", "wifi"}, true},
	},
	"paris": {
		{"Four Seasons Hotel George V", 850, 4.9, []string{"luxury", "city-center", "spa", "wifi"}, true},
		{"Hotel des Grands Boulevards", 220, 4.5, []string{"city-center", "wifi", "quiet"}, true},
		{"Hotel Les Jardins du Marais", 160, 4.0, []string{"budget", "wifi", "quiet"}, true},
	},
	"london": {
		{"The Savoy", 620, 4.8, []string{"luxury", "city-center", "spa", "wifi"}, true},
		{"Premier Inn County Hall", 180, 4.2, []string{"budget", "city-center", "wifi"}, true},
	},
	"tokyo": {
		{"Park Hyatt Tokyo", 600, 4.8, []string{"luxury", "city-center", "spa", "wifi"}, true},
		{"Hotel Gracery Shinjuku", 180, 4.2, []string{"budget", "city-center", "wifi", "nightlife"}, true},
	},
}

// checkInCutoffHour is the local hour of the latest arrival on check-in day.
const checkInCutoffHour = 23

// HotelWorker serves the HOTEL capability over the static catalog.
type HotelWorker struct{}

// NewHotelWorker creates a hotel worker.
func NewHotelWorker() *HotelWorker {
	return &HotelWorker{}
}

// Capability implements Worker.
func (w *HotelWorker) Capability() types.Capability {
	return types.CapabilityHotel
}

// Handle searches the catalog and returns candidates ranked by fit: within
// budget first, then by rating, then cheaper first.
func (w *HotelWorker) Handle(ctx context.Context, inv *dispatch.Invocation) (*types.TaskOutput, error) {
	var payload types.HotelSearchPayload
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid hotel payload: %w", err)
	}

	nights := int(payload.CheckOut.Sub(payload.CheckIn).Hours() / 24)
	if nights < 1 {
		return nil, fmt.Errorf("stay must cover at least one night")
	}

	entries := cityHotels(payload.Destination)
	var candidates []types.Option
	for _, e := range entries {
		if payload.MinRating > 0 && e.rating < payload.MinRating {
			continue
		}
		total := e.pricePerNight * float64(nights)
		candidates = append(candidates, types.Option{
			Ref:       fmt.Sprintf("hotel:%s", slug(e.name)),
			Name:      e.name,
			TotalCost: total,
			Window: types.TimeWindow{
				Start: cutoff(payload.CheckIn),
				End:   checkout(payload.CheckOut),
			},
			Available: e.available,
			Tags:      e.tags,
			Rating:    e.rating,
			Location:  payload.Destination,
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no hotels match in %s (min rating %.1f)", payload.Destination, payload.MinRating)
	}

	rankHotels(candidates, payload.MaxBudget)
	return &types.TaskOutput{
		TaskID:     inv.TaskID,
		Capability: types.CapabilityHotel,
		Candidates: candidates,
	}, nil
}

// cityHotels finds the catalog city whose name appears in the destination,
// defaulting to New York for unknown places the way the upstream mock does.
func cityHotels(destination string) []hotelEntry {
	dest := strings.ToLower(destination)
	for city, entries := range hotelCatalog {
		if strings.Contains(dest, city) {
			return entries
		}
	}
	return hotelCatalog["new york"]
}

// rankHotels orders candidates best-fit first.
func rankHotels(candidates []types.Option, budget float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if budget > 0 {
			aFits, bFits := a.TotalCost <= budget, b.TotalCost <= budget
			if aFits != bFits {
				return aFits
			}
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.TotalCost < b.TotalCost
	})
}

// cutoff is the check-in deadline on the first day.
func cutoff(checkIn time.Time) time.Time {
	y, m, d := checkIn.Date()
	return time.Date(y, m, d, checkInCutoffHour, 0, 0, 0, checkIn.Location())
}

// checkout is 11:00 on the last day.
func checkout(checkOut time.Time) time.Time {
	y, m, d := checkOut.Date()
	return time.Date(y, m, d, 11, 0, 0, 0, checkOut.Location())
}

// slug normalizes a display name into a stable reference component.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
