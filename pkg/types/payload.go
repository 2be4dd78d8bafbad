package types

import (
	"time"
)

// Per-capability task payloads. The graph builder constructs these and
// marshals them into Task.Payload; the dispatch machinery treats the bytes
// as opaque and only the target worker unmarshals them again.

// HotelSearchPayload asks a HOTEL worker for stay options.
type HotelSearchPayload struct {
	Destination string    `json:"destination"`
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	Guests      int       `json:"guests"`
	MaxBudget   float64   `json:"max_budget"`
	MinRating   float64   `json:"min_rating,omitempty"`
	Preferences []string  `json:"preferences,omitempty"`
}

// TransportSearchPayload asks a TRANSPORT worker for travel options.
type TransportSearchPayload struct {
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartDate    time.Time `json:"depart_date"`
	Travelers     int       `json:"travelers"`
	MaxBudget     float64   `json:"max_budget"`
	PreferredMode string    `json:"preferred_mode,omitempty"`
}

// ActivitySearchPayload asks an ACTIVITY worker for activity options in
// one category.
type ActivitySearchPayload struct {
	Destination  string    `json:"destination"`
	Category     string    `json:"category"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Participants int       `json:"participants"`
	MaxBudget    float64   `json:"max_budget"`
	Preferences  []string  `json:"preferences,omitempty"`
}

// BudgetCheckPayload asks a BUDGET worker to validate aggregated spend.
// The selected costs arrive as dependency inputs at invocation time.
type BudgetCheckPayload struct {
	Ceiling    float64          `json:"ceiling"`
	Currency   string           `json:"currency,omitempty"`
	Allocation BudgetAllocation `json:"allocation"`
}

// ItineraryAssemblyPayload asks an ITINERARY worker to assemble the final
// plan. The graph builder fills only the request; the orchestrator rewrites
// the payload at the assembly gate with the post-resolution selections so
// the worker renders exactly what survived conflict resolution.
type ItineraryAssemblyPayload struct {
	Request TripRequest `json:"request"`

	Hotel      *Option  `json:"hotel,omitempty"`
	Transport  *Option  `json:"transport,omitempty"`
	Activities []Option `json:"activities,omitempty"`
	TotalCost  float64  `json:"total_cost,omitempty"`
}
