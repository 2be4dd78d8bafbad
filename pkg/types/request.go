package types

import (
	"time"
)

// TripRequest is a structured travel-planning request. Parsing free-form
// user input into this structure is the job of an upstream collaborator;
// the orchestration core only ever sees the structured form.
type TripRequest struct {
	Destination string    `json:"destination" yaml:"destination"`
	Origin      string    `json:"origin" yaml:"origin"`
	StartDate   time.Time `json:"start_date" yaml:"start_date"`
	EndDate     time.Time `json:"end_date" yaml:"end_date"`

	// Budget is the total ceiling for the whole trip.
	Budget   float64 `json:"budget" yaml:"budget"`
	Currency string  `json:"currency,omitempty" yaml:"currency,omitempty"`

	Travelers int `json:"travelers" yaml:"travelers"`

	// ActivityCategories requests one activity task per category.
	// An empty list yields a single "general" activity task.
	ActivityCategories []string `json:"activity_categories,omitempty" yaml:"activity_categories,omitempty"`

	// HardPreferences are constraints every accepted option must satisfy
	// (e.g. "near-beach", "city-center-only"). Contradictory pairs among
	// accepted options surface as REQUIREMENT_CONTRADICTION conflicts.
	HardPreferences []string `json:"hard_preferences,omitempty" yaml:"hard_preferences,omitempty"`

	// PreferredTransport narrows the transport search ("flight", "train", ...).
	PreferredTransport string `json:"preferred_transport,omitempty" yaml:"preferred_transport,omitempty"`

	// MinHotelRating filters hotel candidates (0 disables the filter).
	MinHotelRating float64 `json:"min_hotel_rating,omitempty" yaml:"min_hotel_rating,omitempty"`
}

// Nights returns the number of nights covered by the request.
func (r *TripRequest) Nights() int {
	return int(r.EndDate.Sub(r.StartDate).Hours() / 24)
}

// Validate checks the required fields. It returns an *InvalidRequestError
// describing the first problem found.
func (r *TripRequest) Validate() error {
	if r == nil {
		return &InvalidRequestError{Message: "request cannot be nil"}
	}
	if r.Destination == "" {
		return &InvalidRequestError{Field: "destination", Message: "destination is required"}
	}
	if r.Origin == "" {
		return &InvalidRequestError{Field: "origin", Message: "origin is required"}
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return &InvalidRequestError{Field: "dates", Message: "start and end dates are required"}
	}
	if !r.EndDate.After(r.StartDate) {
		return &InvalidRequestError{Field: "dates", Message: "date range is empty or negative"}
	}
	if r.Budget < 0 {
		return &InvalidRequestError{Field: "budget", Message: "budget cannot be negative"}
	}
	if r.Travelers < 1 {
		return &InvalidRequestError{Field: "travelers", Message: "at least one traveler is required"}
	}
	return nil
}

// BudgetAllocation splits the total budget across capabilities before any
// search runs. The split follows fixed shares adjusted by trip shape:
// longer trips shift budget toward the hotel, larger groups toward
// transport. The remainder stays as buffer.
type BudgetAllocation struct {
	Hotel      float64 `json:"hotel"`
	Transport  float64 `json:"transport"`
	Activities float64 `json:"activities"`
	Buffer     float64 `json:"buffer"`
}

const (
	hotelShare      = 0.35
	transportShare  = 0.30
	activitiesShare = 0.20
	bufferShare     = 0.15
)

// AllocateBudget computes the per-capability budget split for a request.
func AllocateBudget(r *TripRequest) BudgetAllocation {
	a := BudgetAllocation{
		Hotel:      r.Budget * hotelShare,
		Transport:  r.Budget * transportShare,
		Activities: r.Budget * activitiesShare,
		Buffer:     r.Budget * bufferShare,
	}

	// Longer trips need more hotel budget.
	if r.Nights() > 7 {
		a.Hotel *= 1.1
		a.Activities *= 0.9
	}

	// Groups need more transport budget.
	if r.Travelers > 2 {
		a.Transport *= 1.15
		a.Hotel *= 0.95
	}

	return a
}
