package types

import (
	"time"
)

// Option is one bookable candidate returned by a search capability.
// Hotel, transport and activity workers all express their results in this
// shape so the conflict resolver can reason about time windows, cost and
// availability uniformly.
type Option struct {
	// Ref is the provider's reference for the option.
	Ref  string `json:"ref"`
	Name string `json:"name"`

	// TotalCost is the full cost for all travelers over the whole stay.
	TotalCost float64 `json:"total_cost"`
	Currency  string  `json:"currency,omitempty"`

	// Window is the occupancy or travel window. For hotels, Window.Start
	// is the check-in cutoff on the first day and Window.End checkout.
	// For transport, Start is departure and End is arrival. For
	// activities, the activity's time slot.
	Window TimeWindow `json:"window"`

	// Available is the provider's availability flag at search time.
	Available bool `json:"available"`

	// Tags carry preference attributes ("near-beach", "city-center",
	// "wifi", ...) matched against the request's hard preferences.
	Tags []string `json:"tags,omitempty"`

	Rating   float64 `json:"rating,omitempty"`
	Location string  `json:"location,omitempty"`
	Mode     string  `json:"mode,omitempty"` // transport only: flight/train/...
}

// HasTag reports whether the option carries the given tag.
func (o *Option) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two windows intersect. Zero-valued windows
// never overlap anything.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	if w.Start.IsZero() || other.Start.IsZero() {
		return false
	}
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// BudgetReport is the BUDGET capability's output: the projected spend per
// capability against the requested ceiling.
type BudgetReport struct {
	Ceiling    float64            `json:"ceiling"`
	Projected  float64            `json:"projected"`
	Breakdown  map[string]float64 `json:"breakdown"`
	WithinCap  bool               `json:"within_cap"`
	Allocation BudgetAllocation   `json:"allocation"`
}

// Itinerary is the ITINERARY capability's output: the assembled plan.
type Itinerary struct {
	TripID      string    `json:"trip_id"`
	Destination string    `json:"destination"`
	Origin      string    `json:"origin"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`

	Hotel      *Option  `json:"hotel,omitempty"`
	Transport  *Option  `json:"transport,omitempty"`
	Activities []Option `json:"activities,omitempty"`

	TotalCost float64  `json:"total_cost"`
	Currency  string   `json:"currency,omitempty"`
	Notes     []string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
