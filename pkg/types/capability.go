package types

// Capability is the category of work a task performs and the kind of
// worker that can perform it.
type Capability string

const (
	// CapabilityHotel searches and holds hotel options.
	CapabilityHotel Capability = "hotel"
	// CapabilityTransport searches and holds transport options.
	CapabilityTransport Capability = "transport"
	// CapabilityActivity searches and holds activity options.
	CapabilityActivity Capability = "activity"
	// CapabilityBudget validates aggregated costs against the budget ceiling.
	CapabilityBudget Capability = "budget"
	// CapabilityItinerary assembles the final itinerary from all bookings.
	CapabilityItinerary Capability = "itinerary"
)

// AllCapabilities lists every known capability tag.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityHotel,
		CapabilityTransport,
		CapabilityActivity,
		CapabilityBudget,
		CapabilityItinerary,
	}
}

// Valid reports whether c is a known capability tag.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityHotel, CapabilityTransport, CapabilityActivity,
		CapabilityBudget, CapabilityItinerary:
		return true
	}
	return false
}
