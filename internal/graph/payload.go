package graph

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"tripweave/orchestrator/pkg/types"
)

// payloadContracts lists the JSONPath expressions that must yield a value
// in every payload of a capability. Validation happens at the graph
// boundary so dispatch never inspects payload bytes.
var payloadContracts = map[types.Capability][]string{
	types.CapabilityHotel: {
		"$.destination", "$.check_in", "$.check_out", "$.guests",
	},
	types.CapabilityTransport: {
		"$.origin", "$.destination", "$.depart_date", "$.travelers",
	},
	types.CapabilityActivity: {
		"$.destination", "$.category", "$.from", "$.to",
	},
	types.CapabilityBudget: {
		"$.ceiling", "$.allocation",
	},
	types.CapabilityItinerary: {
		"$.request.destination", "$.request.origin",
	},
}

// ValidatePayload checks raw payload bytes against the capability's
// contract. A missing required field is an invalid-request condition.
func ValidatePayload(c types.Capability, raw []byte) error {
	contract, ok := payloadContracts[c]
	if !ok {
		return fmt.Errorf("no payload contract for capability: %s", c)
	}

	data, err := oj.Parse(raw)
	if err != nil {
		return &types.InvalidRequestError{
			Field:   string(c),
			Message: fmt.Sprintf("payload is not valid JSON: %v", err),
		}
	}

	for _, expr := range contract {
		path, err := jp.ParseString(expr)
		if err != nil {
			return fmt.Errorf("invalid contract expression '%s': %w", expr, err)
		}
		results := path.Get(data)
		if len(results) == 0 || results[0] == nil {
			return &types.InvalidRequestError{
				Field:   string(c),
				Message: fmt.Sprintf("payload missing required field %s", expr),
			}
		}
	}
	return nil
}
