package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tripweave/orchestrator/pkg/types"
)

func TestValidatePayload(t *testing.T) {
	valid := []byte(`{"destination":"Paris","check_in":"2026-09-10T00:00:00Z","check_out":"2026-09-15T00:00:00Z","guests":2}`)
	assert.NoError(t, ValidatePayload(types.CapabilityHotel, valid))

	missing := []byte(`{"destination":"Paris"}`)
	err := ValidatePayload(types.CapabilityHotel, missing)
	var invalid *types.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)

	garbage := []byte(`{not json`)
	assert.ErrorAs(t, ValidatePayload(types.CapabilityBudget, garbage), &invalid)

	assert.Error(t, ValidatePayload(types.Capability("bogus"), valid))
}
