package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripweave/orchestrator/pkg/types"
)

func TestCollectorRecordsPerCapability(t *testing.T) {
	c := NewCollector()

	for i := 1; i <= 100; i++ {
		c.Record(types.CapabilityHotel, time.Duration(i)*time.Millisecond, true)
	}
	c.Record(types.CapabilityTransport, 40*time.Millisecond, true)
	c.Record(types.CapabilityTransport, 60*time.Millisecond, false)

	summary := c.Summary()
	require.Len(t, summary, 2)

	// Summaries follow capability declaration order.
	hotel := summary[0]
	assert.Equal(t, types.CapabilityHotel, hotel.Capability)
	assert.Equal(t, int64(100), hotel.Count)
	assert.Zero(t, hotel.Failures)
	assert.Equal(t, int64(1), hotel.MinMs)
	assert.InDelta(t, 100, hotel.MaxMs, 1)
	assert.InDelta(t, 50, hotel.P50Ms, 2)
	assert.InDelta(t, 95, hotel.P95Ms, 2)
	assert.InDelta(t, 50.5, hotel.MeanMs, 1)

	transport := summary[1]
	assert.Equal(t, int64(2), transport.Count)
	assert.Equal(t, int64(1), transport.Failures)
}

func TestCollectorClampsOutOfRangeSamples(t *testing.T) {
	c := NewCollector()

	c.Record(types.CapabilityHotel, 0, true)
	c.Record(types.CapabilityHotel, time.Hour, true)

	summary := c.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].Count)
	assert.Equal(t, int64(minLatencyMs), summary[0].MinMs)
	assert.InDelta(t, maxLatencyMs, summary[0].MaxMs, float64(maxLatencyMs)*0.01)
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.Record(types.CapabilityBudget, 5*time.Millisecond, false)

	c.Reset()
	summary := c.Summary()
	require.Len(t, summary, 1, "histograms survive a reset, emptied")
	assert.Zero(t, summary[0].Count)
	assert.Zero(t, summary[0].Failures)
}

func TestCollectorEmpty(t *testing.T) {
	assert.Empty(t, NewCollector().Summary())
}
