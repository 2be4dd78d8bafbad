// Package stats collects per-capability task latency distributions.
package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"tripweave/orchestrator/pkg/types"
)

// Histogram bounds: 1ms to 10 minutes at 3 significant figures covers any
// task the dispatcher would still be waiting on.
const (
	minLatencyMs = 1
	maxLatencyMs = int64(10 * time.Minute / time.Millisecond)
	sigFigs      = 3
)

// CapabilitySummary is the exported view of one capability's timings.
type CapabilitySummary struct {
	Capability types.Capability `json:"capability"`
	Count      int64            `json:"count"`
	Failures   int64            `json:"failures"`
	MinMs      int64            `json:"min_ms"`
	MaxMs      int64            `json:"max_ms"`
	MeanMs     float64          `json:"mean_ms"`
	P50Ms      int64            `json:"p50_ms"`
	P95Ms      int64            `json:"p95_ms"`
	P99Ms      int64            `json:"p99_ms"`
}

// Collector records task latencies into one histogram per capability. It
// implements the dispatcher's LatencyRecorder.
type Collector struct {
	mu       sync.Mutex
	hists    map[types.Capability]*hdrhistogram.Histogram
	failures map[types.Capability]int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		hists:    make(map[types.Capability]*hdrhistogram.Histogram),
		failures: make(map[types.Capability]int64),
	}
}

// Record adds one task execution timing.
func (c *Collector) Record(capability types.Capability, d time.Duration, success bool) {
	ms := d.Milliseconds()
	if ms < minLatencyMs {
		ms = minLatencyMs
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hists[capability]
	if !ok {
		h = hdrhistogram.New(minLatencyMs, maxLatencyMs, sigFigs)
		c.hists[capability] = h
	}
	// RecordValue only fails outside the configured bounds; clamp instead.
	if ms > maxLatencyMs {
		ms = maxLatencyMs
	}
	_ = h.RecordValue(ms)
	if !success {
		c.failures[capability]++
	}
}

// Summary exports the current distribution for every capability seen.
func (c *Collector) Summary() []CapabilitySummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CapabilitySummary, 0, len(c.hists))
	for _, capability := range types.AllCapabilities() {
		h, ok := c.hists[capability]
		if !ok {
			continue
		}
		out = append(out, CapabilitySummary{
			Capability: capability,
			Count:      h.TotalCount(),
			Failures:   c.failures[capability],
			MinMs:      h.Min(),
			MaxMs:      h.Max(),
			MeanMs:     h.Mean(),
			P50Ms:      h.ValueAtQuantile(50),
			P95Ms:      h.ValueAtQuantile(95),
			P99Ms:      h.ValueAtQuantile(99),
		})
	}
	return out
}

// Reset clears all recorded samples.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.hists {
		h.Reset()
	}
	c.failures = make(map[types.Capability]int64)
}
