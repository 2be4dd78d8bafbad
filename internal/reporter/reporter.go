// Package reporter fans orchestrator events out to observability sinks.
package reporter

import (
	"context"
	"sync"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// Reporter is one event sink.
type Reporter interface {
	// Name returns the reporter name.
	Name() string

	// Report delivers one event. Implementations may buffer.
	Report(ctx context.Context, event *types.Event) error

	// Flush pushes any buffered data out.
	Flush(ctx context.Context) error

	// Close flushes and releases resources.
	Close(ctx context.Context) error
}

// Manager pumps an event stream into a set of reporters. A failing
// reporter is logged and skipped; it never blocks the others.
type Manager struct {
	reporters []Reporter
	wg        sync.WaitGroup
}

// NewManager creates a manager over the given reporters.
func NewManager(reporters ...Reporter) *Manager {
	return &Manager{reporters: reporters}
}

// Run consumes events until the channel closes, then flushes and closes
// every reporter. It is intended to run in its own goroutine.
func (m *Manager) Run(ctx context.Context, events <-chan *types.Event) {
	m.wg.Add(1)
	defer m.wg.Done()

	for event := range events {
		for _, r := range m.reporters {
			if err := r.Report(ctx, event); err != nil {
				logger.Warn("reporter %s failed: %v", r.Name(), err)
			}
		}
	}

	for _, r := range m.reporters {
		if err := r.Close(ctx); err != nil {
			logger.Warn("reporter %s close failed: %v", r.Name(), err)
		}
	}
}

// Wait blocks until Run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
