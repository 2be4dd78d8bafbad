package reporter

import (
	"context"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// ConsoleReporter writes events to the process log.
type ConsoleReporter struct{}

// NewConsoleReporter creates a console reporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// Name returns the reporter name.
func (r *ConsoleReporter) Name() string {
	return "console"
}

// Report logs one event at a level matching its weight.
func (r *ConsoleReporter) Report(ctx context.Context, event *types.Event) error {
	switch event.Type {
	case types.EventTaskStateChanged:
		logger.Debug("[%s] task %s -> %s", event.RunID, event.TaskID, event.TaskState)
	case types.EventConflictDetected:
		logger.Warn("[%s] conflict detected: %s (%s)", event.RunID, event.Conflict.Kind, event.Conflict.Detail)
	case types.EventConflictResolved:
		logger.Info("[%s] conflict resolved: %s", event.RunID, event.Conflict.Detail)
	case types.EventApprovalRequested:
		logger.Warn("[%s] approval requested: %s (deadline %s)", event.RunID, event.Approval.ID, event.Approval.Deadline)
	case types.EventApprovalDecided:
		logger.Info("[%s] approval %s: %s", event.RunID, event.Approval.ID, event.Approval.Decision)
	case types.EventRunStateChanged:
		logger.Info("[%s] run -> %s %s", event.RunID, event.RunStatus, event.Detail)
	default:
		logger.Debug("[%s] %s", event.RunID, event.Type)
	}
	return nil
}

// Flush is a no-op; the console reporter never buffers.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (r *ConsoleReporter) Close(ctx context.Context) error {
	return nil
}
