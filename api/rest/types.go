package rest

import (
	"tripweave/orchestrator/internal/stats"
	"tripweave/orchestrator/pkg/types"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents a readiness check response.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TripSubmitResponse represents a trip submission response.
type TripSubmitResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// TripListResponse represents the trip list.
type TripListResponse struct {
	Runs  []*types.RunState `json:"runs"`
	Count int               `json:"count"`
}

// DecisionRequest represents a human decision on an approval request.
type DecisionRequest struct {
	Decision types.Decision `json:"decision"`
	// ChosenIndex indexes the proposed resolutions; -1 approves as-is.
	ChosenIndex int `json:"chosen_index"`
}

// ApprovalListResponse represents the approval request list.
type ApprovalListResponse struct {
	Approvals []*types.ApprovalRequest `json:"approvals"`
	Count     int                      `json:"count"`
}

// HeartbeatRequest represents a worker liveness report.
type HeartbeatRequest struct {
	Healthy bool `json:"healthy"`
}

// WorkerListResponse represents the worker list.
type WorkerListResponse struct {
	Workers []*WorkerResponse `json:"workers"`
	Count   int               `json:"count"`
}

// WorkerResponse represents one worker with its health record.
type WorkerResponse struct {
	Worker *types.WorkerDescriptor `json:"worker"`
	Status *types.WorkerStatus     `json:"status,omitempty"`
}

// StatsResponse represents the latency statistics report.
type StatsResponse struct {
	Capabilities []stats.CapabilitySummary `json:"capabilities"`
}
