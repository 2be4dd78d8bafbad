package types

import (
	"time"
)

// WorkerHealth is the registry's view of a worker's liveness.
type WorkerHealth string

const (
	// WorkerHealthUnknown is the state before the first heartbeat.
	WorkerHealthUnknown WorkerHealth = "unknown"
	// WorkerHealthHealthy means the worker heartbeats on time.
	WorkerHealthHealthy WorkerHealth = "healthy"
	// WorkerHealthUnreachable means the worker missed too many heartbeats.
	WorkerHealthUnreachable WorkerHealth = "unreachable"
)

// WorkerDescriptor identifies a worker service and the capability it serves.
type WorkerDescriptor struct {
	ID         string            `json:"id"`
	Capability Capability        `json:"capability"`
	// Endpoint is an opaque reference the invoker understands; for the
	// HTTP invoker it is a base URL, for the local invoker it is ignored.
	Endpoint string `json:"endpoint,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`
}

// WorkerStatus is the mutable health record the registry keeps per worker.
type WorkerStatus struct {
	Health           WorkerHealth `json:"health"`
	LastHeartbeat    time.Time    `json:"last_heartbeat"`
	MissedHeartbeats int          `json:"missed_heartbeats"`
}

// WorkerEventType classifies registry events.
type WorkerEventType string

const (
	// WorkerEventRegistered fires when a worker joins the registry.
	WorkerEventRegistered WorkerEventType = "registered"
	// WorkerEventUnregistered fires when a worker leaves the registry.
	WorkerEventUnregistered WorkerEventType = "unregistered"
	// WorkerEventHealthy fires when a worker becomes healthy.
	WorkerEventHealthy WorkerEventType = "healthy"
	// WorkerEventUnreachable fires when a worker is marked unreachable.
	WorkerEventUnreachable WorkerEventType = "unreachable"
)

// WorkerEvent is emitted by the registry to watchers.
type WorkerEvent struct {
	Type     WorkerEventType   `json:"type"`
	WorkerID string            `json:"worker_id"`
	Worker   *WorkerDescriptor `json:"worker,omitempty"`
}
