// Package types defines the core data structures for the trip orchestration engine.
//
// This package contains all the fundamental types used throughout the orchestrator,
// including:
//   - Trip requests and per-capability task payloads
//   - Task and task-state definitions
//   - Worker descriptors and health states
//   - Booking options, result sets and itineraries
//   - Conflicts, resolutions and approval requests
package types
