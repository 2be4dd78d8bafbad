package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/internal/escalation"
	"tripweave/orchestrator/internal/orchestrator"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/internal/stats"
	"tripweave/orchestrator/internal/workers"
	"tripweave/orchestrator/pkg/types"
)

// newTestServer wires builtin workers behind a started orchestrator and
// returns the API server over it.
func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()

	reg := registry.NewInMemoryRegistry(3)
	inv := workers.NewLocalInvoker()
	_, err := workers.RegisterBuiltins(context.Background(), reg, inv)
	require.NoError(t, err)

	cfg := orchestrator.DefaultConfig()
	cfg.Dispatch = &dispatch.Config{
		FanOut:         5,
		TaskTimeout:    2 * time.Second,
		RetryLimit:     1,
		RetryBackoff:   5 * time.Millisecond,
		ResolveTimeout: 200 * time.Millisecond,
		ResolveBackoff: 10 * time.Millisecond,
	}
	cfg.Escalation = &escalation.Config{ApprovalTimeout: time.Minute}

	collector := stats.NewCollector()
	orch := orchestrator.New(cfg, reg, inv, orchestrator.WithRecorder(collector))
	require.NoError(t, orch.Start())
	t.Cleanup(orch.Stop)

	return NewServer(orch, collector, DefaultConfig()), orch
}

// doJSON performs one request against the app and decodes the response.
func doJSON(t *testing.T, s *Server, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, 10000)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func apiTripRequest(budget float64) *types.TripRequest {
	return &types.TripRequest{
		Destination: "Paris",
		Origin:      "London",
		StartDate:   time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Budget:      budget,
		Travelers:   2,
	}
}

// waitForRunStatus polls the status endpoint until the run settles.
func waitForRunStatus(t *testing.T, s *Server, runID string, want types.RunStatus) *types.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var state types.RunState
		code := doJSON(t, s, http.MethodGet, "/api/v1/trips/"+runID, nil, &state)
		require.Equal(t, http.StatusOK, code)
		if state.Status == want {
			return &state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run never reached %s", want)
	return nil
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t)

	var health HealthResponse
	assert.Equal(t, http.StatusOK, doJSON(t, s, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "healthy", health.Status)

	var ready ReadyResponse
	assert.Equal(t, http.StatusOK, doJSON(t, s, http.MethodGet, "/api/v1/ready", nil, &ready))
	assert.True(t, ready.Ready)
}

func TestSubmitTripLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	var submitted TripSubmitResponse
	code := doJSON(t, s, http.MethodPost, "/api/v1/trips", apiTripRequest(3000), &submitted)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, submitted.RunID)
	assert.Equal(t, "pending", submitted.Status)

	state := waitForRunStatus(t, s, submitted.RunID, types.RunStatusCompleted)
	assert.Len(t, state.Tasks, 5)

	var it types.Itinerary
	code = doJSON(t, s, http.MethodGet, "/api/v1/trips/"+submitted.RunID+"/itinerary", nil, &it)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, submitted.RunID, it.TripID)
	assert.NotNil(t, it.Hotel)

	var list TripListResponse
	code = doJSON(t, s, http.MethodGet, "/api/v1/trips", nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, list.Count)
}

func TestSubmitTripRejectsInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/trips", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, 10000)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Structurally valid but semantically empty requests are rejected too.
	var errResp ErrorResponse
	code := doJSON(t, s, http.MethodPost, "/api/v1/trips", &types.TripRequest{}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", errResp.Error)
}

func TestGetTripNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	var errResp ErrorResponse
	code := doJSON(t, s, http.MethodGet, "/api/v1/trips/nope", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errResp.Error)
}

func TestApprovalFlowOverAPI(t *testing.T) {
	s, _ := newTestServer(t)

	var submitted TripSubmitResponse
	code := doJSON(t, s, http.MethodPost, "/api/v1/trips", apiTripRequest(1000), &submitted)
	require.Equal(t, http.StatusCreated, code)

	waitForRunStatus(t, s, submitted.RunID, types.RunStatusPendingApproval)

	// Assembly has not run yet.
	var errResp ErrorResponse
	code = doJSON(t, s, http.MethodGet, "/api/v1/trips/"+submitted.RunID+"/itinerary", nil, &errResp)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_ready", errResp.Error)

	var approvals ApprovalListResponse
	code = doJSON(t, s, http.MethodGet, "/api/v1/approvals?run_id="+submitted.RunID, nil, &approvals)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, approvals.Count)
	reqID := approvals.Approvals[0].ID

	// Expired is not a valid human decision.
	code = doJSON(t, s, http.MethodPost, "/api/v1/approvals/"+reqID+"/decision",
		&DecisionRequest{Decision: types.DecisionExpired, ChosenIndex: -1}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, s, http.MethodPost, "/api/v1/approvals/nope/decision",
		&DecisionRequest{Decision: types.DecisionApproved, ChosenIndex: -1}, &errResp)
	assert.Equal(t, http.StatusNotFound, code)

	var settled types.ApprovalRequest
	code = doJSON(t, s, http.MethodPost, "/api/v1/approvals/"+reqID+"/decision",
		&DecisionRequest{Decision: types.DecisionApproved, ChosenIndex: -1}, &settled)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, types.DecisionApproved, settled.Decision)

	waitForRunStatus(t, s, submitted.RunID, types.RunStatusCompleted)

	// A settled request cannot be re-decided.
	code = doJSON(t, s, http.MethodPost, "/api/v1/approvals/"+reqID+"/decision",
		&DecisionRequest{Decision: types.DecisionRejected, ChosenIndex: -1}, &errResp)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAbortTripOverAPI(t *testing.T) {
	s, _ := newTestServer(t)

	var errResp ErrorResponse
	code := doJSON(t, s, http.MethodDelete, "/api/v1/trips/nope", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, code)

	var submitted TripSubmitResponse
	code = doJSON(t, s, http.MethodPost, "/api/v1/trips", apiTripRequest(1000), &submitted)
	require.Equal(t, http.StatusCreated, code)
	waitForRunStatus(t, s, submitted.RunID, types.RunStatusPendingApproval)

	var ok SuccessResponse
	code = doJSON(t, s, http.MethodDelete, "/api/v1/trips/"+submitted.RunID, nil, &ok)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, ok.Success)

	waitForRunStatus(t, s, submitted.RunID, types.RunStatusAborted)

	code = doJSON(t, s, http.MethodDelete, "/api/v1/trips/"+submitted.RunID, nil, &errResp)
	assert.Equal(t, http.StatusConflict, code, "already terminal")
}

func TestWorkerEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	desc := &types.WorkerDescriptor{
		ID:         "hotel-remote-1",
		Capability: types.CapabilityHotel,
		Endpoint:   "http://hotel-remote-1:9100",
	}

	var ok SuccessResponse
	code := doJSON(t, s, http.MethodPost, "/api/v1/workers/register", desc, &ok)
	require.Equal(t, http.StatusCreated, code)

	var errResp ErrorResponse
	code = doJSON(t, s, http.MethodPost, "/api/v1/workers/register", desc, &errResp)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_worker", errResp.Error)

	bad := &types.WorkerDescriptor{ID: "x", Capability: "bogus"}
	code = doJSON(t, s, http.MethodPost, "/api/v1/workers/register", bad, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, s, http.MethodPost, "/api/v1/workers/hotel-remote-1/heartbeat",
		&HeartbeatRequest{Healthy: true}, &ok)
	assert.Equal(t, http.StatusOK, code)

	code = doJSON(t, s, http.MethodPost, "/api/v1/workers/nope/heartbeat",
		&HeartbeatRequest{Healthy: true}, &errResp)
	assert.Equal(t, http.StatusNotFound, code)

	// Builtins plus the new registration.
	var list WorkerListResponse
	code = doJSON(t, s, http.MethodGet, "/api/v1/workers", nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 6, list.Count)

	code = doJSON(t, s, http.MethodGet, "/api/v1/workers?capability=hotel", nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, list.Count)

	var one WorkerResponse
	code = doJSON(t, s, http.MethodGet, "/api/v1/workers/hotel-remote-1", nil, &one)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, one.Worker)
	assert.Equal(t, types.CapabilityHotel, one.Worker.Capability)
	require.NotNil(t, one.Status)
	assert.Equal(t, types.WorkerHealthHealthy, one.Status.Health)

	code = doJSON(t, s, http.MethodDelete, "/api/v1/workers/hotel-remote-1", nil, &ok)
	assert.Equal(t, http.StatusOK, code)
	code = doJSON(t, s, http.MethodGet, "/api/v1/workers/hotel-remote-1", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var resp StatsResponse
	code := doJSON(t, s, http.MethodGet, "/api/v1/stats", nil, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Capabilities)

	var submitted TripSubmitResponse
	code = doJSON(t, s, http.MethodPost, "/api/v1/trips", apiTripRequest(3000), &submitted)
	require.Equal(t, http.StatusCreated, code)
	waitForRunStatus(t, s, submitted.RunID, types.RunStatusCompleted)

	code = doJSON(t, s, http.MethodGet, "/api/v1/stats", nil, &resp)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Capabilities, 5)
	for _, c := range resp.Capabilities {
		assert.NotZero(t, c.Count, fmt.Sprintf("capability %s", c.Capability))
	}
}
