package rest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"tripweave/orchestrator/pkg/types"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readyCheck handles GET /ready
func (s *Server) readyCheck(c *fiber.Ctx) error {
	ready := s.orch != nil
	status := "ready"
	if !ready {
		status = "not_ready"
	}

	return c.JSON(ReadyResponse{
		Ready:     ready,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// submitTrip handles POST /api/v1/trips
func (s *Server) submitTrip(c *fiber.Ctx) error {
	var req types.TripRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	runID, err := s.orch.Submit(&req)
	if err != nil {
		var invalid *types.InvalidRequestError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "submission_failed",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(TripSubmitResponse{
		RunID:  runID,
		Status: string(types.RunStatusPending),
	})
}

// listTrips handles GET /api/v1/trips
func (s *Server) listTrips(c *fiber.Ctx) error {
	runs := s.orch.ListRuns()
	return c.JSON(TripListResponse{Runs: runs, Count: len(runs)})
}

// getTrip handles GET /api/v1/trips/:id
func (s *Server) getTrip(c *fiber.Ctx) error {
	state, err := s.orch.Status(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	return c.JSON(state)
}

// getItinerary handles GET /api/v1/trips/:id/itinerary
func (s *Server) getItinerary(c *fiber.Ctx) error {
	state, err := s.orch.Status(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	if state.Itinerary == nil {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "not_ready",
			Message: "itinerary is not assembled yet (run status: " + string(state.Status) + ")",
		})
	}
	return c.JSON(state.Itinerary)
}

// abortTrip handles DELETE /api/v1/trips/:id
func (s *Server) abortTrip(c *fiber.Ctx) error {
	if err := s.orch.Abort(c.Params("id")); err != nil {
		status := fiber.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(ErrorResponse{
			Error:   "abort_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(SuccessResponse{Success: true, Message: "abort requested"})
}

// listApprovals handles GET /api/v1/approvals?run_id=...
func (s *Server) listApprovals(c *fiber.Ctx) error {
	approvals := s.orch.Approvals(c.Query("run_id"))
	return c.JSON(ApprovalListResponse{Approvals: approvals, Count: len(approvals)})
}

// decideApproval handles POST /api/v1/approvals/:id/decision
func (s *Server) decideApproval(c *fiber.Ctx) error {
	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	settled, err := s.orch.Decide(c.Params("id"), req.Decision, req.ChosenIndex)
	if err != nil {
		status := fiber.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			status = fiber.StatusNotFound
		} else if strings.Contains(err.Error(), "invalid decision") ||
			strings.Contains(err.Error(), "out of range") {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(ErrorResponse{
			Error:   "decision_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(settled)
}

// registerWorker handles POST /api/v1/workers/register
func (s *Server) registerWorker(c *fiber.Ctx) error {
	var desc types.WorkerDescriptor
	if err := c.BodyParser(&desc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	if err := s.orch.Registry().Register(context.Background(), &desc); err != nil {
		var dup *types.DuplicateWorkerError
		if errors.As(err, &dup) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Error:   "duplicate_worker",
				Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "registration_failed",
			Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(SuccessResponse{Success: true})
}

// workerHeartbeat handles POST /api/v1/workers/:id/heartbeat
func (s *Server) workerHeartbeat(c *fiber.Ctx) error {
	req := HeartbeatRequest{Healthy: true}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Failed to parse request body: " + err.Error(),
			})
		}
	}

	if err := s.orch.Registry().Heartbeat(context.Background(), c.Params("id"), req.Healthy); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	return c.JSON(SuccessResponse{Success: true})
}

// listWorkers handles GET /api/v1/workers?capability=...
func (s *Server) listWorkers(c *fiber.Ctx) error {
	capability := types.Capability(c.Query("capability"))
	workers := s.orch.Registry().List(context.Background(), capability)

	out := make([]*WorkerResponse, 0, len(workers))
	for _, w := range workers {
		status, _ := s.orch.Registry().Status(context.Background(), w.ID)
		out = append(out, &WorkerResponse{Worker: w, Status: status})
	}
	return c.JSON(WorkerListResponse{Workers: out, Count: len(out)})
}

// getWorker handles GET /api/v1/workers/:id
func (s *Server) getWorker(c *fiber.Ctx) error {
	id := c.Params("id")
	status, err := s.orch.Registry().Status(context.Background(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}

	var desc *types.WorkerDescriptor
	for _, w := range s.orch.Registry().List(context.Background(), "") {
		if w.ID == id {
			desc = w
			break
		}
	}
	return c.JSON(WorkerResponse{Worker: desc, Status: status})
}

// unregisterWorker handles DELETE /api/v1/workers/:id
func (s *Server) unregisterWorker(c *fiber.Ctx) error {
	if err := s.orch.Registry().Unregister(context.Background(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	return c.JSON(SuccessResponse{Success: true})
}

// getStats handles GET /api/v1/stats
func (s *Server) getStats(c *fiber.Ctx) error {
	resp := StatsResponse{}
	if s.stats != nil {
		resp.Capabilities = s.stats.Summary()
	}
	return c.JSON(resp)
}
