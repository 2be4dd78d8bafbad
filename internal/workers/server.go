package workers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/pkg/types"
)

// Server exposes one worker over HTTP so a remote orchestrator can invoke
// it. The wire contract matches the orchestrator's HTTP invoker: POST
// /invoke with a dispatch.Invocation body, types.TaskOutput on success.
type Server struct {
	app    *fiber.App
	worker Worker
}

// NewServer creates an invoke server around the given worker.
func NewServer(w Worker) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		AppName:      "Trip Worker " + string(w.Capability()),
	})
	app.Use(fiberrecover.New())

	s := &Server{app: app, worker: w}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "healthy",
			"capability": w.Capability(),
		})
	})
	app.Post("/invoke", s.handleInvoke)

	return s
}

func (s *Server) handleInvoke(c *fiber.Ctx) error {
	var inv dispatch.Invocation
	if err := c.BodyParser(&inv); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid invocation body: " + err.Error(),
		})
	}

	out, err := s.worker.Handle(c.UserContext(), &inv)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(out)
}

// Start listens on the given address until the context ends.
func (s *Server) Start(ctx context.Context, address string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(address)
	}()

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ByCapability returns the built-in worker for a capability, or nil.
func ByCapability(capability types.Capability) Worker {
	switch capability {
	case types.CapabilityHotel:
		return NewHotelWorker()
	case types.CapabilityTransport:
		return NewTransportWorker()
	case types.CapabilityActivity:
		return NewActivityWorker()
	case types.CapabilityBudget:
		return NewBudgetWorker()
	case types.CapabilityItinerary:
		return NewItineraryWorker()
	default:
		return nil
	}
}
