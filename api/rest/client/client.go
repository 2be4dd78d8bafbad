// Package client implements the HTTP client remote workers use to join an
// orchestrator: registration, periodic heartbeats and unregistration.
package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// Config holds the configuration for the worker client.
type Config struct {
	// OrchestratorURL is the base URL of the orchestrator
	// (e.g., "http://localhost:8080").
	OrchestratorURL string

	// Worker describes this worker: id, capability and the endpoint the
	// orchestrator should invoke.
	Worker types.WorkerDescriptor

	// HeartbeatInterval is the interval between heartbeats.
	HeartbeatInterval time.Duration

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		OrchestratorURL:   "http://localhost:8080",
		HeartbeatInterval: 5 * time.Second,
		RequestTimeout:    10 * time.Second,
	}
}

// Client keeps one worker registered and heartbeating.
type Client struct {
	config *Config
	agent  *fiber.Client

	registered atomic.Bool

	heartbeatCancel context.CancelFunc
}

// New creates a worker client.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		agent:  &fiber.Client{},
	}
}

// Register announces the worker to the orchestrator.
func (c *Client) Register(ctx context.Context) error {
	code, body, errs := c.agent.Post(c.config.OrchestratorURL+"/api/v1/workers/register").
		Timeout(c.config.RequestTimeout).
		JSON(&c.config.Worker).
		Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("registration request failed: %v", errs[0])
	}
	if code != fiber.StatusCreated {
		return fmt.Errorf("registration rejected with status %d: %s", code, body)
	}

	c.registered.Store(true)
	logger.Info("worker %s registered with %s", c.config.Worker.ID, c.config.OrchestratorURL)
	return nil
}

// StartHeartbeat begins the periodic liveness reports. It returns after
// launching the background loop.
func (c *Client) StartHeartbeat(ctx context.Context) error {
	if !c.registered.Load() {
		return fmt.Errorf("worker is not registered")
	}

	hbCtx, cancel := context.WithCancel(ctx)
	c.heartbeatCancel = cancel

	go func() {
		ticker := time.NewTicker(c.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := c.sendHeartbeat(); err != nil {
					logger.Warn("heartbeat failed: %v", err)
				}
			}
		}
	}()
	return nil
}

// sendHeartbeat posts one healthy report.
func (c *Client) sendHeartbeat() error {
	url := fmt.Sprintf("%s/api/v1/workers/%s/heartbeat", c.config.OrchestratorURL, c.config.Worker.ID)
	code, body, errs := c.agent.Post(url).
		Timeout(c.config.RequestTimeout).
		JSON(map[string]bool{"healthy": true}).
		Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("heartbeat rejected with status %d: %s", code, body)
	}
	return nil
}

// Unregister stops heartbeating and removes the worker.
func (c *Client) Unregister(ctx context.Context) error {
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
	}
	if !c.registered.Load() {
		return nil
	}

	url := fmt.Sprintf("%s/api/v1/workers/%s", c.config.OrchestratorURL, c.config.Worker.ID)
	code, body, errs := c.agent.Delete(url).
		Timeout(c.config.RequestTimeout).
		Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("unregistration rejected with status %d: %s", code, body)
	}

	c.registered.Store(false)
	return nil
}
