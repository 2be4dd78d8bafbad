package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tripweave/orchestrator/pkg/types"
)

// WebhookConfig holds configuration for the webhook reporter.
type WebhookConfig struct {
	// URL is the webhook endpoint.
	URL string `yaml:"url"`
	// Headers are additional HTTP headers.
	Headers map[string]string `yaml:"headers,omitempty"`
	// BatchSize is the number of events batched per delivery.
	BatchSize int `yaml:"batch_size"`
	// RetryAttempts is the number of retries per delivery.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryDelay is the base delay between retries, scaled linearly.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultWebhookConfig returns the default webhook reporter configuration.
func DefaultWebhookConfig() *WebhookConfig {
	return &WebhookConfig{
		BatchSize:     10,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Timeout:       10 * time.Second,
	}
}

// webhookBatch is the delivery body.
type webhookBatch struct {
	Events []*types.Event `json:"events"`
	Count  int            `json:"count"`
}

// WebhookReporter posts event batches to an HTTP endpoint.
type WebhookReporter struct {
	config     *WebhookConfig
	httpClient *http.Client

	mu     sync.Mutex
	buffer []*types.Event
}

// NewWebhookReporter creates a webhook reporter.
func NewWebhookReporter(config *WebhookConfig) (*WebhookReporter, error) {
	if config == nil {
		config = DefaultWebhookConfig()
	}
	if config.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookReporter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		buffer:     make([]*types.Event, 0, config.BatchSize),
	}, nil
}

// Name returns the reporter name.
func (r *WebhookReporter) Name() string {
	return "webhook"
}

// Report buffers the event and flushes when the batch is full.
func (r *WebhookReporter) Report(ctx context.Context, event *types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, event)
	if len(r.buffer) >= r.config.BatchSize {
		return r.flushLocked(ctx)
	}
	return nil
}

// Flush delivers any buffered events.
func (r *WebhookReporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

// Close flushes the remaining buffer.
func (r *WebhookReporter) Close(ctx context.Context) error {
	return r.Flush(ctx)
}

// flushLocked sends the buffer with retries. Caller holds the lock.
func (r *WebhookReporter) flushLocked(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}

	batch := &webhookBatch{Events: r.buffer, Count: len(r.buffer)}
	var lastErr error
	for attempt := 0; attempt <= r.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := r.send(ctx, batch); err != nil {
			lastErr = err
			continue
		}
		r.buffer = r.buffer[:0]
		return nil
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", r.config.RetryAttempts+1, lastErr)
}

// send performs one delivery.
func (r *WebhookReporter) send(ctx context.Context, batch *webhookBatch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
