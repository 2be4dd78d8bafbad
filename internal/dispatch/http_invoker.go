package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"tripweave/orchestrator/pkg/types"
)

const (
	// invokePath is the well-known invocation route every remote worker
	// serves under its registered endpoint.
	invokePath = "/invoke"

	defaultHTTPTimeout = 30 * time.Second
)

// HTTPInvoker calls remote workers over HTTP: the invocation is POSTed as
// JSON to {endpoint}/invoke and a 200 response body is the task output.
// Connection-level failures surface as *types.TransportError so the
// dispatcher can tell them apart from worker application errors.
type HTTPInvoker struct {
	client *fasthttp.Client
}

// NewHTTPInvoker creates an invoker with a shared connection pool.
func NewHTTPInvoker() *HTTPInvoker {
	return &HTTPInvoker{
		client: &fasthttp.Client{
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         defaultHTTPTimeout,
			WriteTimeout:        defaultHTTPTimeout,
		},
	}
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error) {
	if worker.Endpoint == "" {
		return nil, &types.TransportError{
			WorkerID: worker.ID,
			Cause:    fmt.Errorf("worker has no endpoint"),
		}
	}

	body, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invocation: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimSuffix(worker.Endpoint, "/") + invokePath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(defaultHTTPTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := h.client.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout || time.Now().After(deadline) {
			return nil, context.DeadlineExceeded
		}
		return nil, &types.TransportError{WorkerID: worker.ID, Cause: err}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("worker %s returned status %d: %s",
			worker.ID, resp.StatusCode(), truncate(resp.Body(), 256))
	}

	// resp.Body() references an internal buffer; decode before release.
	var out types.TaskOutput
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("worker %s returned malformed output: %w", worker.ID, err)
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
