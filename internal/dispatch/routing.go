package dispatch

import (
	"context"
	"fmt"
	"strings"

	"tripweave/orchestrator/pkg/types"
)

// LocalScheme prefixes endpoints of in-process workers.
const LocalScheme = "local://"

// RoutingInvoker picks a transport by worker endpoint: local:// endpoints
// go to the in-process invoker, everything else to the remote one.
type RoutingInvoker struct {
	local  Invoker
	remote Invoker
}

// NewRoutingInvoker creates a routing invoker. Either side may be nil when
// the deployment has no workers of that kind.
func NewRoutingInvoker(local, remote Invoker) *RoutingInvoker {
	return &RoutingInvoker{local: local, remote: remote}
}

// Invoke implements Invoker.
func (r *RoutingInvoker) Invoke(ctx context.Context, worker *types.WorkerDescriptor, inv *Invocation) (*types.TaskOutput, error) {
	target := r.remote
	if strings.HasPrefix(worker.Endpoint, LocalScheme) {
		target = r.local
	}
	if target == nil {
		return nil, &types.TransportError{
			WorkerID: worker.ID,
			Cause:    fmt.Errorf("no transport configured for endpoint %s", worker.Endpoint),
		}
	}
	return target.Invoke(ctx, worker, inv)
}
