// Package escalation holds runs pending human approval when the resolver
// cannot clear a conflict on its own. An open approval request blocks only
// the final assembly step; searches that already completed stay completed.
package escalation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// DefaultApprovalTimeout is how long a request waits for a decision before
// expiring.
const DefaultApprovalTimeout = 10 * time.Minute

// Config holds gate tuning knobs.
type Config struct {
	// ApprovalTimeout is the decision deadline for each request.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() *Config {
	return &Config{ApprovalTimeout: DefaultApprovalTimeout}
}

// Observer is notified when a request is opened and again when it settles.
type Observer func(req *types.ApprovalRequest)

// Gate tracks approval requests and wakes waiters when decisions arrive or
// deadlines pass.
type Gate struct {
	config   *Config
	observer Observer

	mu       sync.RWMutex
	requests map[string]*pending
}

// pending pairs a request with its wakeup channel and expiry timer.
type pending struct {
	req   *types.ApprovalRequest
	done  chan struct{}
	timer *time.Timer
}

// NewGate creates a gate. observer may be nil.
func NewGate(config *Config, observer Observer) *Gate {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ApprovalTimeout <= 0 {
		config.ApprovalTimeout = DefaultApprovalTimeout
	}
	return &Gate{
		config:   config,
		observer: observer,
		requests: make(map[string]*pending),
	}
}

// Escalate opens an approval request for a conflict the resolver could not
// clear. The request expires automatically at its deadline.
func (g *Gate) Escalate(runID string, conflict types.Conflict, proposals []types.Resolution) *types.ApprovalRequest {
	req := &types.ApprovalRequest{
		ID:          uuid.New().String(),
		RunID:       runID,
		Conflict:    conflict,
		Proposed:    proposals,
		Deadline:    time.Now().Add(g.config.ApprovalTimeout),
		Decision:    types.DecisionPending,
		ChosenIndex: -1,
	}

	p := &pending{req: req, done: make(chan struct{})}
	p.timer = time.AfterFunc(g.config.ApprovalTimeout, func() { g.expire(req.ID) })

	g.mu.Lock()
	g.requests[req.ID] = p
	g.mu.Unlock()

	logger.Warn("run %s: conflict %s escalated for approval (request %s, deadline %s)",
		runID, conflict.Kind, req.ID, req.Deadline.Format(time.RFC3339))
	g.notify(req)
	return req
}

// Await blocks until the request settles or ctx ends, and returns the
// settled request.
func (g *Gate) Await(ctx context.Context, requestID string) (*types.ApprovalRequest, error) {
	g.mu.RLock()
	p, ok := g.requests[requestID]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("approval request not found: %s", requestID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := *p.req
	return &cp, nil
}

// Decide records a human decision. chosenIndex indexes the proposed
// resolutions when approving; -1 approves the current selections as they
// stand. Deciding an already settled request fails.
func (g *Gate) Decide(requestID string, decision types.Decision, chosenIndex int) (*types.ApprovalRequest, error) {
	if decision != types.DecisionApproved && decision != types.DecisionRejected {
		return nil, fmt.Errorf("invalid decision: %s", decision)
	}

	g.mu.Lock()
	p, ok := g.requests[requestID]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("approval request not found: %s", requestID)
	}
	if p.req.Decision != types.DecisionPending {
		g.mu.Unlock()
		return nil, fmt.Errorf("approval request %s already settled: %s", requestID, p.req.Decision)
	}
	if decision == types.DecisionApproved && (chosenIndex < -1 || chosenIndex >= len(p.req.Proposed)) {
		g.mu.Unlock()
		return nil, fmt.Errorf("chosen index %d out of range (%d proposals)", chosenIndex, len(p.req.Proposed))
	}

	p.timer.Stop()
	p.req.Decision = decision
	p.req.ChosenIndex = chosenIndex
	now := time.Now()
	p.req.DecidedAt = &now
	close(p.done)
	cp := *p.req
	g.mu.Unlock()

	logger.Info("approval request %s decided: %s", requestID, decision)
	g.notify(&cp)
	return &cp, nil
}

// expire settles a request as EXPIRED when its deadline passes undecided.
func (g *Gate) expire(requestID string) {
	g.mu.Lock()
	p, ok := g.requests[requestID]
	if !ok || p.req.Decision != types.DecisionPending {
		g.mu.Unlock()
		return
	}
	p.req.Decision = types.DecisionExpired
	now := time.Now()
	p.req.DecidedAt = &now
	close(p.done)
	cp := *p.req
	g.mu.Unlock()

	logger.Warn("approval request %s expired without a decision", requestID)
	g.notify(&cp)
}

// Request returns a copy of the request, or nil when unknown.
func (g *Gate) Request(requestID string) *types.ApprovalRequest {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.requests[requestID]
	if !ok {
		return nil
	}
	cp := *p.req
	return &cp
}

// List returns the requests for a run (all runs when runID is empty),
// ordered by deadline.
func (g *Gate) List(runID string) []*types.ApprovalRequest {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*types.ApprovalRequest
	for _, p := range g.requests {
		if runID != "" && p.req.RunID != runID {
			continue
		}
		cp := *p.req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// Pending reports whether any request for the run is still undecided.
func (g *Gate) Pending(runID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.requests {
		if p.req.RunID == runID && p.req.Decision == types.DecisionPending {
			return true
		}
	}
	return false
}

func (g *Gate) notify(req *types.ApprovalRequest) {
	if g.observer != nil {
		g.observer(req)
	}
}
