// Package orchestrator coordinates the full run lifecycle: building the
// task graph for a trip request, dispatching it across workers, evaluating
// conflicts over the aggregated results and holding final assembly while a
// human settles what the resolver could not.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripweave/orchestrator/internal/conflict"
	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/internal/escalation"
	"tripweave/orchestrator/internal/graph"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// MaxConcurrentRuns bounds the number of non-terminal runs.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// SweepInterval is how often worker liveness is re-checked.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// HeartbeatMaxAge is the silence window counted as a missed heartbeat.
	HeartbeatMaxAge time.Duration `yaml:"heartbeat_max_age"`

	Dispatch   *dispatch.Config   `yaml:"dispatch"`
	Conflict   *conflict.Config   `yaml:"conflict"`
	Escalation *escalation.Config `yaml:"escalation"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentRuns: 10,
		SweepInterval:     10 * time.Second,
		HeartbeatMaxAge:   15 * time.Second,
		Dispatch:          dispatch.DefaultConfig(),
		Conflict:          conflict.DefaultConfig(),
		Escalation:        escalation.DefaultConfig(),
	}
}

// run is the orchestrator's record of one submitted request.
type run struct {
	id  string
	req *types.TripRequest

	graph   *graph.TaskGraph
	results *types.ResultSet

	mu        sync.RWMutex
	status    types.RunStatus
	reason    string
	conflicts []types.Conflict
	itinerary *types.Itinerary

	submittedAt time.Time
	endedAt     *time.Time

	cancel  context.CancelFunc
	aborted bool
}

// Orchestrator owns every run and the shared worker registry.
type Orchestrator struct {
	config   *Config
	registry *registry.InMemoryRegistry
	builder  *graph.Builder
	resolver *conflict.Resolver
	gate     *escalation.Gate
	invoker  dispatch.Invoker
	recorder dispatch.LatencyRecorder

	mu   sync.RWMutex
	runs map[string]*run

	subscribers []chan *types.Event
	subMu       sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder installs a latency recorder shared by all runs.
func WithRecorder(rec dispatch.LatencyRecorder) Option {
	return func(o *Orchestrator) { o.recorder = rec }
}

// WithRules installs custom conflict rules evaluated alongside the fixed
// battery.
func WithRules(rules *conflict.RuleEngine) Option {
	return func(o *Orchestrator) {
		o.resolver = conflict.NewResolver(o.config.Conflict, rules)
	}
}

// New creates an orchestrator over the given registry and invoker.
func New(config *Config, reg *registry.InMemoryRegistry, invoker dispatch.Invoker, opts ...Option) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Dispatch == nil {
		config.Dispatch = dispatch.DefaultConfig()
	}
	if config.Escalation == nil {
		config.Escalation = escalation.DefaultConfig()
	}
	if config.MaxConcurrentRuns <= 0 {
		config.MaxConcurrentRuns = 10
	}

	o := &Orchestrator{
		config:   config,
		registry: reg,
		builder:  graph.NewBuilder(),
		resolver: conflict.NewResolver(config.Conflict, nil),
		invoker:  invoker,
		runs:     make(map[string]*run),
	}
	o.gate = escalation.NewGate(config.Escalation, func(req *types.ApprovalRequest) {
		eventType := types.EventApprovalRequested
		if req.Decision != types.DecisionPending {
			eventType = types.EventApprovalDecided
		}
		o.emit(&types.Event{
			Type:      eventType,
			RunID:     req.RunID,
			Timestamp: time.Now(),
			Approval:  req,
		})
	})
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the background worker-liveness sweep. It must be called
// before Submit.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator already started")
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.started = true

	o.wg.Add(1)
	go o.sweepLoop()

	logger.Info("orchestrator started (max %d concurrent runs)", o.config.MaxConcurrentRuns)
	return nil
}

// Stop cancels every active run and waits for background work to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	logger.Info("orchestrator stopped")
}

// sweepLoop periodically marks a missed heartbeat for silent workers.
func (o *Orchestrator) sweepLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range o.registry.Sweep(now, o.config.HeartbeatMaxAge) {
				logger.Warn("worker %s swept unreachable", id)
			}
		}
	}
}

// Submit validates a request, builds its task graph and starts a run.
// It returns the run id immediately; execution proceeds asynchronously.
func (o *Orchestrator) Submit(req *types.TripRequest) (string, error) {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator is not running")
	}
	active := 0
	for _, r := range o.runs {
		if !r.Status().Terminal() {
			active++
		}
	}
	if active >= o.config.MaxConcurrentRuns {
		o.mu.Unlock()
		return "", fmt.Errorf("run limit reached (%d active)", active)
	}
	o.mu.Unlock()

	g, err := o.builder.Build(req)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(o.ctx)
	r := &run{
		id:          uuid.New().String(),
		req:         req,
		graph:       g,
		results:     types.NewResultSet(),
		status:      types.RunStatusPending,
		submittedAt: time.Now(),
		cancel:      cancel,
	}

	o.mu.Lock()
	o.runs[r.id] = r
	o.mu.Unlock()

	o.wg.Add(1)
	go o.execute(runCtx, r)

	logger.Info("run %s submitted: %s -> %s, %d tasks", r.id, req.Origin, req.Destination, g.Len())
	return r.id, nil
}

// execute drives one run to a terminal status.
func (o *Orchestrator) execute(ctx context.Context, r *run) {
	defer o.wg.Done()
	defer r.cancel()

	o.setStatus(r, types.RunStatusRunning, "")

	d := dispatch.NewDispatcher(o.config.Dispatch, o.registry, o.invoker,
		dispatch.WithGate(types.CapabilityItinerary, o.assemblyGate(r)),
		dispatch.WithObserver(func(t *types.Task) {
			o.emit(&types.Event{
				Type:      types.EventTaskStateChanged,
				RunID:     r.id,
				Timestamp: time.Now(),
				TaskID:    t.ID,
				TaskState: t.State,
			})
		}),
		dispatch.WithRecorder(o.recorder),
	)

	rs, err := d.Run(ctx, r.id, r.graph)
	r.mu.Lock()
	r.results = rs
	r.mu.Unlock()

	if err != nil {
		r.mu.RLock()
		aborted := r.aborted
		reason := r.reason
		r.mu.RUnlock()
		switch {
		case aborted:
			o.setStatus(r, types.RunStatusAborted, types.ReasonAborted)
		case reason != "":
			o.setStatus(r, types.RunStatusFailed, reason)
		default:
			o.setStatus(r, types.RunStatusFailed, types.ReasonTaskChainFailed)
		}
		return
	}

	if it := extractItinerary(r.graph); it != nil {
		r.mu.Lock()
		r.itinerary = it
		r.mu.Unlock()
	}
	o.setStatus(r, types.RunStatusCompleted, "")
}

// assemblyGate returns the pre-dispatch gate for the run's itinerary task.
// It evaluates conflicts over the completed searches, escalates what the
// resolver could not clear, blocks until every escalation settles, and
// rewrites the assembly payload with the final selections.
func (o *Orchestrator) assemblyGate(r *run) dispatch.Gate {
	return func(ctx context.Context, task *types.Task) ([]byte, error) {
		rs := searchResults(r.graph)

		eval, err := o.resolver.Evaluate(r.req, rs)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		for i := range eval.Resolved {
			c := eval.Resolved[i]
			r.addConflict(c)
			o.emit(&types.Event{Type: types.EventConflictResolved, RunID: r.id, Timestamp: now, Conflict: &c})
		}
		for i := range eval.Unresolved {
			c := eval.Unresolved[i]
			r.addConflict(c)
			o.emit(&types.Event{Type: types.EventConflictDetected, RunID: r.id, Timestamp: now, Conflict: &c})
		}

		if len(eval.Unresolved) > 0 {
			if err := o.escalate(ctx, r, rs, eval); err != nil {
				return nil, err
			}
		}

		return assemblyPayload(task.Payload, rs)
	}
}

// escalate opens one approval request per unresolved conflict and blocks
// until each settles. Search results stay intact throughout; only assembly
// waits.
func (o *Orchestrator) escalate(ctx context.Context, r *run, rs *types.ResultSet, eval *conflict.Evaluation) error {
	o.setStatus(r, types.RunStatusPendingApproval, "")

	for _, c := range eval.Unresolved {
		req := o.gate.Escalate(r.id, c, eval.Proposals[c.ID])

		settled, err := o.gate.Await(ctx, req.ID)
		if err != nil {
			return err
		}

		switch settled.Decision {
		case types.DecisionApproved:
			if settled.ChosenIndex >= 0 && settled.ChosenIndex < len(settled.Proposed) {
				res := settled.Proposed[settled.ChosenIndex]
				if !rs.Reselect(res.TaskID, res.CandidateIndex) {
					return fmt.Errorf("approved resolution no longer applies: task %s candidate %d",
						res.TaskID, res.CandidateIndex)
				}
				logger.Info("run %s: applied approved resolution on %s", r.id, res.TaskID)
			}
		case types.DecisionRejected:
			r.setReason(types.ReasonApprovalRejected)
			return fmt.Errorf("approval request %s rejected", settled.ID)
		case types.DecisionExpired:
			r.setReason(types.ReasonHumanApprovalTimeout)
			return fmt.Errorf("approval request %s expired before a decision", settled.ID)
		default:
			return fmt.Errorf("approval request %s settled in unexpected state %s", settled.ID, settled.Decision)
		}
	}

	o.setStatus(r, types.RunStatusRunning, "")
	return nil
}

// searchResults collects the completed search outputs from the graph. The
// outputs are shared pointers, so reselections made here are visible to the
// final result set.
func searchResults(g *graph.TaskGraph) *types.ResultSet {
	rs := types.NewResultSet()
	for _, t := range g.Tasks() {
		if t.Output == nil {
			continue
		}
		switch t.Capability {
		case types.CapabilityHotel, types.CapabilityTransport, types.CapabilityActivity:
			rs.Append(t.Output)
		}
	}
	return rs
}

// assemblyPayload rewrites the itinerary payload with the post-resolution
// selections.
func assemblyPayload(original json.RawMessage, rs *types.ResultSet) ([]byte, error) {
	var payload types.ItineraryAssemblyPayload
	if err := json.Unmarshal(original, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode assembly payload: %w", err)
	}

	for _, out := range rs.Outputs(types.CapabilityHotel) {
		if opt := out.SelectedOption(); opt != nil {
			payload.Hotel = opt
		}
	}
	for _, out := range rs.Outputs(types.CapabilityTransport) {
		if opt := out.SelectedOption(); opt != nil {
			payload.Transport = opt
		}
	}
	outs := rs.Outputs(types.CapabilityActivity)
	sort.Slice(outs, func(i, j int) bool { return outs[i].TaskID < outs[j].TaskID })
	for _, out := range outs {
		if opt := out.SelectedOption(); opt != nil {
			payload.Activities = append(payload.Activities, *opt)
		}
	}
	payload.TotalCost = rs.SelectedCost()

	return json.Marshal(&payload)
}

// extractItinerary pulls the assembled plan out of the itinerary task's
// report.
func extractItinerary(g *graph.TaskGraph) *types.Itinerary {
	t := g.Task(graph.TaskIDItinerary)
	if t == nil || t.Output == nil || len(t.Output.Report) == 0 {
		return nil
	}
	var it types.Itinerary
	if err := json.Unmarshal(t.Output.Report, &it); err != nil {
		logger.Error("failed to decode itinerary report: %v", err)
		return nil
	}
	return &it
}

// Decide applies a human decision to a pending approval request.
func (o *Orchestrator) Decide(requestID string, decision types.Decision, chosenIndex int) (*types.ApprovalRequest, error) {
	return o.gate.Decide(requestID, decision, chosenIndex)
}

// Abort stops a run. Aborting a terminal run fails.
func (o *Orchestrator) Abort(runID string) error {
	o.mu.RLock()
	r, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}

	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("run %s already terminal: %s", runID, r.status)
	}
	r.aborted = true
	r.mu.Unlock()

	r.cancel()
	logger.Info("run %s abort requested", runID)
	return nil
}

// Status returns the externally visible snapshot of a run.
func (o *Orchestrator) Status(runID string) (*types.RunState, error) {
	o.mu.RLock()
	r, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return o.snapshot(r), nil
}

// ListRuns returns every run's snapshot, newest first.
func (o *Orchestrator) ListRuns() []*types.RunState {
	o.mu.RLock()
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].submittedAt.After(runs[j].submittedAt) })
	out := make([]*types.RunState, len(runs))
	for i, r := range runs {
		out[i] = o.snapshot(r)
	}
	return out
}

// snapshot builds a RunState copy.
func (o *Orchestrator) snapshot(r *run) *types.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := &types.RunState{
		RunID:       r.id,
		Status:      r.status,
		Reason:      r.reason,
		SubmittedAt: r.submittedAt,
		EndedAt:     r.endedAt,
		Tasks:       r.graph.Snapshot(),
		Conflicts:   append([]types.Conflict(nil), r.conflicts...),
		Approvals:   o.gate.List(r.id),
		Itinerary:   r.itinerary,
	}
	return state
}

// Approvals returns the approval requests for a run (all runs when runID is
// empty).
func (o *Orchestrator) Approvals(runID string) []*types.ApprovalRequest {
	return o.gate.List(runID)
}

// Registry exposes the worker registry for the management surface.
func (o *Orchestrator) Registry() *registry.InMemoryRegistry {
	return o.registry
}

// Subscribe returns a channel of orchestrator events, closed when ctx ends.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan *types.Event {
	ch := make(chan *types.Event, 100)

	o.subMu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.subMu.Unlock()

	go func() {
		<-ctx.Done()
		o.subMu.Lock()
		for i, sub := range o.subscribers {
			if sub == ch {
				o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
				break
			}
		}
		o.subMu.Unlock()
		close(ch)
	}()

	return ch
}

// emit sends an event to all subscribers without blocking.
func (o *Orchestrator) emit(event *types.Event) {
	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, drop
		}
	}
}

// setStatus transitions a run and emits the change. Terminal statuses also
// stamp the end time.
func (o *Orchestrator) setStatus(r *run, status types.RunStatus, reason string) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = status
	if reason != "" {
		r.reason = reason
	}
	if status.Terminal() {
		now := time.Now()
		r.endedAt = &now
	}
	r.mu.Unlock()

	logger.Info("run %s -> %s %s", r.id, status, reason)
	o.emit(&types.Event{
		Type:      types.EventRunStateChanged,
		RunID:     r.id,
		Timestamp: time.Now(),
		RunStatus: status,
		Detail:    reason,
	})
}

// Status returns the run's current status.
func (r *run) Status() types.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *run) setReason(reason string) {
	r.mu.Lock()
	r.reason = reason
	r.mu.Unlock()
}

func (r *run) addConflict(c types.Conflict) {
	r.mu.Lock()
	r.conflicts = append(r.conflicts, c)
	r.mu.Unlock()
}
