package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// DefaultRuleTimeout bounds a single rule script execution.
const DefaultRuleTimeout = 5 * time.Second

// Rule is one custom conflict predicate written in JavaScript. The script
// sees the global objects `request` (the trip request) and `results` (the
// selected options keyed by capability) and returns either a falsy value
// (no violation) or a string describing the violation.
type Rule struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// RuleEngine evaluates custom conflict rules against a result set. Each
// evaluation runs on a fresh VM so rules cannot leak state across runs.
type RuleEngine struct {
	rules   []Rule
	timeout time.Duration
}

// NewRuleEngine creates an engine over the given rules (timeout 0 uses the
// default).
func NewRuleEngine(rules []Rule, timeout time.Duration) *RuleEngine {
	if timeout <= 0 {
		timeout = DefaultRuleTimeout
	}
	return &RuleEngine{rules: rules, timeout: timeout}
}

// Len returns the number of configured rules.
func (e *RuleEngine) Len() int {
	return len(e.rules)
}

// Evaluate runs every rule. A rule that returns a non-empty string yields a
// REQUIREMENT_CONTRADICTION conflict carrying that string as detail. A rule
// that throws or times out fails the evaluation.
func (e *RuleEngine) Evaluate(req *types.TripRequest, rs *types.ResultSet) ([]types.Conflict, error) {
	if len(e.rules) == 0 {
		return nil, nil
	}

	reqVal, err := toJSValue(req)
	if err != nil {
		return nil, fmt.Errorf("export request: %w", err)
	}
	resVal, err := toJSValue(exportResults(rs))
	if err != nil {
		return nil, fmt.Errorf("export results: %w", err)
	}

	var conflicts []types.Conflict
	for _, rule := range e.rules {
		detail, err := e.runRule(rule, reqVal, resVal)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		if detail == "" {
			continue
		}
		logger.Info("custom rule %q flagged: %s", rule.Name, detail)
		conflicts = append(conflicts, types.Conflict{
			ID:         uuid.New().String(),
			Kind:       types.ConflictRequirementContradiction,
			Detail:     fmt.Sprintf("%s: %s", rule.Name, detail),
			DetectedAt: time.Now(),
		})
	}
	return conflicts, nil
}

// runRule executes one rule script with an interrupt-based timeout.
func (e *RuleEngine) runRule(rule Rule, reqVal, resVal any) (string, error) {
	vm := goja.New()
	setupConsole(vm, rule.Name)
	vm.Set("request", reqVal)
	vm.Set("results", resVal)

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("rule execution timed out")
		case <-done:
		}
	}()

	val, err := vm.RunString(rule.Source)
	close(done)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timed out after %s", e.timeout)
		}
		return "", err
	}

	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", nil
	}
	switch v := val.Export().(type) {
	case bool:
		if v {
			return "predicate returned true", nil
		}
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// setupConsole wires console.log and friends to the engine logger so rule
// authors can debug their predicates.
func setupConsole(vm *goja.Runtime, ruleName string) {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.Export()
		}
		logger.Debug("rule %q: %v", ruleName, parts)
		return goja.Undefined()
	}
	console.Set("log", logFn)
	console.Set("info", logFn)
	console.Set("warn", logFn)
	console.Set("error", logFn)
	vm.Set("console", console)
}

// exportResults shapes the result set for scripts: capability name maps to
// the list of task outputs, each with its selected option inlined.
func exportResults(rs *types.ResultSet) map[string]any {
	out := make(map[string]any)
	for _, c := range types.AllCapabilities() {
		var entries []map[string]any
		for _, o := range rs.Outputs(c) {
			entry := map[string]any{
				"task_id":    o.TaskID,
				"candidates": o.Candidates,
			}
			if sel := o.SelectedOption(); sel != nil {
				entry["selected"] = sel
			}
			entries = append(entries, entry)
		}
		if entries != nil {
			out[string(c)] = entries
		}
	}
	return out
}

// toJSValue round-trips a Go value through JSON so scripts see plain
// objects with the wire field names.
func toJSValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
