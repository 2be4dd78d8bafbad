package types

import (
	"sync"
)

// ResultSet collects successful task outputs for one run, keyed by
// capability. It is append-only during dispatch; the conflict resolver may
// later re-point an output's selected candidate, but outputs are never
// removed. A ResultSet is owned by a single run and safe for concurrent use.
type ResultSet struct {
	mu      sync.RWMutex
	outputs map[Capability][]*TaskOutput
	byTask  map[string]*TaskOutput
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{
		outputs: make(map[Capability][]*TaskOutput),
		byTask:  make(map[string]*TaskOutput),
	}
}

// Append records a successful task output.
func (rs *ResultSet) Append(out *TaskOutput) {
	if out == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.outputs[out.Capability] = append(rs.outputs[out.Capability], out)
	rs.byTask[out.TaskID] = out
}

// Outputs returns the outputs recorded for a capability, in completion order.
func (rs *ResultSet) Outputs(c Capability) []*TaskOutput {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	outs := rs.outputs[c]
	cp := make([]*TaskOutput, len(outs))
	copy(cp, outs)
	return cp
}

// ByTask returns the output of a specific task, or nil.
func (rs *ResultSet) ByTask(taskID string) *TaskOutput {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.byTask[taskID]
}

// Reselect re-points a task output's selected candidate. It reports false
// when the task is unknown or the index is out of range.
func (rs *ResultSet) Reselect(taskID string, index int) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out, ok := rs.byTask[taskID]
	if !ok || index < 0 || index >= len(out.Candidates) {
		return false
	}
	out.Selected = index
	return true
}

// SelectedCost sums the selected candidate costs across all outputs.
func (rs *ResultSet) SelectedCost() float64 {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var total float64
	for _, outs := range rs.outputs {
		for _, out := range outs {
			total += out.SelectedCost()
		}
	}
	return total
}

// Len returns the total number of recorded outputs.
func (rs *ResultSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.byTask)
}

// Each calls fn for every output. Iteration order is unspecified.
func (rs *ResultSet) Each(fn func(*TaskOutput)) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, outs := range rs.outputs {
		for _, out := range outs {
			fn(out)
		}
	}
}
