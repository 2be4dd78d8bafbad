// Package conflict inspects aggregated booking results for semantic
// conflicts and attempts automatic resolution before anything escalates to
// a human.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"tripweave/orchestrator/pkg/logger"
	"tripweave/orchestrator/pkg/types"
)

// Config holds resolver tuning knobs.
type Config struct {
	// MaxResolutionAttempts bounds automatic substitution attempts per
	// conflict kind before the conflict is surfaced unresolved.
	MaxResolutionAttempts int `yaml:"max_resolution_attempts"`
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() *Config {
	return &Config{MaxResolutionAttempts: 3}
}

// Evaluation is the outcome of one resolver pass. Resolved conflicts were
// cleared by substituting alternatives already present in the candidate
// sets; unresolved conflicts must escalate.
type Evaluation struct {
	Resolved   []types.Conflict
	Unresolved []types.Conflict
	// Proposals maps an unresolved conflict id to candidate adjustments a
	// human could approve.
	Proposals map[string][]types.Resolution
}

// Resolver runs the fixed conflict battery over a result set.
type Resolver struct {
	config *Config
	rules  *RuleEngine
}

// NewResolver creates a resolver. rules may be nil when no custom rules
// are configured.
func NewResolver(config *Config, rules *RuleEngine) *Resolver {
	if config == nil {
		config = DefaultConfig()
	}
	return &Resolver{config: config, rules: rules}
}

// Evaluate checks the result set against the request and attempts
// automatic resolution where the conflict kind allows it. Successful
// resolutions mutate the result set's selections in place.
func (r *Resolver) Evaluate(req *types.TripRequest, rs *types.ResultSet) (*Evaluation, error) {
	eval := &Evaluation{Proposals: make(map[string][]types.Resolution)}

	r.evaluateScheduleOverlaps(req, rs, eval)
	r.evaluateBudget(req, rs, eval)
	r.evaluateAvailability(rs, eval)
	r.evaluateContradictions(req, rs, eval)

	if r.rules != nil {
		custom, err := r.rules.Evaluate(req, rs)
		if err != nil {
			return nil, fmt.Errorf("custom conflict rules failed: %w", err)
		}
		eval.Unresolved = append(eval.Unresolved, custom...)
	}

	return eval, nil
}

// evaluateBudget checks the ceiling and substitutes cheaper alternatives
// until the projected spend fits or attempts run out.
func (r *Resolver) evaluateBudget(req *types.TripRequest, rs *types.ResultSet, eval *Evaluation) {
	if req.Budget <= 0 || rs.SelectedCost() <= req.Budget {
		return
	}

	detail := func() string {
		return fmt.Sprintf("projected cost %.2f exceeds budget ceiling %.2f", rs.SelectedCost(), req.Budget)
	}
	involved := selectedTaskIDs(rs)

	for attempt := 0; attempt < r.config.MaxResolutionAttempts; attempt++ {
		sub := cheapestSubstitution(rs)
		if sub == nil {
			break
		}
		rs.Reselect(sub.TaskID, sub.CandidateIndex)
		logger.Info("budget conflict: substituted %s candidate %d (%s)", sub.TaskID, sub.CandidateIndex, sub.Description)
		if rs.SelectedCost() <= req.Budget {
			eval.Resolved = append(eval.Resolved, types.Conflict{
				ID:         uuid.New().String(),
				Kind:       types.ConflictBudgetExceeded,
				TaskIDs:    involved,
				Detail:     fmt.Sprintf("resolved by substitution: %s", sub.Description),
				DetectedAt: time.Now(),
			})
			return
		}
	}

	c := types.Conflict{
		ID:         uuid.New().String(),
		Kind:       types.ConflictBudgetExceeded,
		TaskIDs:    involved,
		Detail:     detail(),
		DetectedAt: time.Now(),
	}
	eval.Unresolved = append(eval.Unresolved, c)
	eval.Proposals[c.ID] = budgetProposals(rs)
}

// cheapestSubstitution finds the single substitution with the largest
// saving across all outputs, or nil when no cheaper alternative exists.
func cheapestSubstitution(rs *types.ResultSet) *types.Resolution {
	var best *types.Resolution
	var bestSaving float64

	rs.Each(func(out *types.TaskOutput) {
		current := out.SelectedOption()
		if current == nil {
			return
		}
		for i, cand := range out.Candidates {
			if i == out.Selected || !cand.Available {
				continue
			}
			saving := current.TotalCost - cand.TotalCost
			if saving > bestSaving {
				bestSaving = saving
				best = &types.Resolution{
					Description:    fmt.Sprintf("replace %s with %s (saves %.2f)", current.Name, cand.Name, saving),
					TaskID:         out.TaskID,
					CandidateIndex: i,
				}
			}
		}
	})
	return best
}

// budgetProposals lists every cheaper alternative as a human-approvable
// adjustment, best saving first.
func budgetProposals(rs *types.ResultSet) []types.Resolution {
	type ranked struct {
		res    types.Resolution
		saving float64
	}
	var all []ranked

	rs.Each(func(out *types.TaskOutput) {
		current := out.SelectedOption()
		if current == nil {
			return
		}
		for i, cand := range out.Candidates {
			if i == out.Selected || cand.TotalCost >= current.TotalCost {
				continue
			}
			all = append(all, ranked{
				res: types.Resolution{
					Description:    fmt.Sprintf("replace %s with %s (saves %.2f)", current.Name, cand.Name, current.TotalCost-cand.TotalCost),
					TaskID:         out.TaskID,
					CandidateIndex: i,
				},
				saving: current.TotalCost - cand.TotalCost,
			})
		}
	})

	sort.SliceStable(all, func(i, j int) bool { return all[i].saving > all[j].saving })
	proposals := make([]types.Resolution, len(all))
	for i, r := range all {
		proposals[i] = r.res
	}
	return proposals
}

// evaluateScheduleOverlaps flags improper time-window intersections and
// tries next-best-fit substitutions for the involved tasks.
func (r *Resolver) evaluateScheduleOverlaps(req *types.TripRequest, rs *types.ResultSet, eval *Evaluation) {
	for attempt := 0; ; attempt++ {
		pair := findOverlap(rs)
		if pair == nil {
			return
		}
		if attempt < r.config.MaxResolutionAttempts {
			if sub := overlapSubstitution(rs, pair); sub != nil {
				rs.Reselect(sub.TaskID, sub.CandidateIndex)
				logger.Info("schedule conflict: substituted %s candidate %d (%s)", sub.TaskID, sub.CandidateIndex, sub.Description)
				continue
			}
		}

		c := types.Conflict{
			ID:         uuid.New().String(),
			Kind:       types.ConflictScheduleOverlap,
			TaskIDs:    []string{pair.a.TaskID, pair.b.TaskID},
			Detail:     pair.detail,
			DetectedAt: time.Now(),
		}
		eval.Unresolved = append(eval.Unresolved, c)
		eval.Proposals[c.ID] = overlapProposals(rs, pair)
		return
	}
}

// overlapPair names two outputs whose selected options clash.
type overlapPair struct {
	a, b   *types.TaskOutput
	detail string
}

// findOverlap scans selected options for the first improper intersection:
// transport arriving after the hotel check-in cutoff, or an activity
// window intersecting a transport leg or another activity.
func findOverlap(rs *types.ResultSet) *overlapPair {
	hotels := rs.Outputs(types.CapabilityHotel)
	transports := rs.Outputs(types.CapabilityTransport)
	activities := rs.Outputs(types.CapabilityActivity)

	for _, h := range hotels {
		hopt := h.SelectedOption()
		if hopt == nil || hopt.Window.Start.IsZero() {
			continue
		}
		for _, t := range transports {
			topt := t.SelectedOption()
			if topt == nil || topt.Window.End.IsZero() {
				continue
			}
			// Window.Start on a hotel option is the check-in cutoff.
			if topt.Window.End.After(hopt.Window.Start) {
				return &overlapPair{
					a: t, b: h,
					detail: fmt.Sprintf("transport %s arrives %s, after hotel %s check-in cutoff %s",
						topt.Name, topt.Window.End.Format(time.RFC3339),
						hopt.Name, hopt.Window.Start.Format(time.RFC3339)),
				}
			}
		}
	}

	for _, a := range activities {
		aopt := a.SelectedOption()
		if aopt == nil {
			continue
		}
		for _, t := range transports {
			topt := t.SelectedOption()
			if topt == nil {
				continue
			}
			if aopt.Window.Overlaps(topt.Window) {
				return &overlapPair{
					a: a, b: t,
					detail: fmt.Sprintf("activity %s overlaps transport %s", aopt.Name, topt.Name),
				}
			}
		}
	}

	for i, a := range activities {
		aopt := a.SelectedOption()
		if aopt == nil {
			continue
		}
		for _, b := range activities[i+1:] {
			bopt := b.SelectedOption()
			if bopt == nil {
				continue
			}
			if aopt.Window.Overlaps(bopt.Window) {
				return &overlapPair{
					a: a, b: b,
					detail: fmt.Sprintf("activity %s overlaps activity %s", aopt.Name, bopt.Name),
				}
			}
		}
	}

	return nil
}

// overlapSubstitution looks for an alternative candidate on either side of
// the clash whose window clears it.
func overlapSubstitution(rs *types.ResultSet, pair *overlapPair) *types.Resolution {
	for _, out := range []*types.TaskOutput{pair.a, pair.b} {
		current := out.SelectedOption()
		if current == nil {
			continue
		}
		other := pair.b
		if out == pair.b {
			other = pair.a
		}
		otherOpt := other.SelectedOption()
		if otherOpt == nil {
			continue
		}
		for i, cand := range out.Candidates {
			if i == out.Selected || !cand.Available {
				continue
			}
			if clears(out.Capability, cand, other.Capability, *otherOpt) {
				return &types.Resolution{
					Description:    fmt.Sprintf("replace %s with %s to clear schedule clash", current.Name, cand.Name),
					TaskID:         out.TaskID,
					CandidateIndex: i,
				}
			}
		}
	}
	return nil
}

// clears reports whether candidate a of capability ca is schedule-compatible
// with option b of capability cb.
func clears(ca types.Capability, a types.Option, cb types.Capability, b types.Option) bool {
	switch {
	case ca == types.CapabilityTransport && cb == types.CapabilityHotel:
		return !a.Window.End.After(b.Window.Start)
	case ca == types.CapabilityHotel && cb == types.CapabilityTransport:
		return !b.Window.End.After(a.Window.Start)
	default:
		return !a.Window.Overlaps(b.Window)
	}
}

// overlapProposals lists every clash-clearing alternative on either side.
func overlapProposals(rs *types.ResultSet, pair *overlapPair) []types.Resolution {
	var proposals []types.Resolution
	for _, out := range []*types.TaskOutput{pair.a, pair.b} {
		current := out.SelectedOption()
		if current == nil {
			continue
		}
		other := pair.b
		if out == pair.b {
			other = pair.a
		}
		otherOpt := other.SelectedOption()
		for i, cand := range out.Candidates {
			if i == out.Selected || !cand.Available {
				continue
			}
			if otherOpt != nil && !clears(out.Capability, cand, other.Capability, *otherOpt) {
				continue
			}
			proposals = append(proposals, types.Resolution{
				Description:    fmt.Sprintf("replace %s with %s", current.Name, cand.Name),
				TaskID:         out.TaskID,
				CandidateIndex: i,
			})
		}
	}
	return proposals
}

// evaluateAvailability surfaces selected options whose availability flag is
// false. Never auto-resolved.
func (r *Resolver) evaluateAvailability(rs *types.ResultSet, eval *Evaluation) {
	rs.Each(func(out *types.TaskOutput) {
		opt := out.SelectedOption()
		if opt == nil || opt.Available {
			return
		}
		c := types.Conflict{
			ID:         uuid.New().String(),
			Kind:       types.ConflictResourceUnavailable,
			TaskIDs:    []string{out.TaskID},
			Detail:     fmt.Sprintf("selected option %s is no longer available", opt.Name),
			DetectedAt: time.Now(),
		}
		eval.Unresolved = append(eval.Unresolved, c)
		eval.Proposals[c.ID] = availabilityProposals(out)
	})
}

// availabilityProposals lists the available alternatives for the task.
func availabilityProposals(out *types.TaskOutput) []types.Resolution {
	var proposals []types.Resolution
	current := out.SelectedOption()
	for i, cand := range out.Candidates {
		if i == out.Selected || !cand.Available {
			continue
		}
		proposals = append(proposals, types.Resolution{
			Description:    fmt.Sprintf("replace %s with available %s", current.Name, cand.Name),
			TaskID:         out.TaskID,
			CandidateIndex: i,
		})
	}
	return proposals
}

// contradictoryTags pairs preference tags that no itinerary can satisfy
// simultaneously.
var contradictoryTags = map[string]string{
	"near-beach":       "city-center-only",
	"city-center-only": "near-beach",
	"budget":           "luxury",
	"luxury":           "budget",
	"quiet":            "nightlife",
	"nightlife":        "quiet",
}

// evaluateContradictions surfaces pairs of accepted options that violate a
// stated hard preference. Never auto-resolved.
func (r *Resolver) evaluateContradictions(req *types.TripRequest, rs *types.ResultSet, eval *Evaluation) {
	prefs := make(map[string]bool, len(req.HardPreferences))
	for _, p := range req.HardPreferences {
		prefs[p] = true
	}
	if len(prefs) == 0 {
		return
	}

	var selected []*types.TaskOutput
	rs.Each(func(out *types.TaskOutput) {
		if out.SelectedOption() != nil {
			selected = append(selected, out)
		}
	})

	for i, a := range selected {
		aopt := a.SelectedOption()
		for _, b := range selected[i+1:] {
			bopt := b.SelectedOption()
			for tag, opposite := range contradictoryTags {
				if !prefs[tag] || !prefs[opposite] {
					continue
				}
				if aopt.HasTag(tag) && bopt.HasTag(opposite) {
					eval.Unresolved = append(eval.Unresolved, types.Conflict{
						ID:      uuid.New().String(),
						Kind:    types.ConflictRequirementContradiction,
						TaskIDs: []string{a.TaskID, b.TaskID},
						Detail: fmt.Sprintf("options %s (%s) and %s (%s) cannot both satisfy the stated preferences",
							aopt.Name, tag, bopt.Name, opposite),
						DetectedAt: time.Now(),
					})
				}
			}
		}
	}
}

// selectedTaskIDs lists the task ids contributing a selected option.
func selectedTaskIDs(rs *types.ResultSet) []string {
	var ids []string
	rs.Each(func(out *types.TaskOutput) {
		if out.SelectedOption() != nil {
			ids = append(ids, out.TaskID)
		}
	})
	sort.Strings(ids)
	return ids
}
