// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import "github.com/warpfusion/warpfusion/internal/batch"

// ResultKind classifies the outcome of one Advance call (spec §4.5:
// "Accumulate, Advance, or Matched(MatchedContext)").
type ResultKind int

const (
	ResultAccumulate ResultKind = iota
	ResultAdvance
	ResultMatched
)

// Result is the outcome of Advance. Matched is populated only when Kind
// is ResultMatched. Expired carries a CloseOutput when a maxspan check
// force-closed a stale instance before processing this event (spec
// §4.5 step 4: "discard the instance, then create a fresh instance for
// this event and continue").
type Result struct {
	Kind    ResultKind
	Matched *MatchedContext
	Expired *CloseOutput
}

// Machine is the per-rule CEP state machine (C5): an instance pool
// keyed by scope key, owned exclusively by one rule task (spec §4.5,
// §5, §9).
type Machine struct {
	plan RulePlan

	bindFilters map[string]Expr // alias -> bind filter
	closeAlias  map[string]bool // aliases referenced by a close-step branch

	instances map[string]*instance
}

// NewMachine builds a fresh, empty machine for plan.
func NewMachine(plan RulePlan) *Machine {
	m := &Machine{
		plan:        plan,
		bindFilters: make(map[string]Expr),
		closeAlias:  make(map[string]bool),
		instances:   make(map[string]*instance),
	}
	for _, b := range plan.Binds {
		if b.Filter != nil {
			m.bindFilters[b.Alias] = b.Filter
		}
	}
	for _, step := range plan.Match.CloseSteps {
		for _, br := range step {
			m.closeAlias[br.Source] = true
		}
	}
	return m
}

// Len reports the number of live instances (for CepInstancesActive).
func (m *Machine) Len() int { return len(m.instances) }

// Advance feeds one event bound to alias into the machine (spec §4.5's
// per-event algorithm).
func (m *Machine) Advance(alias string, event batch.Event, eventTimeNanos int64) Result {
	if filter, ok := m.bindFilters[alias]; ok {
		ctx := EvalContext{Event: event}
		if v := filter.Eval(ctx); !isTrue(v) {
			return Result{Kind: ResultAccumulate}
		}
	}

	keyValues, ok := m.extractScopeKey(event)
	if !ok {
		return Result{Kind: ResultAccumulate}
	}
	scopeKey := EncodeScopeKey(keyValues)

	var expired *CloseOutput
	inst, exists := m.instances[scopeKey]
	if exists && m.plan.Match.Window > 0 && eventTimeNanos-inst.createdAt > int64(m.plan.Match.Window) {
		co := m.closeInstance(inst, ReasonTimeout)
		expired = &co
		delete(m.instances, scopeKey)
		exists = false
	}

	if !exists {
		firstStep := Step(nil)
		if len(m.plan.Match.EventSteps) > 0 {
			firstStep = m.plan.Match.EventSteps[0]
		}
		inst = newInstance(scopeKey, keyValues, eventTimeNanos, firstStep)
		m.instances[scopeKey] = inst
	}

	inst.aliasLastEvent[alias] = event
	if m.closeAlias[alias] {
		inst.closeBuffer = append(inst.closeBuffer, TaggedEvent{Alias: alias, Event: event})
	}

	advanced := m.advanceEventSteps(inst, alias, event)

	result := Result{Kind: ResultAccumulate, Expired: expired}
	switch {
	case inst.eventOK && !inst.matchedEmitted && len(m.plan.Match.CloseSteps) == 0:
		inst.matchedEmitted = true
		result.Kind = ResultMatched
		result.Matched = &MatchedContext{
			RuleName:       m.plan.RuleName,
			ScopeKeyValues: keyValues,
			ScopeKey:       scopeKey,
			CreatedAt:      inst.createdAt,
			CompletedSteps: append([]StepData(nil), inst.completed...),
			AliasEvents:    cloneAliasEvents(inst.aliasLastEvent),
		}
		// A rule with no close steps has nothing left to wait for once
		// matched; retiring the instance here keeps a later
		// scan_expired/close_all from re-evaluating it and re-emitting
		// the same alert as a (vacuously close_ok) timeout/eos close.
		delete(m.instances, scopeKey)
	case advanced:
		result.Kind = ResultAdvance
	}
	return result
}

// extractScopeKey evaluates every key expression against event; a null
// component means this event cannot be attributed to any instance
// (spec §4.5 step 2: "If any key value is null/missing, skip").
func (m *Machine) extractScopeKey(event batch.Event) ([]batch.Value, bool) {
	ctx := EvalContext{Event: event}
	values := make([]batch.Value, len(m.plan.Match.Keys))
	for i, k := range m.plan.Match.Keys {
		v := k.Eval(ctx)
		if v.IsNull() {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// advanceEventSteps folds event into the current step's matching
// branches and reports whether a step was satisfied this call.
func (m *Machine) advanceEventSteps(inst *instance, alias string, event batch.Event) bool {
	if inst.currentStep >= len(m.plan.Match.EventSteps) {
		return false
	}
	step := m.plan.Match.EventSteps[inst.currentStep]
	ctx := EvalContext{Event: event, AliasEvents: inst.aliasLastEvent}

	for i, br := range step {
		if br.Source != alias {
			continue
		}
		if br.Guard != nil {
			if g := br.Guard.Eval(ctx); !isTrue(g) {
				continue
			}
		}
		inst.stepStates[i].Update(branchColumnValue(br, event))
	}

	for i, br := range step {
		if !inst.stepStates[i].Satisfied(br.Measure, br.Cmp, br.Threshold) {
			continue
		}
		inst.completed = append(inst.completed, StepData{
			StepIndex:   inst.currentStep,
			BranchLabel: br.Label,
			Value:       inst.stepStates[i].Measure(br.Measure),
			MatchedRows: inst.stepStates[i].count,
		})
		inst.currentStep++
		if inst.currentStep < len(m.plan.Match.EventSteps) {
			inst.resetStepStates(m.plan.Match.EventSteps[inst.currentStep])
		} else {
			inst.eventOK = true
		}
		return true
	}
	return false
}

func branchColumnValue(br Branch, event batch.Event) batch.Value {
	if br.Measure == MeasureCount && br.Column == "" {
		return batch.BoolValue(true) // any non-null sentinel; count ignores content
	}
	return event.Field(br.Column)
}

func cloneAliasEvents(m map[string]batch.Event) map[string]batch.Event {
	out := make(map[string]batch.Event, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Close explicitly closes one instance by scope key (spec §4.5's
// "close(scope_key, reason)").
func (m *Machine) Close(scopeKey string, reason CloseReason) (*CloseOutput, bool) {
	inst, ok := m.instances[scopeKey]
	if !ok {
		return nil, false
	}
	co := m.closeInstance(inst, reason)
	delete(m.instances, scopeKey)
	return &co, true
}

// ScanExpired closes every instance whose maxspan has elapsed as of
// watermarkNanos (spec §4.5's "scan_expired(watermark)").
func (m *Machine) ScanExpired(watermarkNanos int64) []CloseOutput {
	if m.plan.Match.Window <= 0 {
		return nil
	}
	var out []CloseOutput
	for key, inst := range m.instances {
		if inst.createdAt+int64(m.plan.Match.Window) < watermarkNanos {
			out = append(out, m.closeInstance(inst, ReasonTimeout))
			delete(m.instances, key)
		}
	}
	return out
}

// CloseAll closes every live instance, used at shutdown (Eos) or
// explicit flush (spec §4.5's "close_all(reason)").
func (m *Machine) CloseAll(reason CloseReason) []CloseOutput {
	out := make([]CloseOutput, 0, len(m.instances))
	for key, inst := range m.instances {
		out = append(out, m.closeInstance(inst, reason))
		delete(m.instances, key)
	}
	return out
}

// closeInstance evaluates close_steps fresh against the instance's
// buffered raw events, with close_reason now bound (spec §4.5's close
// path). If the plan defines no close steps, close_ok is vacuously
// true (spec §8's boundary behaviour).
func (m *Machine) closeInstance(inst *instance, reason CloseReason) CloseOutput {
	closeSteps := m.plan.Match.CloseSteps
	closeOK := true
	var stepData []StepData

	for idx, step := range closeSteps {
		satisfied, data := evaluateCloseStep(step, idx, inst, string(reason))
		if !satisfied {
			closeOK = false
			continue
		}
		stepData = append(stepData, data)
	}

	return CloseOutput{
		RuleName:       m.plan.RuleName,
		ScopeKey:       inst.scopeKey,
		ScopeKeyValues: inst.scopeKeyValues,
		Reason:         reason,
		EventOK:        inst.eventOK,
		CloseOK:        closeOK,
		CompletedSteps: append([]StepData(nil), inst.completed...),
		CloseSteps:     stepData,
		AliasEvents:    cloneAliasEvents(inst.aliasLastEvent),
	}
}

func evaluateCloseStep(step Step, idx int, inst *instance, closeReason string) (bool, StepData) {
	for _, br := range step {
		bs := NewBranchState(br.Distinct)
		for _, te := range inst.closeBuffer {
			if te.Alias != br.Source {
				continue
			}
			ctx := EvalContext{Event: te.Event, AliasEvents: inst.aliasLastEvent, CloseReason: closeReason}
			if br.Guard != nil {
				if g := br.Guard.Eval(ctx); !isTrue(g) {
					continue
				}
			}
			bs.Update(branchColumnValue(br, te.Event))
		}
		if bs.Satisfied(br.Measure, br.Cmp, br.Threshold) {
			return true, StepData{
				StepIndex:   idx,
				BranchLabel: br.Label,
				Value:       bs.Measure(br.Measure),
				MatchedRows: bs.count,
			}
		}
	}
	return false, StepData{}
}
