// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import "github.com/warpfusion/warpfusion/internal/batch"

// CloseReason is the three-way reason a CEP instance closed (spec §3,
// §4.5).
type CloseReason string

const (
	ReasonTimeout CloseReason = "timeout"
	ReasonFlush   CloseReason = "flush"
	ReasonEOS     CloseReason = "eos"
)

// TaggedEvent is one buffered raw event kept for close-step
// recomputation (spec §4.5: close_steps are "evaluated once on close
// rather than incrementally", which requires replaying the alias's raw
// events at close time rather than folding them as they arrive — a
// close branch may guard on close_reason, a pseudo-field unbound until
// the instance actually closes).
type TaggedEvent struct {
	Alias string
	Event batch.Event
}

// StepData captures one satisfied step's winning branch for inclusion
// in a match or close output (spec §3's CEP Instance "completed_steps").
type StepData struct {
	StepIndex   int
	BranchLabel string
	Value       batch.Value
	MatchedRows int64
}

// MatchedContext is handed to the rule executor when an instance's
// on-event steps complete with no close steps defined (spec §4.5's
// immediate Matched outcome).
type MatchedContext struct {
	RuleName       string
	ScopeKeyValues []batch.Value
	ScopeKey       string
	CreatedAt      int64
	CompletedSteps []StepData
	AliasEvents    map[string]batch.Event
}

// CloseOutput is produced when an instance closes, by any reason (spec
// §4.5's "close(scope_key, reason)", "scan_expired", "close_all").
type CloseOutput struct {
	RuleName       string
	ScopeKey       string
	ScopeKeyValues []batch.Value
	Reason         CloseReason
	EventOK        bool
	CloseOK        bool
	CompletedSteps []StepData
	CloseSteps     []StepData
	AliasEvents    map[string]batch.Event
}

// instance is one live CEP state machine instance, keyed by scope key
// (spec §3's "CEP Instance"). It is never shared across goroutines: a
// rule task owns its Machine, and therefore every instance inside it,
// exclusively (spec §9's "exclusive ownership of the state machine").
type instance struct {
	scopeKey       string
	scopeKeyValues []batch.Value
	createdAt      int64

	currentStep int
	eventOK     bool
	stepStates  []BranchState // len == len(currentStepBranches); reset per step
	completed   []StepData

	aliasLastEvent map[string]batch.Event
	closeBuffer    []TaggedEvent // raw events for aliases referenced by close steps

	matchedEmitted bool // immediate Matched already emitted (no close steps)
}

func newInstance(scopeKey string, scopeKeyValues []batch.Value, createdAt int64, firstStep Step) *instance {
	inst := &instance{
		scopeKey:       scopeKey,
		scopeKeyValues: scopeKeyValues,
		createdAt:      createdAt,
		aliasLastEvent: make(map[string]batch.Event),
	}
	inst.resetStepStates(firstStep)
	return inst
}

func (inst *instance) resetStepStates(step Step) {
	states := make([]BranchState, len(step))
	for i, br := range step {
		states[i] = NewBranchState(br.Distinct)
	}
	inst.stepStates = states
}
