// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import (
	"fmt"
	"time"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/batch"
)

// Executor turns CEP outputs into alert.Records (spec §4.5's "rule
// executor"). One Executor is owned by exactly one rule task, alongside
// its Machine.
type Executor struct {
	plan RulePlan
	now  func() time.Time
}

// NewExecutor builds an executor for plan. now is injected for
// deterministic testing of fired_at.
func NewExecutor(plan RulePlan, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{plan: plan, now: now}
}

// ExecuteMatch handles the immediate-match path: a rule with no close
// steps whose on-event steps just completed (spec §4.5: "On Matched:
// evaluate the score expression and entity expression against the
// MatchedContext... close_reason = None").
func (e *Executor) ExecuteMatch(ctx *MatchedContext) (*alert.Record, error) {
	evalCtx := EvalContext{AliasEvents: ctx.AliasEvents}
	return e.buildRecord(evalCtx, ctx.ScopeKey, "", ctx.CreatedAt)
}

// ExecuteClose handles the close path: an alert is emitted only if both
// event_ok and close_ok hold (spec §4.5: "emit an alert only if
// event_ok ∧ close_ok. Partially satisfied instances are silently
// discarded.").
func (e *Executor) ExecuteClose(co *CloseOutput) (*alert.Record, error) {
	if !co.EventOK || !co.CloseOK {
		return nil, nil
	}
	evalCtx := EvalContext{AliasEvents: co.AliasEvents, CloseReason: string(co.Reason)}
	rec, err := e.buildRecord(evalCtx, co.ScopeKey, alert.CloseReason(co.Reason), 0)
	return rec, err
}

func (e *Executor) buildRecord(evalCtx EvalContext, scopeKey string, closeReason alert.CloseReason, _ int64) (*alert.Record, error) {
	scoreVal := e.plan.ScoreExpr.Eval(evalCtx)
	if scoreVal.Kind() != batch.Number {
		return nil, fmt.Errorf("rule %s: score expression did not produce a number", e.plan.RuleName)
	}

	entityType := e.plan.EntityType.Eval(evalCtx)
	entityID := e.plan.EntityID.Eval(evalCtx)

	firedAt := e.now()
	rec := &alert.Record{
		AlertID:     alert.NextID(e.plan.RuleName, scopeKey, firedAt),
		RuleName:    e.plan.RuleName,
		Score:       alert.ClampScore(scoreVal.Number()),
		EntityType:  entityType.String(),
		EntityID:    entityID.String(),
		CloseReason: closeReason,
		FiredAt:     firedAt,
		YieldTarget: e.plan.Yield.Target,
	}
	return rec, nil
}
