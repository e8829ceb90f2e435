// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import "time"

// MeasureKind is the terminal aggregate measure of a branch's pipe
// (spec §4.5: "count, sum, avg, min, max").
type MeasureKind string

const (
	MeasureCount MeasureKind = "count"
	MeasureSum   MeasureKind = "sum"
	MeasureAvg   MeasureKind = "avg"
	MeasureMin   MeasureKind = "min"
	MeasureMax   MeasureKind = "max"
)

// Comparator is the threshold comparison applied to a branch's measure.
type Comparator string

const (
	CmpGte Comparator = ">="
	CmpGt  Comparator = ">"
	CmpEq  Comparator = "=="
	CmpNeq Comparator = "!="
	CmpLt  Comparator = "<"
	CmpLte Comparator = "<="
)

// Branch is one OR-branch of a step: an event source with an optional
// guard, piped through an optional distinct transform into a measure
// and a threshold comparison (spec §4.5).
type Branch struct {
	Label    string
	Source   string // alias this branch reads from
	Column   string // field to measure; optional for MeasureCount, which counts every event when it is empty
	Guard    Expr   // optional inline guard; nil means "always true"
	Distinct bool
	Measure  MeasureKind
	Cmp      Comparator
	Threshold float64
}

// Step is one position in an ordered step list; any branch reaching
// its threshold satisfies the whole step (OR semantics).
type Step []Branch

// Bind maps a rule-local alias to a window name and an optional
// bind-level filter (spec §4.5's "events" block).
type Bind struct {
	Alias      string
	WindowName string
	Filter     Expr // optional; nil means unfiltered
}

// MatchPlan is the per-rule CEP configuration (spec §4.5's "the input
// contract").
type MatchPlan struct {
	Keys       []Expr
	Window     time.Duration // sliding maxspan D
	EventSteps []Step
	CloseSteps []Step
}

// YieldSpec names the routing target attached to every alert this rule
// emits (spec §3's AlertRecord.yield_target).
type YieldSpec struct {
	Target string
}

// RulePlan is the compiled input to a rule task (spec §4.5, §6.2): in
// this core it is a plain Go value rather than the output of an
// external WFL/WFS compiler, which is out of scope (spec §1).
type RulePlan struct {
	RuleName  string
	Binds     []Bind
	Match     MatchPlan
	ScoreExpr Expr
	EntityType Expr
	EntityID   Expr
	Yield      YieldSpec
}
