// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import (
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// DecodeRulePlans parses an ordered list of RulePlan values from r. The
// WFL/WFS compiler that normally produces RulePlan values is out of scope
// (spec §1); this is the stand-in artifact format WarpFusion's operators
// author by hand or generate from their own tooling. Expressions are a
// small tagged-union JSON AST (exprJSON) rather than the WFL surface
// syntax, since parsing that grammar is the compiler's job, not the
// core's.
func DecodeRulePlans(r io.Reader) ([]RulePlan, error) {
	var raw []rulePlanJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("cep: decode rule plans: %w", err)
	}

	plans := make([]RulePlan, len(raw))
	for i, rp := range raw {
		plan, err := rp.toRulePlan()
		if err != nil {
			return nil, fmt.Errorf("cep: rule %d: %w", i, err)
		}
		plans[i] = plan
	}
	return plans, nil
}

type rulePlanJSON struct {
	RuleName   string      `json:"rule_name"`
	Binds      []bindJSON  `json:"binds"`
	Match      matchJSON   `json:"match"`
	Score      *exprJSON   `json:"score"`
	EntityType *exprJSON   `json:"entity_type"`
	EntityID   *exprJSON   `json:"entity_id"`
	Yield      yieldJSON   `json:"yield"`
}

type bindJSON struct {
	Alias  string    `json:"alias"`
	Window string    `json:"window"`
	Filter *exprJSON `json:"filter"`
}

type matchJSON struct {
	Keys       []exprJSON   `json:"keys"`
	Window     string       `json:"window"` // e.g. "5m", parsed via time.ParseDuration
	EventSteps [][]branchJSON `json:"event_steps"`
	CloseSteps [][]branchJSON `json:"close_steps"`
}

type branchJSON struct {
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	Column    string    `json:"column"`
	Guard     *exprJSON `json:"guard"`
	Distinct  bool      `json:"distinct"`
	Measure   string    `json:"measure"`
	Cmp       string    `json:"cmp"`
	Threshold float64   `json:"threshold"`
}

type yieldJSON struct {
	Target string `json:"target"`
}

func (rp rulePlanJSON) toRulePlan() (RulePlan, error) {
	if rp.RuleName == "" {
		return RulePlan{}, fmt.Errorf("missing rule_name")
	}

	binds := make([]Bind, len(rp.Binds))
	for i, b := range rp.Binds {
		filter, err := b.Filter.toExpr()
		if err != nil {
			return RulePlan{}, fmt.Errorf("bind %q filter: %w", b.Alias, err)
		}
		binds[i] = Bind{Alias: b.Alias, WindowName: b.Window, Filter: filter}
	}

	match, err := rp.Match.toMatchPlan()
	if err != nil {
		return RulePlan{}, err
	}

	score, err := rp.Score.toExpr()
	if err != nil {
		return RulePlan{}, fmt.Errorf("score: %w", err)
	}
	entityType, err := rp.EntityType.toExpr()
	if err != nil {
		return RulePlan{}, fmt.Errorf("entity_type: %w", err)
	}
	entityID, err := rp.EntityID.toExpr()
	if err != nil {
		return RulePlan{}, fmt.Errorf("entity_id: %w", err)
	}

	return RulePlan{
		RuleName:   rp.RuleName,
		Binds:      binds,
		Match:      match,
		ScoreExpr:  score,
		EntityType: entityType,
		EntityID:   entityID,
		Yield:      YieldSpec{Target: rp.Yield.Target},
	}, nil
}

func (m matchJSON) toMatchPlan() (MatchPlan, error) {
	window, err := time.ParseDuration(m.Window)
	if err != nil {
		return MatchPlan{}, fmt.Errorf("match window %q: %w", m.Window, err)
	}

	keys := make([]Expr, len(m.Keys))
	for i := range m.Keys {
		k, err := m.Keys[i].toExpr()
		if err != nil {
			return MatchPlan{}, fmt.Errorf("key %d: %w", i, err)
		}
		keys[i] = k
	}

	eventSteps, err := toSteps(m.EventSteps)
	if err != nil {
		return MatchPlan{}, fmt.Errorf("event_steps: %w", err)
	}
	closeSteps, err := toSteps(m.CloseSteps)
	if err != nil {
		return MatchPlan{}, fmt.Errorf("close_steps: %w", err)
	}

	return MatchPlan{Keys: keys, Window: window, EventSteps: eventSteps, CloseSteps: closeSteps}, nil
}

func toSteps(raw [][]branchJSON) ([]Step, error) {
	steps := make([]Step, len(raw))
	for i, branches := range raw {
		step := make(Step, len(branches))
		for j, b := range branches {
			branch, err := b.toBranch()
			if err != nil {
				return nil, fmt.Errorf("step %d branch %d: %w", i, j, err)
			}
			step[j] = branch
		}
		steps[i] = step
	}
	return steps, nil
}

func (b branchJSON) toBranch() (Branch, error) {
	guard, err := b.Guard.toExpr()
	if err != nil {
		return Branch{}, fmt.Errorf("guard: %w", err)
	}
	measure := MeasureKind(b.Measure)
	switch measure {
	case MeasureCount, MeasureSum, MeasureAvg, MeasureMin, MeasureMax:
	default:
		return Branch{}, fmt.Errorf("unknown measure %q", b.Measure)
	}
	cmp := Comparator(b.Cmp)
	switch cmp {
	case CmpGte, CmpGt, CmpEq, CmpNeq, CmpLt, CmpLte:
	default:
		return Branch{}, fmt.Errorf("unknown comparator %q", b.Cmp)
	}
	return Branch{
		Label:     b.Label,
		Source:    b.Source,
		Column:    b.Column,
		Guard:     guard,
		Distinct:  b.Distinct,
		Measure:   measure,
		Cmp:       cmp,
		Threshold: b.Threshold,
	}, nil
}

// exprJSON is a tagged-union node of the expression-tree artifact format.
// "op" selects the node kind; unused fields are ignored for that kind.
type exprJSON struct {
	Op    string      `json:"op"`
	Alias string      `json:"alias"`
	Field string      `json:"field"`
	Value interface{} `json:"value"`
	Left  *exprJSON   `json:"left"`
	Right *exprJSON   `json:"right"`
	Operand *exprJSON `json:"operand"`
	Name  string      `json:"name"`
	Args  []exprJSON  `json:"args"`
}

// toExpr converts e to an Expr tree. A nil receiver (the field was absent
// or JSON null) yields a nil Expr, which callers treat as "always true" for
// guards/filters per spec §4.5.
func (e *exprJSON) toExpr() (Expr, error) {
	if e == nil {
		return nil, nil
	}

	switch e.Op {
	case "field":
		return FieldRef{Alias: e.Alias, Field: e.Field}, nil
	case "lit":
		v, err := literalValue(e.Value)
		if err != nil {
			return nil, err
		}
		return Literal{Value: v}, nil
	case "not":
		operand, err := e.Operand.toExpr()
		if err != nil {
			return nil, err
		}
		return UnaryNot{Operand: operand}, nil
	case "&&", "||", "==", "!=", "<", "<=", ">", ">=", "+", "-", "*", "/":
		left, err := e.Left.toExpr()
		if err != nil {
			return nil, err
		}
		right, err := e.Right.toExpr()
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: BinOp(e.Op), Left: left, Right: right}, nil
	case "func":
		args := make([]Expr, len(e.Args))
		for i := range e.Args {
			arg, err := e.Args[i].toExpr()
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return FuncCall{Name: FuncName(e.Name), Args: args}, nil
	default:
		return nil, fmt.Errorf("unknown expression op %q", e.Op)
	}
}

func literalValue(v interface{}) (batch.Value, error) {
	switch val := v.(type) {
	case nil:
		return batch.NullValue, nil
	case bool:
		return batch.BoolValue(val), nil
	case float64:
		return batch.NumberValue(val), nil
	case string:
		return batch.StringValue(val), nil
	default:
		return batch.NullValue, fmt.Errorf("unsupported literal value %#v", v)
	}
}
