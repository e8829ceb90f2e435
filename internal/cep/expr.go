// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// EvalContext supplies field lookups for expression evaluation. Event is
// the currently-advancing event for bare (alias-less) field references;
// AliasEvents holds, per alias, the most recently observed event so
// score/entity/guard expressions can cross-reference another alias
// (e.g. "fail.sip"). CloseReason is bound only while evaluating close
// steps (spec §4.5: "a close_reason pseudo-field is bound to the reason
// string").
type EvalContext struct {
	Event       batch.Event
	AliasEvents map[string]batch.Event
	CloseReason string
}

func (c EvalContext) lookup(alias, field string) batch.Value {
	if field == "close_reason" && alias == "" {
		if c.CloseReason == "" {
			return batch.NullValue
		}
		return batch.StringValue(c.CloseReason)
	}
	if alias == "" {
		return c.Event.Field(field)
	}
	ev, ok := c.AliasEvents[alias]
	if !ok {
		return batch.NullValue
	}
	return ev.Field(field)
}

// Expr is one node of an expression tree evaluated over an EvalContext.
// Evaluation never errors: unrepresentable operations (type mismatches,
// missing fields) propagate as a null Value per the three-valued logic
// spec §9 mandates ("boolean operators must honour false && null =
// false, true || null = true, null && null = null").
type Expr interface {
	Eval(ctx EvalContext) batch.Value
}

// FieldRef resolves "alias.field" (or a bare "field" when Alias is
// empty) against the context.
type FieldRef struct {
	Alias string
	Field string
}

func (f FieldRef) Eval(ctx EvalContext) batch.Value {
	return ctx.lookup(f.Alias, f.Field)
}

// Literal is a constant value.
type Literal struct {
	Value batch.Value
}

func (l Literal) Eval(_ EvalContext) batch.Value { return l.Value }

// BinOp identifies a binary operator.
type BinOp string

const (
	OpAnd BinOp = "&&"
	OpOr  BinOp = "||"
	OpEq  BinOp = "=="
	OpNeq BinOp = "!="
	OpLt  BinOp = "<"
	OpLte BinOp = "<="
	OpGt  BinOp = ">"
	OpGte BinOp = ">="
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
)

// BinaryExpr applies op to two sub-expressions. Boolean ops (&&, ||)
// implement three-valued logic directly; comparisons and arithmetic
// return null on any null operand or incompatible-type operand pair,
// per spec §4.5/§9.
type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
}

func (b BinaryExpr) Eval(ctx EvalContext) batch.Value {
	switch b.Op {
	case OpAnd:
		return evalAnd(b.Left.Eval(ctx), b.Right.Eval(ctx))
	case OpOr:
		return evalOr(b.Left.Eval(ctx), b.Right.Eval(ctx))
	}

	l := b.Left.Eval(ctx)
	r := b.Right.Eval(ctx)
	if l.IsNull() || r.IsNull() {
		return batch.NullValue
	}

	switch b.Op {
	case OpEq, OpNeq:
		if l.Kind() != r.Kind() {
			return batch.NullValue
		}
		if b.Op == OpEq {
			return batch.BoolValue(valuesEqual(l, r))
		}
		return batch.BoolValue(!valuesEqual(l, r))
	case OpLt, OpLte, OpGt, OpGte:
		if l.Kind() != r.Kind() || l.Kind() == batch.Bool {
			return batch.NullValue
		}
		cmp := l.Compare(r)
		switch b.Op {
		case OpLt:
			return batch.BoolValue(cmp < 0)
		case OpLte:
			return batch.BoolValue(cmp <= 0)
		case OpGt:
			return batch.BoolValue(cmp > 0)
		default:
			return batch.BoolValue(cmp >= 0)
		}
	case OpAdd, OpSub, OpMul, OpDiv:
		if l.Kind() != batch.Number || r.Kind() != batch.Number {
			return batch.NullValue
		}
		switch b.Op {
		case OpAdd:
			return batch.NumberValue(l.Number() + r.Number())
		case OpSub:
			return batch.NumberValue(l.Number() - r.Number())
		case OpMul:
			return batch.NumberValue(l.Number() * r.Number())
		default:
			if r.Number() == 0 {
				return batch.NullValue
			}
			return batch.NumberValue(l.Number() / r.Number())
		}
	}
	return batch.NullValue
}

func valuesEqual(l, r batch.Value) bool {
	if l.Kind() != r.Kind() {
		return false
	}
	switch l.Kind() {
	case batch.Number:
		return l.Number() == r.Number()
	case batch.String:
		return l.String() == r.String()
	case batch.Bool:
		return l.Bool() == r.Bool()
	default:
		return true
	}
}

// evalAnd implements Kleene conjunction: false dominates null.
func evalAnd(l, r batch.Value) batch.Value {
	if isFalse(l) || isFalse(r) {
		return batch.BoolValue(false)
	}
	if l.IsNull() || r.IsNull() {
		return batch.NullValue
	}
	return batch.BoolValue(isTrue(l) && isTrue(r))
}

// evalOr implements Kleene disjunction: true dominates null.
func evalOr(l, r batch.Value) batch.Value {
	if isTrue(l) || isTrue(r) {
		return batch.BoolValue(true)
	}
	if l.IsNull() || r.IsNull() {
		return batch.NullValue
	}
	return batch.BoolValue(isTrue(l) || isTrue(r))
}

func isTrue(v batch.Value) bool  { return v.Kind() == batch.Bool && v.Bool() }
func isFalse(v batch.Value) bool { return v.Kind() == batch.Bool && !v.Bool() }

// UnaryNot negates a boolean value; null propagates.
type UnaryNot struct {
	Operand Expr
}

func (u UnaryNot) Eval(ctx EvalContext) batch.Value {
	v := u.Operand.Eval(ctx)
	if v.IsNull() {
		return batch.NullValue
	}
	if v.Kind() != batch.Bool {
		return batch.NullValue
	}
	return batch.BoolValue(!v.Bool())
}

// FuncName identifies one of the built-in scalar functions.
type FuncName string

const (
	FuncContains FuncName = "contains"
	FuncLower    FuncName = "lower"
	FuncUpper    FuncName = "upper"
	FuncLen      FuncName = "len"
)

// FuncCall applies a built-in function to its arguments (spec §4.5:
// "contains, lower, upper, len... implemented with unicode-aware
// character semantics for len").
type FuncCall struct {
	Name FuncName
	Args []Expr
}

func (f FuncCall) Eval(ctx EvalContext) batch.Value {
	args := make([]batch.Value, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.Eval(ctx)
		if args[i].IsNull() {
			return batch.NullValue
		}
	}

	switch f.Name {
	case FuncContains:
		if len(args) != 2 || args[0].Kind() != batch.String || args[1].Kind() != batch.String {
			return batch.NullValue
		}
		return batch.BoolValue(strings.Contains(args[0].String(), args[1].String()))
	case FuncLower:
		if len(args) != 1 || args[0].Kind() != batch.String {
			return batch.NullValue
		}
		return batch.StringValue(strings.ToLower(args[0].String()))
	case FuncUpper:
		if len(args) != 1 || args[0].Kind() != batch.String {
			return batch.NullValue
		}
		return batch.StringValue(strings.ToUpper(args[0].String()))
	case FuncLen:
		if len(args) != 1 || args[0].Kind() != batch.String {
			return batch.NullValue
		}
		return batch.NumberValue(float64(utf8.RuneCountInString(args[0].String())))
	default:
		return batch.NullValue
	}
}

// EncodeScopeKey renders a scope-key tuple as the deterministic string
// used as an instance id (spec §9: "never collides for distinct tuples
// and is cheap"). Each component is length-prefixed ahead of its
// canonical encoding so no component's content can forge a boundary.
func EncodeScopeKey(values []batch.Value) string {
	var b strings.Builder
	for _, v := range values {
		enc := v.Canonical()
		b.WriteString(strconv.Itoa(len(enc)))
		b.WriteByte(':')
		b.WriteString(enc)
	}
	return b.String()
}
