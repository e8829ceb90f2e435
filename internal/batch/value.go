// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"fmt"
	"strconv"
)

// Kind discriminates the typed Value union event fields are projected into
// (spec §3: "a mapping from field-name to a typed Value in { number,
// string, boolean }"), plus Null for a missing or explicitly-null field.
type Kind uint8

const (
	Null Kind = iota
	Number
	String
	Bool
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single typed event field value. It is a plain value type
// (no pointers, no allocation on copy) so it can be passed and compared
// freely by CEP aggregate state and expression evaluation.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// NullValue is the canonical null Value.
var NullValue = Value{kind: Null}

func NumberValue(f float64) Value { return Value{kind: Number, num: f} }
func StringValue(s string) Value  { return Value{kind: String, str: s} }
func BoolValue(b bool) Value      { return Value{kind: Bool, b: b} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) Number() float64 { return v.num }
func (v Value) String() string {
	switch v.kind {
	case Null:
		return ""
	case String:
		return v.str
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
func (v Value) Bool() bool { return v.b }

// Canonical returns the deterministic string encoding used for distinct-set
// membership and scope-key serialisation: a type tag prevents the number 1,
// the string "1" and the boolean true from colliding (spec §9, scope-key
// serialisation invariant).
func (v Value) Canonical() string {
	switch v.kind {
	case Null:
		return "n:"
	case Number:
		return "f:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case String:
		return "s:" + v.str
	case Bool:
		if v.b {
			return "b:1"
		}
		return "b:0"
	default:
		return "?:"
	}
}

// Compare orders two non-null values of the same kind for min/max
// aggregation (spec §4.5: "numbers, strings, timestamps; booleans and
// address types are not orderable"). Booleans are rejected by the compiler
// before reaching the core, but Compare still defines a stable ordering so
// a stray boolean never panics a running rule task.
func (v Value) Compare(other Value) int {
	switch v.kind {
	case Number:
		switch {
		case v.num < other.num:
			return -1
		case v.num > other.num:
			return 1
		default:
			return 0
		}
	case String:
		return compareStrings(v.str, other.str)
	case Bool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Value) GoString() string {
	return fmt.Sprintf("Value{%s %q}", v.kind, v.String())
}

// Event is a single row projected from a RecordBatch into field-name ->
// Value form (spec §3).
type Event map[string]Value

// Field looks up a field, returning NullValue (not an error) for a missing
// key so expression evaluation's null-propagation rules apply uniformly to
// missing and explicitly-null fields.
func (e Event) Field(name string) Value {
	if v, ok := e[name]; ok {
		return v
	}
	return NullValue
}
