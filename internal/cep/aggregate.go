// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import "github.com/warpfusion/warpfusion/internal/batch"

// BranchState is a branch's running aggregate (spec §4.5's "running
// BranchState"). A zero BranchState is ready to use.
type BranchState struct {
	count int64
	sum   float64

	hasExtreme bool
	min, max   batch.Value

	distinct bool
	seen     map[string]batch.Value // canonical encoding -> first-seen value
}

// NewBranchState creates a state for a branch with the given distinct
// transform setting.
func NewBranchState(distinct bool) BranchState {
	bs := BranchState{distinct: distinct}
	if distinct {
		bs.seen = make(map[string]batch.Value)
	}
	return bs
}

// Update folds one field value into the aggregate. A null value is
// skipped (spec §4.5: "sum: add the numeric field value (skip nulls)").
func (bs *BranchState) Update(v batch.Value) {
	if v.IsNull() {
		return
	}
	if bs.distinct {
		key := v.Canonical()
		if _, ok := bs.seen[key]; ok {
			return
		}
		bs.seen[key] = v
	}

	bs.count++
	if v.Kind() == batch.Number {
		bs.sum += v.Number()
	}
	if !bs.hasExtreme {
		bs.min, bs.max = v, v
		bs.hasExtreme = true
		return
	}
	if v.Compare(bs.min) < 0 {
		bs.min = v
	}
	if v.Compare(bs.max) > 0 {
		bs.max = v
	}
}

// Measure evaluates measure over the accumulated state. For Count with
// a distinct transform, the result is the set's cardinality (spec §8's
// "distinct followed by count equals the cardinality of the set");
// without distinct it is the raw update count.
func (bs *BranchState) Measure(measure MeasureKind) batch.Value {
	switch measure {
	case MeasureCount:
		return batch.NumberValue(float64(bs.count))
	case MeasureSum:
		return batch.NumberValue(bs.sum)
	case MeasureAvg:
		if bs.count == 0 {
			return batch.NumberValue(0)
		}
		return batch.NumberValue(bs.sum / float64(bs.count))
	case MeasureMin:
		if !bs.hasExtreme {
			return batch.NullValue
		}
		return bs.min
	case MeasureMax:
		if !bs.hasExtreme {
			return batch.NullValue
		}
		return bs.max
	default:
		return batch.NullValue
	}
}

// Satisfied evaluates the branch's threshold comparison against its
// current measure.
func (bs *BranchState) Satisfied(measure MeasureKind, cmp Comparator, threshold float64) bool {
	v := bs.Measure(measure)
	if v.IsNull() {
		return false
	}
	n := v.Number()
	switch cmp {
	case CmpGte:
		return n >= threshold
	case CmpGt:
		return n > threshold
	case CmpEq:
		return n == threshold
	case CmpNeq:
		return n != threshold
	case CmpLt:
		return n < threshold
	case CmpLte:
		return n <= threshold
	default:
		return false
	}
}
