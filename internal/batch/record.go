// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// RecordBatch is the core's opaque columnar block (spec §3). It wraps an
// arrow.Record, whose own Retain/Release reference counting is exactly the
// "cheap reference-counted handle, zero data copy on clone" the window
// subsystem requires (spec §9) — Clone bumps Arrow's internal refcount
// rather than copying the underlying buffers.
type RecordBatch struct {
	rec arrow.Record
}

// Wrap takes ownership of one reference to rec. The caller must not call
// rec.Release() itself after Wrap; RecordBatch.Release() owns that.
func Wrap(rec arrow.Record) *RecordBatch {
	return &RecordBatch{rec: rec}
}

// Clone returns a new handle sharing the same underlying buffers, retaining
// an additional Arrow reference. Safe to call from multiple goroutines
// concurrently (Arrow's refcount is atomic).
func (b *RecordBatch) Clone() *RecordBatch {
	b.rec.Retain()
	return &RecordBatch{rec: b.rec}
}

// Release drops this handle's reference. The underlying buffers are freed
// once every clone has released.
func (b *RecordBatch) Release() {
	if b.rec != nil {
		b.rec.Release()
		b.rec = nil
	}
}

// Record exposes the underlying arrow.Record for callers that need direct
// columnar access (e.g. an IPC encoder). It does not transfer ownership.
func (b *RecordBatch) Record() arrow.Record { return b.rec }

func (b *RecordBatch) NumRows() int64 {
	if b.rec == nil {
		return 0
	}
	return b.rec.NumRows()
}

func (b *RecordBatch) Schema() *arrow.Schema {
	if b.rec == nil {
		return nil
	}
	return b.rec.Schema()
}

// ByteSize estimates the batch's in-memory footprint by summing each
// column's buffer sizes (spec §3's "byte-size estimate").
func (b *RecordBatch) ByteSize() int64 {
	if b.rec == nil {
		return 0
	}
	var total int64
	for _, col := range b.rec.Columns() {
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}

// TimeRange extracts (min, max) from the named time-field column, returned
// as nanosecond Unix timestamps. ok is false if the column is missing or
// every value in it is null, in which case append_with_watermark treats the
// batch as occurring "now" (spec §4.1 step 1).
func (b *RecordBatch) TimeRange(timeField string) (minT, maxT int64, ok bool) {
	if b.rec == nil || timeField == "" {
		return 0, 0, false
	}
	idx := b.rec.Schema().FieldIndices(timeField)
	if len(idx) == 0 {
		return 0, 0, false
	}
	col := b.rec.Column(idx[0])

	minT, maxT = math.MaxInt64, math.MinInt64
	found := false
	n := col.Len()
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		v, vok := columnValueAsNanos(col, i)
		if !vok {
			continue
		}
		found = true
		if v < minT {
			minT = v
		}
		if v > maxT {
			maxT = v
		}
	}
	if !found {
		return 0, 0, false
	}
	return minT, maxT, true
}

// columnValueAsNanos extracts a time-like scalar from row i of col as
// Unix nanoseconds, accepting Timestamp, Int64 (already nanos) and
// Float64 (seconds, truncated) representations since the upstream schema
// compiler's chosen time-field type is not mandated by this core.
func columnValueAsNanos(col arrow.Array, i int) (int64, bool) {
	switch c := col.(type) {
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return int64(c.Value(i)) * int64(unit.Multiplier()), true
	case *array.Int64:
		return c.Value(i), true
	case *array.Float64:
		return int64(c.Value(i) * float64(1e9)), true
	default:
		return 0, false
	}
}

// Row projects row i into an Event using the batch's own schema (spec §3:
// "Events are projected from a columnar RecordBatch row").
func (b *RecordBatch) Row(i int) (Event, error) {
	if b.rec == nil {
		return nil, fmt.Errorf("batch: record is released")
	}
	schema := b.rec.Schema()
	ev := make(Event, schema.NumFields())
	for fi := 0; fi < schema.NumFields(); fi++ {
		field := schema.Field(fi)
		col := b.rec.Column(fi)
		ev[field.Name] = columnValue(col, i)
	}
	return ev, nil
}

// columnValue extracts row i of col as a Value, mapping every Arrow
// physical type the ingest path is expected to carry onto the core's
// three-kind Value union (spec §3).
func columnValue(col arrow.Array, i int) Value {
	if col.IsNull(i) {
		return NullValue
	}
	switch c := col.(type) {
	case *array.Boolean:
		return BoolValue(c.Value(i))
	case *array.String:
		return StringValue(c.Value(i))
	case *array.LargeString:
		return StringValue(c.Value(i))
	case *array.Int8:
		return NumberValue(float64(c.Value(i)))
	case *array.Int16:
		return NumberValue(float64(c.Value(i)))
	case *array.Int32:
		return NumberValue(float64(c.Value(i)))
	case *array.Int64:
		return NumberValue(float64(c.Value(i)))
	case *array.Uint8:
		return NumberValue(float64(c.Value(i)))
	case *array.Uint16:
		return NumberValue(float64(c.Value(i)))
	case *array.Uint32:
		return NumberValue(float64(c.Value(i)))
	case *array.Uint64:
		return NumberValue(float64(c.Value(i)))
	case *array.Float32:
		return NumberValue(float64(c.Value(i)))
	case *array.Float64:
		return NumberValue(c.Value(i))
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return NumberValue(float64(int64(c.Value(i)) * int64(unit.Multiplier())))
	default:
		return StringValue(fmt.Sprintf("%v", col.ValueStr(i)))
	}
}
