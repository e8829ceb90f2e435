// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/config"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "ts", Type: arrow.PrimitiveTypes.Int64},
	{Name: "sip", Type: arrow.BinaryTypes.String},
}, nil)

// makeBatch builds a single-row batch with ts (nanoseconds) in the "ts"
// column, used as the window's configured time field. The returned batch
// holds the sole reference; passing it to AppendWithWatermark or Append
// transfers ownership, so callers must not Release it themselves.
func makeBatch(t *testing.T, tsNanos int64, sip string) *batch.RecordBatch {
	t.Helper()
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, testSchema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(tsNanos)
	b.Field(1).(*array.StringBuilder).Append(sip)
	rec := b.NewRecord()
	return batch.Wrap(rec)
}

func testWindow(now func() time.Time) *Window {
	def := Def{
		Name:      "auth_events",
		Streams:   []string{"syslog"},
		TimeField: "ts",
		Over:      5 * time.Minute,
		Config: config.WindowConfig{
			MaxWindowBytes:  config.ByteSize(1 << 30),
			WatermarkDelay:  0,
			AllowedLateness: 0,
			LatePolicy:      config.LatePolicyDrop,
			EvictPolicy:     config.EvictPolicyTimeFirst,
		},
	}
	return New(def, now)
}

func TestAppendWithWatermarkAdvancesWatermark(t *testing.T) {
	w := testWindow(time.Now)
	b := makeBatch(t, int64(10*time.Second), "1.2.3.4")

	outcome := w.AppendWithWatermark(b)
	require.Equal(t, Appended, outcome)
	require.Equal(t, int64(10*time.Second), w.Watermark())
}

func TestAppendWithWatermarkDropsLate(t *testing.T) {
	w := testWindow(time.Now)

	first := makeBatch(t, int64(100*time.Second), "a")
	require.Equal(t, Appended, w.AppendWithWatermark(first))
	require.Equal(t, int64(100*time.Second), w.Watermark())

	late := makeBatch(t, int64(1*time.Second), "b")
	require.Equal(t, DroppedLate, w.AppendWithWatermark(late))
}

func TestReadSinceGapDetection(t *testing.T) {
	w := testWindow(time.Now)
	for i := int64(0); i < 5; i++ {
		w.AppendWithWatermark(makeBatch(t, i*int64(time.Second), "x"))
	}

	batches, cursor, gap := w.ReadSince(0)
	require.False(t, gap)
	require.Len(t, batches, 5)
	require.Equal(t, uint64(5), cursor)

	// Evict everything, then read from a cursor the evictor has overtaken.
	w.EvictExpired(time.Now().Add(10 * time.Hour))
	_, newCursor, gap := w.ReadSince(0)
	require.True(t, gap)
	require.Equal(t, uint64(5), newCursor)
}

func TestReadSinceAheadOfNewestReturnsEmpty(t *testing.T) {
	w := testWindow(time.Now)
	w.AppendWithWatermark(makeBatch(t, int64(time.Second), "x"))

	batches, cursor, gap := w.ReadSince(50)
	require.Nil(t, batches)
	require.False(t, gap)
	require.Equal(t, uint64(50), cursor)
}

func TestEvictExpiredNoOpForStaticWindow(t *testing.T) {
	def := Def{Name: "static", TimeField: "ts", Over: 0}
	w := New(def, time.Now)
	w.Append(makeBatch(t, 0, "x"), TimeRange{0, 0})

	evicted, _ := w.EvictExpired(time.Now().Add(999 * time.Hour))
	require.Equal(t, 0, evicted)

	_, ok := w.EvictOldest()
	require.True(t, ok)
}

func TestSeqMonotonic(t *testing.T) {
	w := testWindow(time.Now)
	var last uint64
	for i := int64(0); i < 10; i++ {
		w.AppendWithWatermark(makeBatch(t, i*int64(time.Second), "x"))
	}
	batches, _, _ := w.ReadSince(0)
	for i, tb := range batches {
		if i > 0 {
			require.Greater(t, tb.Seq, last)
		}
		last = tb.Seq
	}
}
