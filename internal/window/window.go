// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"sync"
	"time"

	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/config"
)

// AppendOutcome is the result of append_with_watermark (spec §4.1).
type AppendOutcome int

const (
	Appended AppendOutcome = iota
	DroppedLate
)

func (o AppendOutcome) String() string {
	if o == DroppedLate {
		return "dropped_late"
	}
	return "appended"
}

// TimeRange is a batch's (min, max) event-time span in Unix nanoseconds.
type TimeRange struct {
	Min, Max int64
}

// TimedBatch is one entry in a Window's ordered deque of batches (spec §3).
type TimedBatch struct {
	Batch     *batch.RecordBatch
	EventTime TimeRange
	RowCount  int64
	ByteSize  int64
	Seq       uint64
}

// SideOutputRecord is emitted when a DroppedLate batch's window uses the
// side_output late policy (spec §4.1 step 2).
type SideOutputRecord struct {
	WindowName string
	Batch      *batch.RecordBatch
	EventTime  TimeRange
}

// Window is the time-ordered columnar buffer for one named window (spec
// §3, §4.1). All mutation goes through append/evict methods, which take an
// internal writer lock; reads take a reader lock and may run concurrently
// with one another.
type Window struct {
	mu sync.RWMutex

	def Def
	now func() time.Time

	batches        []TimedBatch
	watermarkNanos int64
	nextSeq        uint64
	currentBytes   int64
	totalRows      int64

	sideOutput chan<- SideOutputRecord
}

// New creates a Window from its definition. now defaults to time.Now; tests
// inject a fake clock so append/evict boundary behaviour is deterministic.
func New(def Def, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{def: def, now: now}
}

// SetSideOutput wires the channel append_with_watermark writes to when
// this window's late_policy is side_output (spec §4.1).
func (w *Window) SetSideOutput(ch chan<- SideOutputRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sideOutput = ch
}

func (w *Window) Name() string { return w.def.Name }
func (w *Window) Def() Def     { return w.def }

// NextSeq returns the sequence number the next appended batch will
// receive, without mutating state. Rule tasks call this once at startup to
// initialise a cursor that consumes only batches appended from this point
// forward (spec §4.6: "rule tasks do not replay historical window data").
func (w *Window) NextSeq() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.nextSeq
}

func (w *Window) Watermark() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watermarkNanos
}

// MemoryUsage returns the window's current estimated byte footprint.
func (w *Window) MemoryUsage() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentBytes
}

func (w *Window) TotalRows() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.totalRows
}

// OldestEventTime returns the event-time max of the oldest buffered batch,
// used by the evictor's time_first memory-pressure policy. ok is false for
// an empty window.
func (w *Window) OldestEventTime() (nanos int64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.batches) == 0 {
		return 0, false
	}
	return w.batches[0].EventTime.Max, true
}

// Append unconditionally appends b, bypassing watermark/lateness handling
// (spec §4.1's plain append operation, used by tests and by Revise-path
// callers that have already decided to accept the batch).
func (w *Window) Append(b *batch.RecordBatch, tr TimeRange) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(b, tr)
}

func (w *Window) appendLocked(b *batch.RecordBatch, tr TimeRange) uint64 {
	seq := w.nextSeq
	w.nextSeq++
	size := b.ByteSize()
	rows := b.NumRows()
	w.batches = append(w.batches, TimedBatch{
		Batch:     b,
		EventTime: tr,
		RowCount:  rows,
		ByteSize:  size,
		Seq:       seq,
	})
	w.currentBytes += size
	w.totalRows += rows
	return seq
}

// AppendWithWatermark is the canonical write path (spec §4.1). It takes
// ownership of one reference to b: on Appended, the window holds onto it
// until eviction; on DroppedLate, it is released (or handed to the
// side-output channel) before returning. Callers that need to keep using
// their own handle must pass a Clone.
//
// Ordering is load-bearing: the lateness check runs against the watermark
// BEFORE it is advanced by this batch's own max event-time, so a batch
// cannot declare itself late by the watermark it is about to push forward.
func (w *Window) AppendWithWatermark(b *batch.RecordBatch) AppendOutcome {
	minT, maxT, ok := b.TimeRange(w.def.TimeField)
	if !ok {
		now := w.now().UnixNano()
		minT, maxT = now, now
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cfg := w.def.Config
	cutoff := w.watermarkNanos - cfg.AllowedLateness.Duration().Nanoseconds()
	if minT < cutoff {
		switch cfg.LatePolicy {
		case config.LatePolicyDrop:
			b.Release()
			return DroppedLate
		case config.LatePolicySideOutput:
			if w.sideOutput != nil {
				select {
				case w.sideOutput <- SideOutputRecord{WindowName: w.def.Name, Batch: b, EventTime: TimeRange{minT, maxT}}:
				default:
					b.Release()
				}
			} else {
				b.Release()
			}
			return DroppedLate
		case config.LatePolicyRevise:
			// fall through to append; revision does not trigger
			// recomputation of already-emitted alerts (spec §9 open
			// question — left unresolved downstream by design).
		}
	}

	delay := cfg.WatermarkDelay.Duration().Nanoseconds()
	if candidate := maxT - delay; candidate > w.watermarkNanos {
		w.watermarkNanos = candidate
	}

	w.appendLocked(b, TimeRange{minT, maxT})
	return Appended
}

// Snapshot returns a cheap clone of every currently buffered batch,
// retaining a new reference per batch (spec §4.1's read-only join
// snapshot). Callers must Release each returned batch.
func (w *Window) Snapshot() []*batch.RecordBatch {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*batch.RecordBatch, len(w.batches))
	for i, tb := range w.batches {
		out[i] = tb.Batch.Clone()
	}
	return out
}

// ReadSince implements the cursor-based read protocol (spec §4.1). The
// returned batches are NOT cloned; callers must not Release them (the
// Window retains ownership until eviction).
func (w *Window) ReadSince(cursor uint64) (batches []TimedBatch, newCursor uint64, gapDetected bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.batches) == 0 {
		if cursor < w.nextSeq {
			// Every batch from cursor onward was evicted before being read.
			return nil, w.nextSeq, true
		}
		return nil, cursor, false
	}

	oldest := w.batches[0].Seq
	newest := w.batches[len(w.batches)-1].Seq

	if cursor < oldest {
		out := make([]TimedBatch, len(w.batches))
		copy(out, w.batches)
		return out, newest + 1, true
	}
	if cursor > newest {
		return nil, cursor, false
	}

	start := 0
	for start < len(w.batches) && w.batches[start].Seq < cursor {
		start++
	}
	out := make([]TimedBatch, len(w.batches)-start)
	copy(out, w.batches[start:])
	return out, newest + 1, false
}

// EvictExpired drops every batch whose event-time max is older than
// now-over (spec §4.1). A no-op for static (over == 0) windows.
func (w *Window) EvictExpired(now time.Time) (evicted int, bytesFreed int64) {
	if w.def.IsStatic() {
		return 0, 0
	}
	cutoff := now.UnixNano() - w.def.Over.Nanoseconds()

	w.mu.Lock()
	defer w.mu.Unlock()

	keepFrom := 0
	for keepFrom < len(w.batches) && w.batches[keepFrom].EventTime.Max < cutoff {
		keepFrom++
	}
	if keepFrom == 0 {
		return 0, 0
	}
	for _, tb := range w.batches[:keepFrom] {
		bytesFreed += tb.ByteSize
		w.currentBytes -= tb.ByteSize
		w.totalRows -= tb.RowCount
		tb.Batch.Release()
	}
	evicted = keepFrom
	remaining := make([]TimedBatch, len(w.batches)-keepFrom)
	copy(remaining, w.batches[keepFrom:])
	w.batches = remaining
	return evicted, bytesFreed
}

// EvictOldest pops exactly one oldest batch, used by the evictor's memory
// phase. ok is false if the window has no batches to shed.
func (w *Window) EvictOldest() (bytesFreed int64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.batches) == 0 {
		return 0, false
	}
	tb := w.batches[0]
	w.batches = w.batches[1:]
	w.currentBytes -= tb.ByteSize
	w.totalRows -= tb.RowCount
	tb.Batch.Release()
	return tb.ByteSize, true
}
