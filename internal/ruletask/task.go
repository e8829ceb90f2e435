// SPDX-License-Identifier: AGPL-3.0-or-later

package ruletask

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/metrics"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/window"
)

// WindowSource binds one window this rule reads from to the rule
// aliases it feeds (spec §4.6's construction input: "a list of
// WindowSource{window_name, window_handle, notifier_handle,
// stream_names}"; a window may serve more than one alias, since a
// single window's rows can satisfy several binds each with their own
// filter — spec §4.6: "because one window may serve multiple aliases
// via filtering"). Each bind's own filter is evaluated inside
// cep.Machine.Advance, so Task only needs to know which aliases to try
// per row.
type WindowSource struct {
	WindowName string
	Window     *window.Window
	Notifier   *registry.Notifier
	Aliases    []string
}

// Task is one compiled rule's asynchronous loop (C6). It owns its CEP
// machine and executor exclusively — no synchronisation on machine
// state is required (spec §4.6, §5, §9).
type Task struct {
	ruleName string
	machine  *cep.Machine
	executor *cep.Executor
	sources  []WindowSource
	cursors  map[string]uint64

	alertCh      chan<- alert.Record
	execTimeout  time.Duration
	scanInterval time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// New builds a Task. Per spec §4.6, cursors start at each window's
// current next_seq — rule tasks never replay historical data.
func New(plan cep.RulePlan, sources []WindowSource, alertCh chan<- alert.Record, scanInterval, execTimeout time.Duration, now func() time.Time, log zerolog.Logger) *Task {
	if now == nil {
		now = time.Now
	}
	if scanInterval <= 0 {
		scanInterval = time.Second
	}
	if execTimeout <= 0 {
		execTimeout = 30 * time.Second
	}
	t := &Task{
		ruleName:     plan.RuleName,
		machine:      cep.NewMachine(plan),
		executor:     cep.NewExecutor(plan, now),
		sources:      sources,
		cursors:      make(map[string]uint64, len(sources)),
		alertCh:      alertCh,
		execTimeout:  execTimeout,
		scanInterval: scanInterval,
		now:          now,
		log:          log,
	}
	for _, s := range sources {
		t.cursors[s.WindowName] = s.Window.NextSeq()
	}
	return t
}

// Run executes the main loop (spec §4.6 steps 1-3) until ctx is
// cancelled, at which point it performs one final drain, closes every
// live instance with reason Eos, emits the resulting alerts, and
// returns. Callers must not send on alertCh after Run returns.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.scanInterval)
	defer ticker.Stop()

	for {
		// Step 1: prepare wakeups before draining, to avoid the
		// lost-wakeup race (spec §4.6 step 1, §9).
		waits := make([]<-chan struct{}, len(t.sources))
		for i, s := range t.sources {
			waits[i] = s.Notifier.Enable()
		}

		// Step 2: drain every source now that wakeups are armed.
		t.drainAll()

		// Step 3: wait for any notifier, the scan tick, or cancellation.
		select {
		case <-anyClosed(waits):
			continue
		case <-ticker.C:
			t.scanExpired()
			continue
		case <-ctx.Done():
			t.drainAll()
			t.closeAll()
			return
		}
	}
}

// anyClosed returns a channel that closes as soon as any of chs closes.
// The fan-in goroutine count is bounded by the rule's window-source
// count, fixed once at construction.
func anyClosed(chs []<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	if len(chs) == 0 {
		return out
	}
	fired := make(chan struct{}, len(chs))
	for _, ch := range chs {
		go func(ch <-chan struct{}) {
			<-ch
			fired <- struct{}{}
		}(ch)
	}
	go func() {
		<-fired
		close(out)
	}()
	return out
}

func (t *Task) drainAll() {
	for _, s := range t.sources {
		t.drainOne(s)
	}
}

func (t *Task) drainOne(s WindowSource) {
	cursor := t.cursors[s.WindowName]
	batches, newCursor, gapDetected := s.Window.ReadSince(cursor)
	t.cursors[s.WindowName] = newCursor
	if gapDetected {
		t.log.Warn().Str("rule", t.ruleName).Str("window", s.WindowName).Msg("read_since reported a gap; some batches were evicted before being read")
	}

	for _, tb := range batches {
		t.processBatch(s, tb)
	}
}

func (t *Task) processBatch(s WindowSource, tb window.TimedBatch) {
	numRows := int(tb.Batch.NumRows())
	for i := 0; i < numRows; i++ {
		event, err := tb.Batch.Row(i)
		if err != nil {
			t.log.Warn().Err(err).Str("rule", t.ruleName).Str("window", s.WindowName).Msg("failed to materialise row; skipping")
			continue
		}
		for _, alias := range s.Aliases {
			t.advance(alias, event, tb.EventTime.Max)
		}
	}
}

func (t *Task) advance(alias string, event batch.Event, eventTimeNanos int64) {
	result := t.machine.Advance(alias, event, eventTimeNanos)

	if result.Expired != nil {
		t.emitClose(*result.Expired)
	}
	if result.Kind == cep.ResultMatched {
		t.emitMatch(result.Matched)
	}
	metrics.CepInstancesActive.WithLabelValues(t.ruleName).Set(float64(t.machine.Len()))
}

func (t *Task) emitMatch(ctx *cep.MatchedContext) {
	rec, err := t.runWithTimeout(func() (*alert.Record, error) {
		return t.executor.ExecuteMatch(ctx)
	})
	if err != nil {
		t.log.Warn().Err(err).Str("rule", t.ruleName).Msg("rule execution failed on match; alert suppressed")
		metrics.AlertsSuppressedTotal.WithLabelValues(t.ruleName, "type_error").Inc()
		return
	}
	if rec != nil {
		t.send(*rec)
	}
}

func (t *Task) emitClose(co cep.CloseOutput) {
	metrics.CepInstancesExpiredTotal.WithLabelValues(t.ruleName, string(co.Reason)).Inc()
	rec, err := t.runWithTimeout(func() (*alert.Record, error) {
		return t.executor.ExecuteClose(&co)
	})
	if err != nil {
		t.log.Warn().Err(err).Str("rule", t.ruleName).Msg("rule execution failed on close; alert suppressed")
		metrics.AlertsSuppressedTotal.WithLabelValues(t.ruleName, "type_error").Inc()
		return
	}
	if rec != nil {
		t.send(*rec)
	}
}

// runWithTimeout bounds one executor invocation so a pathological rule
// cannot stall the task (spec §5: "Per-batch join/execution timeouts
// wrap the executor's join step"). The executor itself does no I/O and
// returns almost instantly; the timeout exists purely as a backstop.
func (t *Task) runWithTimeout(fn func() (*alert.Record, error)) (*alert.Record, error) {
	type result struct {
		rec *alert.Record
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := fn()
		done <- result{rec, err}
	}()

	select {
	case r := <-done:
		return r.rec, r.err
	case <-time.After(t.execTimeout):
		metrics.RuleExecTimeoutsTotal.WithLabelValues(t.ruleName).Inc()
		return nil, errExecTimeout
	}
}

func (t *Task) send(rec alert.Record) {
	t.alertCh <- rec
}

func (t *Task) scanExpired() {
	watermark := t.currentWatermark()
	for _, co := range t.machine.ScanExpired(watermark) {
		t.emitClose(co)
	}
}

// currentWatermark is the minimum watermark across every subscribed
// window, so a close-timeout scan never fires ahead of the slowest
// source's notion of "no further data is expected" (spec §4.1's
// watermark definition).
func (t *Task) currentWatermark() int64 {
	var min int64
	first := true
	for _, s := range t.sources {
		wm := s.Window.Watermark()
		if first || wm < min {
			min = wm
			first = false
		}
	}
	return min
}

func (t *Task) closeAll() {
	for _, co := range t.machine.CloseAll(cep.ReasonEOS) {
		t.emitClose(co)
	}
}
