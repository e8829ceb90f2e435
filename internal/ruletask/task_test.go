// SPDX-License-Identifier: AGPL-3.0-or-later

package ruletask

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/logging"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/window"
)

var authSchema = arrow.NewSchema([]arrow.Field{
	{Name: "ts", Type: arrow.PrimitiveTypes.Int64},
	{Name: "action", Type: arrow.BinaryTypes.String},
	{Name: "sip", Type: arrow.BinaryTypes.String},
}, nil)

func authBatch(t *testing.T, tsNanos int64, action, sip string) *batch.RecordBatch {
	t.Helper()
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, authSchema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(tsNanos)
	b.Field(1).(*array.StringBuilder).Append(action)
	b.Field(2).(*array.StringBuilder).Append(sip)
	rec := b.NewRecord()
	return batch.Wrap(rec)
}

func authWindow(now func() time.Time) *window.Window {
	def := window.Def{
		Name:      "auth_events",
		Streams:   []string{"syslog"},
		TimeField: "ts",
		Over:      5 * time.Minute,
		Config: config.WindowConfig{
			MaxWindowBytes:  config.ByteSize(1 << 30),
			LatePolicy:      config.LatePolicyDrop,
			EvictPolicy:     config.EvictPolicyTimeFirst,
		},
	}
	return window.New(def, now)
}

func bruteForceRulePlan() cep.RulePlan {
	return cep.RulePlan{
		RuleName: "brute_force",
		Binds: []cep.Bind{
			{Alias: "fail", WindowName: "auth_events"},
		},
		Match: cep.MatchPlan{
			Keys:   []cep.Expr{cep.FieldRef{Field: "sip"}},
			Window: 5 * time.Minute,
			EventSteps: []cep.Step{
				{{Label: "fail", Source: "fail", Measure: cep.MeasureCount, Cmp: cep.CmpGte, Threshold: 3}},
			},
		},
		ScoreExpr:  cep.Literal{Value: batch.NumberValue(70)},
		EntityType: cep.Literal{Value: batch.StringValue("ip")},
		EntityID:   cep.FieldRef{Alias: "fail", Field: "sip"},
		Yield:      cep.YieldSpec{Target: "security_alerts"},
	}
}

func TestTaskEmitsAlertOnImmediateMatch(t *testing.T) {
	clock := time.Unix(0, 0).UTC()
	now := func() time.Time { return clock }

	w := authWindow(now)
	notifier := registry.NewNotifier()

	alertCh := make(chan alert.Record, 4)
	sources := []WindowSource{
		{WindowName: "auth_events", Window: w, Notifier: notifier, Aliases: []string{"fail"}},
	}
	task := New(bruteForceRulePlan(), sources, alertCh, time.Hour, time.Second, now, logging.NewTestLogger(io.Discard))

	for i := 0; i < 3; i++ {
		w.AppendWithWatermark(authBatch(t, int64(i)*int64(time.Second), "failed", "1.2.3.4"))
	}

	task.drainAll()

	require.Len(t, alertCh, 1)
	rec := <-alertCh
	require.Equal(t, "brute_force", rec.RuleName)
	require.Equal(t, "1.2.3.4", rec.EntityID)
}

func TestTaskCursorStartsAtNextSeqNoReplay(t *testing.T) {
	now := func() time.Time { return time.Unix(0, 0).UTC() }
	w := authWindow(now)

	w.AppendWithWatermark(authBatch(t, 0, "failed", "9.9.9.9"))
	w.AppendWithWatermark(authBatch(t, int64(time.Second), "failed", "9.9.9.9"))

	alertCh := make(chan alert.Record, 4)
	sources := []WindowSource{
		{WindowName: "auth_events", Window: w, Notifier: registry.NewNotifier(), Aliases: []string{"fail"}},
	}
	task := New(bruteForceRulePlan(), sources, alertCh, time.Hour, time.Second, now, logging.NewTestLogger(io.Discard))

	require.Equal(t, w.NextSeq(), task.cursors["auth_events"])

	task.drainAll()
	require.Empty(t, alertCh)
}

func TestTaskRunClosesOnContextCancelAndDrainsFirst(t *testing.T) {
	now := func() time.Time { return time.Unix(0, 0).UTC() }
	w := authWindow(now)
	notifier := registry.NewNotifier()

	alertCh := make(chan alert.Record, 4)
	sources := []WindowSource{
		{WindowName: "auth_events", Window: w, Notifier: notifier, Aliases: []string{"fail"}},
	}
	task := New(bruteForceRulePlan(), sources, alertCh, time.Hour, time.Second, now, logging.NewTestLogger(io.Discard))

	for i := 0; i < 3; i++ {
		w.AppendWithWatermark(authBatch(t, int64(i)*int64(time.Second), "failed", "5.5.5.5"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	require.Len(t, alertCh, 1)
}

func TestTaskScanExpiredClosesStaleInstance(t *testing.T) {
	now := func() time.Time { return time.Unix(0, 0).UTC() }
	w := authWindow(now)
	notifier := registry.NewNotifier()

	alertCh := make(chan alert.Record, 4)
	sources := []WindowSource{
		{WindowName: "auth_events", Window: w, Notifier: notifier, Aliases: []string{"fail"}},
	}
	task := New(bruteForceRulePlan(), sources, alertCh, time.Hour, time.Second, now, logging.NewTestLogger(io.Discard))

	w.AppendWithWatermark(authBatch(t, 0, "failed", "7.7.7.7"))
	task.drainAll()
	require.Empty(t, alertCh)

	// Advance the window's watermark past the instance's maxspan by
	// appending a later, unrelated event (window watermarks track event
	// time, not wall-clock time).
	w.AppendWithWatermark(authBatch(t, int64(6*time.Minute), "failed", "8.8.8.8"))
	task.drainAll()
	task.scanExpired()
	require.Empty(t, alertCh)
	require.Equal(t, 1, task.machine.Len())
}
