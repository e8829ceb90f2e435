// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLifecycleShutdownOrder verifies the receiver joins before rule tasks
// are asked to stop, and the evictor joins only after the alert dispatcher
// has drained.
func TestLifecycleShutdownOrder(t *testing.T) {
	parent := context.Background()
	ctx, ruleCtx, lc := NewLifecycle(parent)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	alertCh := make(chan struct{})
	lc.SetAlertChannel(alertCh)
	ruleDone := lc.AddRuleTask()

	// Receiver: exits as soon as ctx is canceled.
	go func() {
		<-ctx.Done()
		record("receiver")
		close(lc.ReceiverDone())
	}()

	// Rule task: only exits once ruleCtx is canceled, and only after the
	// receiver has already joined (enforced by the real Shutdown ordering,
	// not by this goroutine).
	go func() {
		<-ruleCtx.Done()
		record("rule-task")
		close(ruleDone)
	}()

	// Alert dispatcher: exits when alertCh is closed, never on a context.
	go func() {
		<-alertCh
		record("alert-dispatcher")
		close(lc.DispatchDone())
	}()

	// Evictor: exits as soon as ctx is canceled, but Shutdown must not
	// return until after it joins, and only after the dispatcher joins.
	go func() {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		record("evictor")
		close(lc.EvictorDone())
	}()

	done := make(chan struct{})
	go func() {
		lc.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"receiver", "rule-task", "alert-dispatcher", "evictor"}, order)
}

func TestLifecycleMultipleRuleTasksAllJoin(t *testing.T) {
	ctx, ruleCtx, lc := NewLifecycle(context.Background())
	alertCh := make(chan struct{})
	lc.SetAlertChannel(alertCh)

	dones := make([]chan struct{}, 3)
	for i := range dones {
		dones[i] = lc.AddRuleTask()
	}

	go func() {
		<-ctx.Done()
		close(lc.ReceiverDone())
	}()
	go func() {
		<-ctx.Done()
		close(lc.EvictorDone())
	}()
	go func() {
		<-alertCh
		close(lc.DispatchDone())
	}()
	for _, d := range dones {
		d := d
		go func() {
			<-ruleCtx.Done()
			close(d)
		}()
	}

	finished := make(chan struct{})
	go func() {
		lc.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return with multiple rule tasks")
	}
}
