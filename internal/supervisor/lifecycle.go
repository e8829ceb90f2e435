// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import "context"

// Lifecycle coordinates the engine's startup and shutdown ordering across
// the ingest receiver, the evictor, the rule tasks, and the alert
// dispatcher. It does not supervise crash-restart — that's SupervisorTree's
// job — it only sequences the one-shot start/stop dance described below.
//
// Startup runs dispatch -> core -> ingest, so that nothing upstream can
// ever observe a component that isn't ready to receive from it yet: the
// alert dispatcher is listening before any rule task can fire, the evictor
// and rule tasks are running before the receiver can hand them a batch.
//
// Shutdown runs in two phases on two distinct cancellation tokens:
//
//  1. cancel stops the receiver and the evictor. The receiver is joined
//     first: once it has returned, no further batches will ever reach a
//     window, so it is now safe to ask the rule tasks to stop without
//     losing a batch they'd otherwise have read.
//  2. ruleCancel then stops every rule task. Each rule task performs a
//     final read_since drain against its window and evaluates a close_all
//     with reason Eos before returning, so already-buffered rows are not
//     silently dropped on shutdown.
//  3. Once every rule task has joined, its alert channel is closed. The
//     alert dispatcher is not driven by a context at all — closing its
//     input channel is its only shutdown signal, so that it keeps
//     draining whatever alerts are already in flight instead of dropping
//     them on a context cancellation race.
//  4. The evictor is joined last, after the rule tasks, since an evictor
//     sweep can run concurrently with rule task shutdown without affecting
//     correctness — it only ever removes data the rule tasks have already
//     read past their cursor.
type Lifecycle struct {
	cancel     context.CancelFunc
	ruleCancel context.CancelFunc

	receiverDone chan struct{}
	evictorDone  chan struct{}
	ruleDone     []chan struct{}
	alertCh      chan<- struct{} // closed to signal the alert dispatcher to drain and exit
	dispatchDone chan struct{}
}

// NewLifecycle derives the receiver/evictor context and the rule-task
// context from parent, and records the done channels each component
// closes on return.
func NewLifecycle(parent context.Context) (ctx, ruleCtx context.Context, lc *Lifecycle) {
	ctx, cancel := context.WithCancel(parent)
	ruleCtx, ruleCancel := context.WithCancel(parent)
	lc = &Lifecycle{
		cancel:       cancel,
		ruleCancel:   ruleCancel,
		receiverDone: make(chan struct{}),
		evictorDone:  make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	return ctx, ruleCtx, lc
}

// ReceiverDone returns the channel the caller's receiver goroutine must
// close on return.
func (lc *Lifecycle) ReceiverDone() chan struct{} { return lc.receiverDone }

// EvictorDone returns the channel the caller's evictor goroutine must
// close on return.
func (lc *Lifecycle) EvictorDone() chan struct{} { return lc.evictorDone }

// DispatchDone returns the channel the caller's alert dispatcher goroutine
// must close on return.
func (lc *Lifecycle) DispatchDone() chan struct{} { return lc.dispatchDone }

// AddRuleTask registers a rule task's done channel, returned for the
// caller's rule task goroutine to close on return. Must be called before
// Shutdown.
func (lc *Lifecycle) AddRuleTask() chan struct{} {
	done := make(chan struct{})
	lc.ruleDone = append(lc.ruleDone, done)
	return done
}

// SetAlertChannel records the channel whose closure signals the alert
// dispatcher to drain and exit. Shutdown closes it once every rule task
// has joined.
func (lc *Lifecycle) SetAlertChannel(ch chan<- struct{}) { lc.alertCh = ch }

// Shutdown runs the two-phase cancellation sequence and blocks until every
// component has joined. The evictor is joined last: its sweep may still be
// running while the rule tasks and the alert dispatcher wind down, since it
// only ever removes rows the rule tasks have already read past their
// cursor.
func (lc *Lifecycle) Shutdown() {
	lc.cancel()
	<-lc.receiverDone

	lc.ruleCancel()
	for _, done := range lc.ruleDone {
		<-done
	}

	if lc.alertCh != nil {
		close(lc.alertCh)
	}
	<-lc.dispatchDone
	<-lc.evictorDone
}
