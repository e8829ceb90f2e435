// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"context"
	"sync"
)

// Notifier implements the "enable-before-drain" wakeup pattern spec §9
// mandates: a naive wait()-then-drain() loop drops any wakeup that lands
// between a drain finishing and the next wait starting. Enable captures
// the current generation's channel BEFORE the caller drains; Notify
// closes that channel and swaps in a fresh one. If Notify races with
// Enable — happening any time after Enable returns, including mid-drain —
// the channel Enable returned is still the one that gets closed, so the
// subsequent select on it fires immediately instead of blocking.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Enable returns the channel that will close on the next Notify call made
// at or after this point in time. Call this BEFORE draining a window, and
// select on the returned channel (alongside a timer and a cancellation
// context) only AFTER the drain completes.
func (n *Notifier) Enable() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Notify wakes every waiter currently holding a channel from Enable, and
// rotates in a fresh channel for the next generation of waiters.
func (n *Notifier) Notify() {
	n.mu.Lock()
	old := n.ch
	n.ch = make(chan struct{})
	n.mu.Unlock()
	close(old)
}

// Wait blocks until the next Notify (observed via a channel obtained from
// an earlier Enable) or ctx is done. It is a convenience wrapper for
// callers that don't need to interleave other select cases.
func (n *Notifier) Wait(ctx context.Context, enabled <-chan struct{}) error {
	select {
	case <-enabled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
