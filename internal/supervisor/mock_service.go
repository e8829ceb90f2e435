// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// fakeService is a suture.Service test double standing in for one of
// WarpFusion's real ingest/core/dispatch services (the TCP or NATS
// receiver, the evictor sweep loop, a rule task, the alert dispatcher)
// without requiring a live config, socket, or rule plan. Tests name
// instances after the service they stand in for, e.g.
// newFakeService("rule-task-brute_force").
type fakeService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32
	maxFails   int32
	err        error
	mu         sync.Mutex
}

// newFakeService builds a fake standing in for the named real service.
func newFakeService(name string) *fakeService {
	return &fakeService{name: name}
}

// Serve implements suture.Service. It runs until ctx is canceled
// unless configured via setError or setFailCount to misbehave first,
// exercising the supervisor tree's restart policy the way a crashing
// receiver or rule task would.
func (m *fakeService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)

	m.mu.Lock()
	err := m.err
	maxFails := m.maxFails
	m.mu.Unlock()

	if maxFails > 0 {
		current := m.failCount.Add(1)
		if current <= maxFails {
			return errors.New("simulated service failure")
		}
	}

	if err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// setError makes every future Serve call return err immediately,
// simulating a service that can't start at all (e.g. a receiver whose
// listen address is already bound).
func (m *fakeService) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// setFailCount makes Serve fail n times before finally running to
// completion, simulating a service that recovers after suture's
// restart backoff.
func (m *fakeService) setFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n)
}

// startCalls returns how many times Serve was invoked.
func (m *fakeService) startCalls() int32 {
	return m.startCount.Load()
}

// stopCalls returns how many times Serve returned.
func (m *fakeService) stopCalls() int32 {
	return m.stopCount.Load()
}

// String implements fmt.Stringer; suture and sutureslog use it to name
// the service in restart/failure log lines.
func (m *fakeService) String() string {
	return m.name
}
