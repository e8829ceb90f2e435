// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// TestServiceInterface verifies fakeService satisfies suture.Service,
// the contract every real ingest/core/dispatch service must meet too.
func TestServiceInterface(t *testing.T) {
	t.Run("fakeService implements suture.Service", func(t *testing.T) {
		var _ suture.Service = (*fakeService)(nil)
	})
}

// TestFakeService validates the test double's own behavior, since
// TestSupervisorBasics and friends rely on it to exercise the real
// supervisor tree's restart policy.
func TestFakeService(t *testing.T) {
	t.Run("runs until context canceled", func(t *testing.T) {
		svc := newFakeService("ingest-receiver")
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := svc.Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if svc.startCalls() != 1 {
			t.Errorf("expected 1 start, got %d", svc.startCalls())
		}
	})

	t.Run("returns error on simulated failure", func(t *testing.T) {
		svc := newFakeService("rule-task-brute_force")
		svc.setError(errors.New("simulated service failure"))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := svc.Serve(ctx)
		if err == nil || err.Error() != "simulated service failure" {
			t.Errorf("expected simulated service failure, got %v", err)
		}
	})

	t.Run("returns ErrDoNotRestart for permanent completion", func(t *testing.T) {
		svc := newFakeService("evictor")
		svc.setError(suture.ErrDoNotRestart)

		ctx := context.Background()
		err := svc.Serve(ctx)
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("expected ErrDoNotRestart, got %v", err)
		}
	})

	t.Run("fails N times then succeeds", func(t *testing.T) {
		svc := newFakeService("alert-dispatcher")
		svc.setFailCount(2)

		err := svc.Serve(context.Background())
		if err == nil || err.Error() != "simulated service failure" {
			t.Errorf("first call should fail, got %v", err)
		}

		err = svc.Serve(context.Background())
		if err == nil || err.Error() != "simulated service failure" {
			t.Errorf("second call should fail, got %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = svc.Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("third call should succeed until timeout, got %v", err)
		}

		if svc.startCalls() != 3 {
			t.Errorf("expected 3 starts, got %d", svc.startCalls())
		}
	})

	t.Run("String returns service name", func(t *testing.T) {
		svc := newFakeService("ingest-receiver")
		if svc.String() != "ingest-receiver" {
			t.Errorf("expected 'ingest-receiver', got %q", svc.String())
		}
	})
}

// TestSupervisorBasics validates suture.Supervisor behavior directly,
// beneath the Tree wrapper exercised in tree_test.go.
func TestSupervisorBasics(t *testing.T) {
	t.Run("supervisor starts and stops services", func(t *testing.T) {
		svc := newFakeService("ingest-receiver")
		sup := suture.NewSimple("test-supervisor")
		sup.Add(svc)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- sup.Serve(ctx)
		}()

		var started bool
		for i := 0; i < 10; i++ {
			time.Sleep(20 * time.Millisecond)
			if svc.startCalls() >= 1 {
				started = true
				break
			}
		}
		if !started {
			t.Error("service was not started")
		}

		cancel()
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("unexpected supervisor error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("supervisor did not stop in time")
		}
	})

	t.Run("supervisor restarts crashed service", func(t *testing.T) {
		svc := newFakeService("rule-task-ssh_brute_force")
		svc.setFailCount(2)

		sup := suture.New("restart-test", suture.Spec{
			FailureThreshold: 10,
			FailureDecay:     1,
			FailureBackoff:   10 * time.Millisecond,
			Timeout:          100 * time.Millisecond,
		})
		sup.Add(svc)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		go sup.Serve(ctx)
		time.Sleep(300 * time.Millisecond)

		if svc.startCalls() < 3 {
			t.Errorf("expected at least 3 starts (2 failures + 1 success), got %d", svc.startCalls())
		}
	})

	t.Run("service returning ErrDoNotRestart is not restarted", func(t *testing.T) {
		svc := newFakeService("evictor")
		svc.setError(suture.ErrDoNotRestart)

		sup := suture.New("no-restart-test", suture.Spec{
			FailureThreshold: 10,
			FailureBackoff:   10 * time.Millisecond,
			Timeout:          100 * time.Millisecond,
		})
		sup.Add(svc)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		go sup.Serve(ctx)
		time.Sleep(100 * time.Millisecond)

		if svc.startCalls() != 1 {
			t.Errorf("expected exactly 1 start for ErrDoNotRestart, got %d", svc.startCalls())
		}
	})
}

// TestErrTerminateSupervisorTree validates that a service signaling an
// unrecoverable condition (e.g. a receiver whose listener died
// permanently) can tear down the whole tree rather than being retried.
func TestErrTerminateSupervisorTree(t *testing.T) {
	t.Run("service can terminate entire tree", func(t *testing.T) {
		svc := newFakeService("ingest-receiver")
		svc.setError(suture.ErrTerminateSupervisorTree)

		sup := suture.New("tree-test", suture.Spec{
			FailureThreshold: 10,
			Timeout:          100 * time.Millisecond,
		})
		sup.Add(svc)

		ctx := context.Background()
		err := sup.Serve(ctx)

		if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Logf("supervisor returned: %v (expected ErrTerminateSupervisorTree or wrapped)", err)
		}
	})
}

// TestHierarchicalSupervisors validates nested supervisor behavior,
// the shape Tree itself uses for its ingest/core/dispatch sub-trees.
func TestHierarchicalSupervisors(t *testing.T) {
	t.Run("child supervisors are started by parent", func(t *testing.T) {
		childSvc := newFakeService("rule-task-child")
		childSup := suture.NewSimple("child-supervisor")
		childSup.Add(childSvc)

		parentSup := suture.NewSimple("parent-supervisor")
		parentSup.Add(childSup)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		go parentSup.Serve(ctx)
		time.Sleep(100 * time.Millisecond)

		if childSvc.startCalls() < 1 {
			t.Error("child service was not started through hierarchy")
		}
	})
}
