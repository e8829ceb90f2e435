// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import "context"

// Startable is the non-blocking Start/Stop shape a component can expose
// instead of suture.Service, so its own code stays free of suture's
// import. The evictor implements it; the ingest receiver, rule tasks and
// the alert dispatcher block in their own Run methods and go through
// FromFunc instead.
type Startable interface {
	Start(ctx context.Context) error
	Stop()
}

// serviceWrapper adapts a Startable into suture.Service by blocking on
// ctx.Done() after Start returns, then calling Stop on the way out.
type serviceWrapper struct {
	name string
	svc  Startable
}

// Wrap adapts svc into a suture.Service named name, suitable for
// SupervisorTree.AddIngestService / AddCoreService / AddDispatchService.
func Wrap(name string, svc Startable) *serviceWrapper {
	return &serviceWrapper{name: name, svc: svc}
}

func (w *serviceWrapper) Serve(ctx context.Context) error {
	if err := w.svc.Start(ctx); err != nil {
		return err
	}
	defer w.svc.Stop()

	<-ctx.Done()
	return ctx.Err()
}

func (w *serviceWrapper) String() string {
	return w.name
}

// funcService adapts a blocking fn(ctx) error into suture.Service
// directly, for components that already block on ctx.Done() themselves
// (the ingest receiver, a rule task, the alert dispatcher) rather than
// exposing the non-blocking Start/Stop shape Startable expects.
type funcService struct {
	name string
	fn   func(context.Context) error
}

// FromFunc wraps fn as a named suture.Service. Use this instead of Wrap
// when the component's own Run/Serve method already blocks until ctx is
// done.
func FromFunc(name string, fn func(context.Context) error) *funcService {
	return &funcService{name: name, fn: fn}
}

func (f *funcService) Serve(ctx context.Context) error {
	return f.fn(ctx)
}

func (f *funcService) String() string {
	return f.name
}
