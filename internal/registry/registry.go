// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"fmt"
	"time"

	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/window"
)

// Subscriber is one entry in the stream -> window subscription table
// (spec §3 "Subscription table", §4.2).
type Subscriber struct {
	WindowName string
	DistMode   config.DistMode
}

// Registry holds the window map and subscription table built once at
// startup; both are immutable and freely shared after Build returns
// (spec §4.2, §5).
type Registry struct {
	windows   map[string]*window.Window
	notifiers map[string]*Notifier
	subs      map[string][]Subscriber
	order     []string // window names in definition order, for deterministic iteration
}

// Build constructs a Registry from an ordered list of window definitions.
// It fails with a build error on duplicate window names (spec §4.2).
func Build(defs []window.Def, now func() time.Time) (*Registry, error) {
	r := &Registry{
		windows:   make(map[string]*window.Window, len(defs)),
		notifiers: make(map[string]*Notifier, len(defs)),
		subs:      make(map[string][]Subscriber),
		order:     make([]string, 0, len(defs)),
	}

	for _, def := range defs {
		if _, exists := r.windows[def.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate window name %q", def.Name)
		}
		// over_cap of 0 means "no cap configured"; only an explicitly
		// set cap can be exceeded (spec §7's fatal "over > over_cap").
		if overCap := def.Config.OverCap.Duration(); !def.IsStatic() && overCap > 0 && def.Over > overCap {
			return nil, fmt.Errorf("registry: window %q: over (%s) exceeds over_cap (%s)", def.Name, def.Over, overCap)
		}
		r.windows[def.Name] = window.New(def, now)
		r.notifiers[def.Name] = NewNotifier()
		r.order = append(r.order, def.Name)

		for _, stream := range def.Streams {
			r.subs[stream] = append(r.subs[stream], Subscriber{
				WindowName: def.Name,
				DistMode:   def.Config.Mode,
			})
		}
	}
	return r, nil
}

// Window returns the window handle for name.
func (r *Registry) Window(name string) (*window.Window, bool) {
	w, ok := r.windows[name]
	return w, ok
}

// Notifier returns the per-window notifier for name.
func (r *Registry) Notifier(name string) (*Notifier, bool) {
	n, ok := r.notifiers[name]
	return n, ok
}

// SubscribersOf returns the subscriber list for stream. A stream with no
// subscribers returns a nil slice; callers (the Router) treat this as a
// silent drop (spec §4.3).
func (r *Registry) SubscribersOf(stream string) []Subscriber {
	return r.subs[stream]
}

// Windows returns every window in definition order, for the evictor's
// sweep.
func (r *Registry) Windows() []*window.Window {
	out := make([]*window.Window, len(r.order))
	for i, name := range r.order {
		out[i] = r.windows[name]
	}
	return out
}

// WindowNames returns every registered window name in definition order.
func (r *Registry) WindowNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
