// SPDX-License-Identifier: AGPL-3.0-or-later

package alert

import (
	"context"
	"path"

	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/logging"
	"github.com/warpfusion/warpfusion/internal/metrics"
	"github.com/warpfusion/warpfusion/internal/sink"
)

// GroupPattern is one business-group routing rule: the first pattern
// whose window-name glob matches an alert's yield_target wins (spec
// §4.7 step 2).
type GroupPattern struct {
	Pattern string
	Group   string
}

// Dispatcher is the single consumer of the alert channel (C7). It never
// observes a cancellation token: it shuts down only when every rule
// task has dropped its sender and the channel closes (spec §4.7, §9's
// "channel-close-as-shutdown-signal" — any implementation that makes it
// watch ctx.Done() instead is liable to drop trailing alerts).
type Dispatcher struct {
	in       <-chan Record
	groups   []GroupPattern
	sinks    map[string][]sink.Sink // group name -> sinks
	errGroup string
	log      zerolog.Logger
}

// NewDispatcher builds a dispatcher reading from in. groups is walked in
// order for first-match routing; sinks maps a group name (including
// defaultGroup and errGroup, if configured) to the sink instances that
// receive alerts routed to it.
func NewDispatcher(in <-chan Record, groups []GroupPattern, sinksByGroup map[string][]sink.Sink, errGroup string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		in:       in,
		groups:   groups,
		sinks:    sinksByGroup,
		errGroup: errGroup,
		log:      log,
	}
}

// Run drains the alert channel until it closes, then stops every sink
// exactly once and returns. It is meant to be run in its own goroutine
// by the supervisor tree; it takes no context because its lifetime is
// governed entirely by the channel (spec §4.7).
func (d *Dispatcher) Run() {
	base := logging.ContextWithLogger(context.Background(), d.log)
	for rec := range d.in {
		d.dispatch(logging.ContextWithNewWriteSpan(base), rec)
	}
	d.stopAll(base)
}

// dispatch handles one alert.Record. ctx carries a write-span id so
// every log line produced while routing and writing this record to
// its group (and, on failure, the error group) can be grepped as one
// unit.
func (d *Dispatcher) dispatch(ctx context.Context, rec Record) {
	payload, err := rec.Serialize()
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("rule", rec.RuleName).Str("alert_id", rec.AlertID).Msg("failed to serialise alert")
		return
	}

	group := d.routeGroup(rec.YieldTarget)
	failed := d.writeToGroup(ctx, group, payload, rec)

	if failed && d.errGroup != "" && d.errGroup != group {
		d.writeToGroup(ctx, d.errGroup, payload, rec)
	}

	metrics.AlertsEmittedTotal.WithLabelValues(rec.RuleName).Inc()
}

// routeGroup walks the configured business groups in order, matching
// yieldTarget against each pattern's "*"-wildcard glob (path.Match's
// single-segment wildcard matches the flat window-name strings used
// here; no directory separators are ever present in a yield_target).
func (d *Dispatcher) routeGroup(yieldTarget string) string {
	for _, g := range d.groups {
		ok, err := path.Match(g.Pattern, yieldTarget)
		if err == nil && ok {
			return g.Group
		}
	}
	return ""
}

func (d *Dispatcher) writeToGroup(ctx context.Context, group string, payload []byte, rec Record) bool {
	if group == "" {
		return false
	}
	failed := false
	for _, s := range d.sinks[group] {
		if err := s.Write(ctx, payload); err != nil {
			failed = true
			metrics.SinkWriteFailuresTotal.WithLabelValues(s.Name()).Inc()
			logging.Ctx(ctx).Error().Err(err).Str("sink", s.Name()).Str("group", group).Str("alert_id", rec.AlertID).Msg("sink write failed")
		}
	}
	return failed
}

func (d *Dispatcher) stopAll(ctx context.Context) {
	seen := make(map[sink.Sink]bool)
	for _, list := range d.sinks {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			if err := s.Stop(ctx); err != nil {
				d.log.Error().Err(err).Str("sink", s.Name()).Msg("sink stop failed")
			}
		}
	}
}
