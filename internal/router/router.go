// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router implements the single routing operation (C3, spec §4.3):
// for an incoming (stream, batch), append to every local subscribing
// window under watermark rules and wake the rule tasks reading it.
package router

import (
	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/metrics"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/window"
)

// Report summarises the outcome of one Route call (spec §4.3).
type Report struct {
	Delivered       int
	DroppedLate     int
	SkippedNonLocal int
}

// Router is immutable after construction; Route is safe to call
// concurrently from multiple ingest goroutines.
type Router struct {
	reg *registry.Registry
	log zerolog.Logger
}

func New(reg *registry.Registry, log zerolog.Logger) *Router {
	return &Router{reg: reg, log: log.With().Str("component", "router").Logger()}
}

// Route appends b to every window subscribing to stream and wakes each
// one's rule tasks. Critically, the window's writer lock is released
// (internally, by Window.AppendWithWatermark) BEFORE Notify is called, so
// a woken task can immediately acquire the reader (spec §4.3).
func (r *Router) Route(stream string, b *batch.RecordBatch) Report {
	subs := r.reg.SubscribersOf(stream)
	if len(subs) == 0 {
		return Report{}
	}

	var rep Report
	for _, sub := range subs {
		if !sub.DistMode.IsLocal() {
			rep.SkippedNonLocal++
			continue
		}

		w, ok := r.reg.Window(sub.WindowName)
		if !ok {
			r.log.Warn().Str("window", sub.WindowName).Msg("subscriber references unknown window")
			continue
		}

		outcome := w.AppendWithWatermark(b.Clone())
		switch outcome {
		case window.Appended:
			rep.Delivered++
			metrics.BatchesAppendedTotal.WithLabelValues(sub.WindowName).Inc()
			metrics.WindowBytes.WithLabelValues(sub.WindowName).Set(float64(w.MemoryUsage()))
			metrics.WindowRows.WithLabelValues(sub.WindowName).Set(float64(w.TotalRows()))
		case window.DroppedLate:
			rep.DroppedLate++
			metrics.BatchesDroppedLateTotal.WithLabelValues(sub.WindowName).Inc()
		}

		if n, ok := r.reg.Notifier(sub.WindowName); ok {
			n.Notify()
		}
	}
	return rep
}
