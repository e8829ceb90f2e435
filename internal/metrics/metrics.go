// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// This package provides Prometheus instrumentation for every core
// subsystem: window ingest/eviction, CEP instance churn, alert emission,
// sink health, and ingest-side decode failures.

var (
	// Window metrics (C1, C3, C4)
	BatchesAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_batches_appended_total",
			Help: "Total number of batches appended to a window.",
		},
		[]string{"window"},
	)

	BatchesDroppedLateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_batches_dropped_late_total",
			Help: "Total number of batches rejected by append_with_watermark as late.",
		},
		[]string{"window"},
	)

	WindowBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpfusion_window_bytes",
			Help: "Current estimated byte size of a window's buffered batches.",
		},
		[]string{"window"},
	)

	WindowRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpfusion_window_rows",
			Help: "Current total row count of a window's buffered batches.",
		},
		[]string{"window"},
	)

	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_evictions_total",
			Help: "Total number of batches evicted, by evictor phase.",
		},
		[]string{"window", "phase"}, // phase: "time" or "memory"
	)

	// CEP metrics (C5, C6)
	CepInstancesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpfusion_cep_instances_active",
			Help: "Current number of live CEP instances for a rule.",
		},
		[]string{"rule"},
	)

	CepInstancesExpiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_cep_instances_expired_total",
			Help: "Total number of CEP instances closed, by close reason.",
		},
		[]string{"rule", "reason"}, // reason: "timeout", "flush", "eos"
	)

	RuleExecTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_rule_exec_timeouts_total",
			Help: "Total number of rule executor invocations that exceeded rule_exec_timeout.",
		},
		[]string{"rule"},
	)

	// Alert metrics (C7)
	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_alerts_emitted_total",
			Help: "Total number of alerts emitted by a rule.",
		},
		[]string{"rule"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_alerts_suppressed_total",
			Help: "Total number of rule-evaluation outcomes that did not produce an alert.",
		},
		[]string{"rule", "reason"}, // reason: "type_error" for every executor failure, timeouts included
	)

	SinkWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_sink_write_failures_total",
			Help: "Total number of failed sink writes.",
		},
		[]string{"sink"},
	)

	SinkWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warpfusion_sink_write_duration_seconds",
			Help:    "Duration of a single sink write.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	SinkBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpfusion_sink_breaker_state",
			Help: "Circuit breaker state per sink: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"sink"},
	)

	SinkBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_sink_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions per sink.",
		},
		[]string{"sink", "from", "to"},
	)

	// Ingest metrics (§6.1)
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpfusion_decode_errors_total",
			Help: "Total number of frames that failed to decode, by stream.",
		},
		[]string{"stream"},
	)

	FramesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warpfusion_frames_received_total",
			Help: "Total number of length-prefixed frames received.",
		},
	)
)
