// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics registers WarpFusion's Prometheus instrumentation via
// promauto against the default registry; internal/admin exposes them at
// /metrics.
package metrics
