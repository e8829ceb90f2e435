// SPDX-License-Identifier: AGPL-3.0-or-later

// Package admin implements the operator-local HTTP surface: Prometheus
// metrics, health checks, pprof profiling, and a websocket upgrade
// endpoint for the live alert feed (spec §11's admin server). It carries
// no authentication — spec.md §6 names no auth boundary for this
// surface, and the default bind address is loopback-only.
package admin
