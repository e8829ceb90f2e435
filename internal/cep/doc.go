// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cep implements the complex-event-processing state machine
// (C5, spec §4.5): per-rule instance pools keyed by scope key, multi-step
// sequence matching with OR branches, aggregation pipes, and the
// two-phase (on event / on close) evaluation model with three close
// reasons (timeout, flush, end-of-stream).
package cep
