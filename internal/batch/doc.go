// SPDX-License-Identifier: AGPL-3.0-or-later

// Package batch wraps Arrow record batches with the cheap reference-counted
// clone semantics the window subsystem depends on: cloning a RecordBatch
// bumps a refcount on the underlying columnar buffer rather than copying
// row data (spec §3, §9).
package batch
