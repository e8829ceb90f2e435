// SPDX-License-Identifier: AGPL-3.0-or-later

// Package evictor implements the periodic two-phase sweeper (C4, spec
// §4.4): a time phase that expires batches by event time, then a memory
// phase that sheds oldest batches under global byte pressure. The time
// phase holds a window's writer lock for one pass that drops all of that
// window's expired batches; the memory phase takes it once per dropped
// batch (spec §4.4, §5).
package evictor
