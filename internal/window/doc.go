// SPDX-License-Identifier: AGPL-3.0-or-later

// Package window implements the time-ordered columnar batch buffer (C1):
// watermark-aware append, cursor-based reads, and two-phase eviction (spec
// §4.1). A Window is protected by an internal reader-writer mutex; Router
// and Evictor take the writer briefly, rule tasks take the reader briefly
// (spec §5).
package window
