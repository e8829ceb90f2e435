// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sink implements the alert dispatcher's pluggable output
// backends (spec §6.2's "concrete sink backends (file, HTTP, etc.)"):
// each Sink exposes a blocking single-record Write and a Stop. FileSink
// and WSSink serialise access behind an internal lock held only for the
// duration of one call (spec §5).
package sink
