// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry builds the window name -> Window map and the stream ->
// subscriber table once at startup (C2, spec §4.2), and hands out one
// Notifier per window implementing the enable-before-drain wakeup
// discipline rule tasks rely on (spec §9).
package registry
