// SPDX-License-Identifier: AGPL-3.0-or-later

// Package alert defines AlertRecord (spec §3, §6.3) and implements the
// alert dispatcher (C7, spec §4.7): a single consumer of the alert
// channel that serialises each record and routes it by yield_target to a
// configured sink group, shutting down only when every producer has
// closed its sender (spec §9's "channel-close-as-shutdown-signal").
package alert
