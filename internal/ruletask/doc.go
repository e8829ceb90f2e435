// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ruletask implements the per-rule asynchronous loop (C6, spec
// §4.6): notify-driven pull from subscribed windows via cursor, advance
// of the rule's owned CEP machine, and emission of matches and closes
// to the alert channel.
package ruletask
