// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import "github.com/rs/zerolog"

// testLogger is a discard logger shared by this package's tests.
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
