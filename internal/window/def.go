// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/warpfusion/warpfusion/internal/config"
)

// Def is a window's logical definition plus its resolved runtime
// configuration, the WindowDef value spec §3/§6.2 describes as produced
// externally "from schemas + runtime configuration". A window with
// Over == 0 is a static set with no time-expiry; a window with no Streams
// is a yield-only output window (spec §3).
type Def struct {
	Name      string
	Streams   []string
	TimeField string
	Over      time.Duration
	Schema    *arrow.Schema
	Config    config.WindowConfig
}

// IsYieldOnly reports whether this window has no subscribed streams and
// therefore exists only as an alert-dispatcher output target.
func (d Def) IsYieldOnly() bool { return len(d.Streams) == 0 }

// IsStatic reports whether this window never expires batches by event time
// (spec §4.1's over = 0 case).
func (d Def) IsStatic() bool { return d.Over == 0 }
