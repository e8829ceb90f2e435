// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/warpfusion/warpfusion/internal/config"
)

// windowDefJSON is the stand-in artifact format for the window
// definitions spec §6.2 describes as produced externally "from schemas +
// runtime configuration": the schema/streams/time-field shape named here,
// merged against the resolved config.WindowConfig DecodeDefs is given for
// each name.
type windowDefJSON struct {
	Name      string   `json:"name"`
	Streams   []string `json:"streams"`
	TimeField string   `json:"time_field"`
	Over      string   `json:"over"` // duration string, e.g. "10m"; "" means static (never expires)
}

// DecodeDefs parses an ordered list of window definitions from r and
// resolves each against configs (keyed by window name, typically
// config.RuntimeConfig.ResolvedWindows' output). A name present in the
// JSON but absent from configs uses its zero config.WindowConfig.
func DecodeDefs(r io.Reader, configs map[string]config.WindowConfig) ([]Def, error) {
	var raw []windowDefJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("window: decode definitions: %w", err)
	}

	defs := make([]Def, len(raw))
	for i, d := range raw {
		var over time.Duration
		if d.Over != "" {
			var err error
			over, err = time.ParseDuration(d.Over)
			if err != nil {
				return nil, fmt.Errorf("window %q: over %q: %w", d.Name, d.Over, err)
			}
		}
		defs[i] = Def{
			Name:      d.Name,
			Streams:   d.Streams,
			TimeField: d.TimeField,
			Over:      over,
			Config:    configs[d.Name],
		}
	}
	return defs, nil
}
