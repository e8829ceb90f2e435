// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/sink"
)

// buildSink constructs the concrete sink.Sink named id from its
// connector definition, resolving effective parameters via
// sink.ResolveParams (spec §4.7's defaults -> group overrides -> sink
// overrides chain; RuntimeConfig carries no group-level override layer
// today, so that middle layer is always empty here). wsFeed is reused
// for every connector of type "ws" so the dispatcher and the admin
// server's live feed broadcast to the same set of connected clients.
func buildSink(id string, def config.SinkDefinition, defaults map[string]string, wsFeed *sink.WSSink) (sink.Sink, error) {
	params := sink.ResolveParams(defaults, nil, def.Params, def.AllowedOverrides)

	switch def.Type {
	case "file":
		path := params["path"]
		if path == "" {
			return nil, fmt.Errorf("sink %s: file sink requires a \"path\" param", id)
		}
		return sink.OpenFileSink(id, path)

	case "http":
		url := params["url"]
		if url == "" {
			return nil, fmt.Errorf("sink %s: http sink requires a \"url\" param", id)
		}
		var opts []sink.HTTPSinkOption
		if method := params["method"]; method != "" {
			opts = append(opts, sink.WithHTTPMethod(method))
		}
		return sink.NewHTTPSink(id, url, opts...), nil

	case "ws":
		if wsFeed == nil {
			return nil, fmt.Errorf("sink %s: ws sink type requires the admin websocket feed to be enabled", id)
		}
		return wsFeed, nil

	default:
		return nil, fmt.Errorf("sink %s: unknown connector type %q", id, def.Type)
	}
}

// buildSinksByGroup realises every connector referenced by cfg.Sinks.Groups
// and wraps each in a circuit breaker, deduplicating so a connector
// referenced by more than one group is only opened once (Dispatcher.stopAll
// also dedupes, but opening a file twice would duplicate its writes).
func buildSinksByGroup(cfg *config.RuntimeConfig, wsFeed *sink.WSSink, log zerolog.Logger) (map[string][]sink.Sink, error) {
	opened := make(map[string]sink.Sink, len(cfg.Sinks.Connectors))
	sinksByGroup := make(map[string][]sink.Sink, len(cfg.Sinks.Groups))

	for group, ids := range cfg.Sinks.Groups {
		for _, id := range ids {
			s, ok := opened[id]
			if !ok {
				def, ok := cfg.Sinks.Connectors[id]
				if !ok {
					return nil, fmt.Errorf("sink group %q references unknown connector %q", group, id)
				}
				built, err := buildSink(id, def, cfg.Sinks.Defaults, wsFeed)
				if err != nil {
					return nil, err
				}
				s = sink.NewBreaker(built, sink.BreakerSettings{})
				opened[id] = s
				log.Info().Str("sink", id).Str("type", def.Type).Msg("sink connector opened")
			}
			sinksByGroup[group] = append(sinksByGroup[group], s)
		}
	}
	return sinksByGroup, nil
}

// buildGroupPatterns converts the configured business-group rules into
// dispatcher routing patterns, appending a catch-all "*" entry for
// sinks.default_group (if set) so every alert whose yield_target matches
// no explicit pattern still reaches a sink rather than being silently
// dropped (spec §4.7 step 2's "first match wins", extended with a
// fallback since RuntimeConfig validates default_group separately from
// the business_groups list).
func buildGroupPatterns(cfg *config.RuntimeConfig) []alert.GroupPattern {
	patterns := make([]alert.GroupPattern, 0, len(cfg.Sinks.BusinessGroups)+1)
	for _, bg := range cfg.Sinks.BusinessGroups {
		patterns = append(patterns, alert.GroupPattern{Pattern: bg.Pattern, Group: bg.Group})
	}
	if cfg.Sinks.DefaultGroup != "" {
		patterns = append(patterns, alert.GroupPattern{Pattern: "*", Group: cfg.Sinks.DefaultGroup})
	}
	return patterns
}
