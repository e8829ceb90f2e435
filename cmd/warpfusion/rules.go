// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/ruletask"
)

// buildWindowSources resolves a rule plan's binds into the WindowSource
// list ruletask.New needs, grouping aliases by window since one window
// may feed more than one bind (spec §4.6).
func buildWindowSources(plan cep.RulePlan, reg *registry.Registry) ([]ruletask.WindowSource, error) {
	order := make([]string, 0, len(plan.Binds))
	aliasesByWindow := make(map[string][]string, len(plan.Binds))

	for _, b := range plan.Binds {
		if _, seen := aliasesByWindow[b.WindowName]; !seen {
			order = append(order, b.WindowName)
		}
		aliasesByWindow[b.WindowName] = append(aliasesByWindow[b.WindowName], b.Alias)
	}

	sources := make([]ruletask.WindowSource, 0, len(order))
	for _, name := range order {
		w, ok := reg.Window(name)
		if !ok {
			return nil, fmt.Errorf("rule %s: bind references unknown window %q", plan.RuleName, name)
		}
		n, ok := reg.Notifier(name)
		if !ok {
			return nil, fmt.Errorf("rule %s: window %q has no notifier", plan.RuleName, name)
		}
		sources = append(sources, ruletask.WindowSource{
			WindowName: name,
			Window:     w,
			Notifier:   n,
			Aliases:    aliasesByWindow[name],
		})
	}
	return sources, nil
}

// buildRuleTask constructs one Task, wiring it to alertCh and the scan
// and execution timeout knobs from configuration (spec §4.6, §6.4).
func buildRuleTask(plan cep.RulePlan, reg *registry.Registry, alertCh chan<- alert.Record, scanInterval, execTimeout time.Duration, log zerolog.Logger) (*ruletask.Task, error) {
	sources, err := buildWindowSources(plan, reg)
	if err != nil {
		return nil, err
	}
	ruleLog := log.With().Str("rule", plan.RuleName).Logger()
	return ruletask.New(plan, sources, alertCh, scanInterval, execTimeout, nil, ruleLog), nil
}
