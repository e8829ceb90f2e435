// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"
)

// Validate checks the decoded configuration for internal consistency.
// It does not check cross-references into WindowDefs supplied by the
// schema compiler: "over > over_cap" (spec §7) combines a WindowDef's
// `over` with this config's resolved `over_cap`, and is enforced by
// registry.Build once both values are in hand.
func (c *RuntimeConfig) Validate() error {
	if err := c.validateListen(); err != nil {
		return err
	}
	if err := c.validateWindowDefaults(); err != nil {
		return err
	}
	if err := c.validateWindowOverrides(); err != nil {
		return err
	}
	if err := c.validateSinks(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateArtifactFiles()
}

func (c *RuntimeConfig) validateArtifactFiles() error {
	if c.WindowDefsFile == "" {
		return fmt.Errorf("window_defs_file must not be empty")
	}
	if c.RulePlansFile == "" {
		return fmt.Errorf("rule_plans_file must not be empty")
	}
	return nil
}

func (c *RuntimeConfig) validateListen() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	switch c.Ingest.Transport {
	case "", "tcp":
	case "nats":
		if c.Ingest.NATSURL == "" {
			return fmt.Errorf("ingest.nats_url is required when ingest.transport = \"nats\"")
		}
		if c.Ingest.Subject == "" {
			return fmt.Errorf("ingest.subject is required when ingest.transport = \"nats\"")
		}
	default:
		return fmt.Errorf("ingest.transport %q is not one of tcp/nats", c.Ingest.Transport)
	}
	return nil
}

func (c *RuntimeConfig) validateWindowDefaults() error {
	d := c.WindowDefaults
	if !d.EvictPolicy.valid() {
		return fmt.Errorf("window_defaults.evict_policy %q is not one of time_first/memory_first", d.EvictPolicy)
	}
	if !d.LatePolicy.valid() {
		return fmt.Errorf("window_defaults.late_policy %q is not one of drop/revise/side_output", d.LatePolicy)
	}
	if d.MaxWindowBytes == 0 {
		return fmt.Errorf("window_defaults.max_window_bytes must be > 0")
	}
	if d.MaxTotalBytes == 0 {
		return fmt.Errorf("window_defaults.max_total_bytes must be > 0")
	}
	return nil
}

func (c *RuntimeConfig) validateWindowOverrides() error {
	for name, o := range c.Windows {
		if _, err := o.Resolve(name, c.WindowDefaults); err != nil {
			return err
		}
		if o.EvictPolicy != nil && !o.EvictPolicy.valid() {
			return fmt.Errorf("window %q: evict_policy %q is not one of time_first/memory_first", name, *o.EvictPolicy)
		}
		if o.LatePolicy != nil && !o.LatePolicy.valid() {
			return fmt.Errorf("window %q: late_policy %q is not one of drop/revise/side_output", name, *o.LatePolicy)
		}
	}
	return nil
}

func (c *RuntimeConfig) validateSinks() error {
	for groupName, sinkIDs := range c.Sinks.Groups {
		for _, sinkID := range sinkIDs {
			if _, ok := c.Sinks.Connectors[sinkID]; !ok {
				return fmt.Errorf("sink group %q references unknown connector %q", groupName, sinkID)
			}
		}
	}
	for _, bg := range c.Sinks.BusinessGroups {
		if _, ok := c.Sinks.Groups[bg.Group]; !ok {
			return fmt.Errorf("business group pattern %q references unknown group %q", bg.Pattern, bg.Group)
		}
	}
	if c.Sinks.DefaultGroup != "" {
		if _, ok := c.Sinks.Groups[c.Sinks.DefaultGroup]; !ok {
			return fmt.Errorf("sinks.default_group references unknown group %q", c.Sinks.DefaultGroup)
		}
	}
	if c.Sinks.ErrorGroup != "" {
		if _, ok := c.Sinks.Groups[c.Sinks.ErrorGroup]; !ok {
			return fmt.Errorf("sinks.error_group references unknown group %q", c.Sinks.ErrorGroup)
		}
	}
	return nil
}

func (c *RuntimeConfig) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("logging.level %q is not a recognized level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not one of json/console", c.Logging.Format)
	}
	return nil
}
