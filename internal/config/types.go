// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "fmt"

// EvictPolicy selects which window the evictor's memory phase sheds from
// first when the global byte cap is exceeded (spec §4.4, §6.4).
type EvictPolicy string

const (
	EvictPolicyTimeFirst   EvictPolicy = "time_first"
	EvictPolicyMemoryFirst EvictPolicy = "memory_first"
)

func (p EvictPolicy) valid() bool {
	return p == EvictPolicyTimeFirst || p == EvictPolicyMemoryFirst
}

// LatePolicy selects how append_with_watermark treats a batch whose
// min event-time falls before watermark-allowed_lateness (spec §4.1).
type LatePolicy string

const (
	LatePolicyDrop       LatePolicy = "drop"
	LatePolicyRevise     LatePolicy = "revise"
	LatePolicySideOutput LatePolicy = "side_output"
)

func (p LatePolicy) valid() bool {
	return p == LatePolicyDrop || p == LatePolicyRevise || p == LatePolicySideOutput
}

// DistMode is carried through config and validated in full even though only
// Local affects routing in this core (spec §9 open question, §12).
type DistMode struct {
	Kind      string // "local", "replicated", or "partitioned"
	Partition string // set only when Kind == "partitioned"
}

func (m DistMode) IsLocal() bool { return m.Kind == "local" }

func resolveDistMode(mode, partitionKey string) (DistMode, error) {
	switch mode {
	case "", "local":
		return DistMode{Kind: "local"}, nil
	case "replicated":
		return DistMode{Kind: "replicated"}, nil
	case "partitioned":
		if partitionKey == "" {
			return DistMode{}, fmt.Errorf(`mode "partitioned" requires partition_key`)
		}
		return DistMode{Kind: "partitioned", Partition: partitionKey}, nil
	default:
		return DistMode{}, fmt.Errorf("unknown window mode %q", mode)
	}
}

// WindowDefaults is decoded from the TOML [window_defaults] table and
// provides the fallback value for every field a [window.<name>] override
// omits.
type WindowDefaults struct {
	EvictInterval   HumanDuration `koanf:"evict_interval"`
	MaxWindowBytes  ByteSize      `koanf:"max_window_bytes"`
	MaxTotalBytes   ByteSize      `koanf:"max_total_bytes"`
	EvictPolicy     EvictPolicy   `koanf:"evict_policy"`
	WatermarkDelay  HumanDuration `koanf:"watermark_delay"`
	AllowedLateness HumanDuration `koanf:"allowed_lateness"`
	LatePolicy      LatePolicy    `koanf:"late_policy"`
}

// WindowOverride is decoded from an individual [window.<name>] TOML table.
// Every field except Mode/PartitionKey/OverCap is a pointer so "unset" is distinguishable
// from "explicitly set to the zero value".
type WindowOverride struct {
	Mode            string         `koanf:"mode"`
	PartitionKey    string         `koanf:"partition_key"`
	MaxWindowBytes  *ByteSize      `koanf:"max_window_bytes"`
	OverCap         HumanDuration  `koanf:"over_cap"`
	EvictPolicy     *EvictPolicy   `koanf:"evict_policy"`
	WatermarkDelay  *HumanDuration `koanf:"watermark_delay"`
	AllowedLateness *HumanDuration `koanf:"allowed_lateness"`
	LatePolicy      *LatePolicy    `koanf:"late_policy"`
}

// WindowConfig is the fully resolved, immutable runtime configuration for a
// single window: override fields merged against WindowDefaults.
type WindowConfig struct {
	Name            string
	Mode            DistMode
	MaxWindowBytes  ByteSize
	OverCap         HumanDuration
	EvictPolicy     EvictPolicy
	WatermarkDelay  HumanDuration
	AllowedLateness HumanDuration
	LatePolicy      LatePolicy
}

// Resolve merges this override against defaults, producing a WindowConfig.
func (o WindowOverride) Resolve(name string, defaults WindowDefaults) (WindowConfig, error) {
	mode, err := resolveDistMode(o.Mode, o.PartitionKey)
	if err != nil {
		return WindowConfig{}, fmt.Errorf("window %q: %w", name, err)
	}

	wc := WindowConfig{
		Name:            name,
		Mode:            mode,
		MaxWindowBytes:  defaults.MaxWindowBytes,
		OverCap:         o.OverCap,
		EvictPolicy:     defaults.EvictPolicy,
		WatermarkDelay:  defaults.WatermarkDelay,
		AllowedLateness: defaults.AllowedLateness,
		LatePolicy:      defaults.LatePolicy,
	}
	if o.MaxWindowBytes != nil {
		wc.MaxWindowBytes = *o.MaxWindowBytes
	}
	if o.EvictPolicy != nil {
		wc.EvictPolicy = *o.EvictPolicy
	}
	if o.WatermarkDelay != nil {
		wc.WatermarkDelay = *o.WatermarkDelay
	}
	if o.AllowedLateness != nil {
		wc.AllowedLateness = *o.AllowedLateness
	}
	if o.LatePolicy != nil {
		wc.LatePolicy = *o.LatePolicy
	}
	return wc, nil
}

// IngestConfig selects and configures the frame receiver (spec §6.1, §11).
type IngestConfig struct {
	Transport string `koanf:"transport"` // "tcp" (default) or "nats"
	NATSURL   string `koanf:"nats_url"`
	Subject   string `koanf:"subject"` // NATS subject frames are published to; ignored for "tcp"
}

// SinkDefinition is a connector id bound to a sink type plus default
// parameters, subject to the connector's own override allow-list (spec §4.7).
type SinkDefinition struct {
	Type       string            `koanf:"type"`
	Params     map[string]string `koanf:"params"`
	AllowedOverrides []string    `koanf:"allowed_overrides"`
}

// BusinessGroup routes alerts whose yield_target matches Pattern (with "*"
// wildcards) to the named Group. First pattern match wins (spec §4.7).
type BusinessGroup struct {
	Pattern string `koanf:"pattern"`
	Group   string `koanf:"group"`
}

// SinkConfig is the sink-routing bundle built at start from configuration
// (spec §6.2's "Sink configuration"). Groups maps a group name to the list
// of connector ids that receive every alert routed to that group.
type SinkConfig struct {
	Defaults       map[string]string         `koanf:"defaults"`
	Connectors     map[string]SinkDefinition `koanf:"connectors"`
	Groups         map[string][]string       `koanf:"groups"`
	BusinessGroups []BusinessGroup           `koanf:"business_groups"`
	DefaultGroup   string                    `koanf:"default_group"`
	ErrorGroup     string                    `koanf:"error_group"`
}

// LoggingConfig controls internal/logging's global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// AdminConfig controls the chi-based metrics/health HTTP surface.
type AdminConfig struct {
	Listen string `koanf:"listen"`
}

// RuntimeConfig is the fully decoded TOML runtime configuration (spec §6.4).
type RuntimeConfig struct {
	Listen          string                    `koanf:"listen"`
	Ingest          IngestConfig              `koanf:"ingest"`
	RuleExecTimeout HumanDuration             `koanf:"rule_exec_timeout"`
	ScanInterval    HumanDuration             `koanf:"scan_interval"`
	WindowDefaults  WindowDefaults            `koanf:"window_defaults"`
	Windows         map[string]WindowOverride `koanf:"window"`
	Vars            map[string]string         `koanf:"vars"`
	Sinks           SinkConfig                `koanf:"sinks"`
	Logging         LoggingConfig             `koanf:"logging"`
	Admin           AdminConfig               `koanf:"admin"`

	// WindowDefsFile and RulePlansFile point at the JSON stand-in
	// artifacts for the WindowDef and RulePlan values spec §6.2 treats
	// as produced by external collaborators (the schema/compiler
	// pipeline, out of scope here). See internal/window.DecodeDefs and
	// internal/cep.DecodeRulePlans.
	WindowDefsFile string `koanf:"window_defs_file"`
	RulePlansFile  string `koanf:"rule_plans_file"`
}

// ResolvedWindows resolves every entry in Windows against WindowDefaults.
func (c *RuntimeConfig) ResolvedWindows() (map[string]WindowConfig, error) {
	out := make(map[string]WindowConfig, len(c.Windows))
	for name, override := range c.Windows {
		wc, err := override.Resolve(name, c.WindowDefaults)
		if err != nil {
			return nil, err
		}
		out[name] = wc
	}
	return out, nil
}
