// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched, in order, when no explicit
// path is given. The first file found is used.
var DefaultConfigPaths = []string{
	"warpfusion.toml",
	"/etc/warpfusion/warpfusion.toml",
}

// ConfigPathEnvVar overrides the search above with an explicit file.
const ConfigPathEnvVar = "WARPFUSION_CONFIG"

// EnvPrefix is the prefix stripped from environment variables before they
// are mapped onto koanf paths (spec §6.4's knobs are all overridable).
const EnvPrefix = "WARPFUSION_"

func defaultConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Listen: "tcp://127.0.0.1:9800",
		Ingest: IngestConfig{
			Transport: "tcp",
			Subject:   "warpfusion.ingest",
		},
		RuleExecTimeout: HumanDuration(30e9), // 30s
		WindowDefaults: WindowDefaults{
			EvictInterval:   HumanDuration(30e9),
			MaxWindowBytes:  ByteSize(256 << 20),
			MaxTotalBytes:   ByteSize(2 << 30),
			EvictPolicy:     EvictPolicyTimeFirst,
			WatermarkDelay:  HumanDuration(5e9),
			AllowedLateness: 0,
			LatePolicy:      LatePolicyDrop,
		},
		Windows: map[string]WindowOverride{},
		Vars:    map[string]string{},
		Sinks: SinkConfig{
			Defaults:   map[string]string{},
			Connectors: map[string]SinkDefinition{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Admin: AdminConfig{
			Listen: "127.0.0.1:9801",
		},
		ScanInterval:   HumanDuration(1e9), // 1s, spec §4.6's default timeout-scan interval
		WindowDefsFile: "windows.json",
		RulePlansFile:  "rules.json",
	}
}

// Load loads the runtime configuration from defaults, an optional TOML
// file, and environment variable overrides, then validates the result
// (spec §7's "Configuration errors: fatal at startup").
//
// Precedence, lowest to highest: built-in defaults, TOML file, environment.
func Load(explicitPath string) (*RuntimeConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := resolveConfigPath(explicitPath); path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &RuntimeConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// resolveConfigPath finds the TOML file to load, preferring an explicit
// path, then the environment variable, then DefaultConfigPaths.
func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps WARPFUSION_-prefixed environment variables onto
// koanf dotted paths, e.g. WARPFUSION_WINDOW_DEFAULTS__EVICT_INTERVAL ->
// window_defaults.evict_interval. "__" is the nesting delimiter so single
// underscores inside a field name survive the transform.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

// WatchConfigFile watches path for changes and invokes callback on each one.
// Hot-reload is opt-in; callers are responsible for building a new
// RuntimeConfig via Load and swapping it in under their own synchronization.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}

// ExpandVars substitutes $VAR and ${VAR:default} occurrences in text using
// vars, falling back to the process environment when a name is absent from
// vars (spec §6.4's "[vars]" knob, applied to rule source text before it
// reaches the WFL compiler boundary).
func ExpandVars(text string, vars map[string]string) string {
	return os.Expand(text, func(name string) string {
		key, def, hasDefault := strings.Cut(name, ":")
		if v, ok := vars[key]; ok {
			return v
		}
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
