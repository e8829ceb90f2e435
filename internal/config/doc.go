// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads WarpFusion's TOML runtime configuration via a
// layered koanf.Koanf: compiled-in defaults, an optional TOML file, then
// WARPFUSION_-prefixed environment overrides. See Load.
package config
