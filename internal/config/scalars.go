// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HumanDuration parses and renders durations in the compact "30s" / "5m" /
// "1h" / "2d" form used throughout RuntimeConfig, rather than Go's native
// "5m0s" style. It round-trips through TOML as a plain string.
type HumanDuration time.Duration

func (d HumanDuration) Duration() time.Duration { return time.Duration(d) }

func (d HumanDuration) String() string {
	secs := int64(time.Duration(d) / time.Second)
	switch {
	case secs == 0:
		return "0s"
	case secs%86400 == 0:
		return fmt.Sprintf("%dd", secs/86400)
	case secs%3600 == 0:
		return fmt.Sprintf("%dh", secs/3600)
	case secs%60 == 0:
		return fmt.Sprintf("%dm", secs/60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func (d *HumanDuration) UnmarshalText(text []byte) error {
	parsed, err := ParseHumanDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d HumanDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseHumanDuration parses strings of the form "<digits><s|m|h|d>".
func ParseHumanDuration(s string) (HumanDuration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty duration string")
	}
	num, suffix, err := splitNumberSuffix(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	value, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid number in duration %q: %w", s, err)
	}

	var unit time.Duration
	switch suffix {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("config: unsupported duration suffix %q in %q (expected s/m/h/d)", suffix, s)
	}
	return HumanDuration(time.Duration(value) * unit), nil
}

// ByteSize parses and renders byte sizes in the "256MB" / "2GB" form.
type ByteSize uint64

func (b ByteSize) Bytes() uint64 { return uint64(b) }

func (b ByteSize) String() string {
	n := uint64(b)
	switch {
	case n == 0:
		return "0B"
	case n%(1<<30) == 0:
		return fmt.Sprintf("%dGB", n/(1<<30))
	case n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n/(1<<20))
	case n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// ParseByteSize parses strings of the form "<digits><B|KB|MB|GB>", case-insensitive.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty byte-size string")
	}
	upper := strings.ToUpper(s)
	num, suffix, err := splitNumberSuffix(upper)
	if err != nil {
		return 0, fmt.Errorf("config: invalid byte size %q: %w", s, err)
	}
	value, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid number in byte size %q: %w", s, err)
	}

	var mult uint64
	switch suffix {
	case "B":
		mult = 1
	case "KB":
		mult = 1 << 10
	case "MB":
		mult = 1 << 20
	case "GB":
		mult = 1 << 30
	default:
		return 0, fmt.Errorf("config: unsupported byte-size suffix %q in %q (expected B/KB/MB/GB)", suffix, s)
	}
	return ByteSize(value * mult), nil
}

// splitNumberSuffix splits "30s" into ("30", "s"). Both parts must be non-empty.
func splitNumberSuffix(s string) (num, suffix string, err error) {
	idx := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if idx < 0 {
		return "", "", fmt.Errorf("missing suffix")
	}
	if idx == 0 {
		return "", "", fmt.Errorf("missing numeric part")
	}
	return s[:idx], s[idx:], nil
}
