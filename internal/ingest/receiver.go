// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warpfusion/warpfusion/internal/config"
)

// Receiver is the common shape of both transports, so callers (and the
// supervisor tree) don't need to know which one is active.
type Receiver interface {
	Run(ctx context.Context) error
}

// New selects and builds the configured transport (spec §6.4's
// ingest.transport knob; validated to be "tcp" or "nats" at config load).
func New(cfg config.RuntimeConfig, routeFn RouteFunc, log zerolog.Logger) (Receiver, error) {
	decoder := NewArrowIPCDecoder()

	switch cfg.Ingest.Transport {
	case "", "tcp":
		return NewTCPReceiver(cfg.Listen, decoder, routeFn, log,
			WithFrameRateLimit(rate.Limit(10_000), 1_000),
		), nil
	case "nats":
		natsCfg := DefaultNATSReceiverConfig(cfg.Ingest.NATSURL, cfg.Ingest.Subject)
		return NewNATSReceiver(natsCfg, decoder, routeFn, log)
	default:
		return nil, fmt.Errorf("ingest: unknown transport %q", cfg.Ingest.Transport)
	}
}
