// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides WarpFusion's process-global zerolog.Logger
// (spec §10.1) plus the two pieces of context-threaded logging the
// rest of the tree actually needs: a slog.Logger adapter for suture's
// event hooks (slog_adapter.go) and dispatcher write-span correlation
// (context.go).
//
// # Quick start
//
//	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
//	logging.Info().Str("listen", addr).Msg("starting warpfusion")
//	logging.Error().Err(err).Str("stream", stream).Msg("decode failed")
//
// # Component loggers
//
// Constructors that need a logger take a zerolog.Logger value (usually
// logging.Logger()) and bind their own fields on it once, at
// construction time, rather than reaching for the global functions on
// every call:
//
//	log := logging.Logger().With().Str("component", "router").Logger()
//	log.Warn().Str("stream", stream).Msg("no windows subscribed")
//
// # Dispatcher write-span correlation
//
// alert.Dispatcher attaches a short write-span id to the context it
// passes through dispatch/writeToGroup so every log line produced
// while draining one alert.Record — across every sink in its business
// group, and the error group on failure — carries the same
// write_span_id field:
//
//	ctx := logging.ContextWithNewWriteSpan(base)
//	logging.Ctx(ctx).Error().Err(err).Str("sink", name).Msg("sink write failed")
//
// # slog adapter
//
// suture.Supervisor takes an slog.Logger for its own lifecycle events;
// NewSlogLogger/NewSlogLoggerWithLevel route those through the same
// global zerolog.Logger so supervisor and application logs share one
// output stream and format.
//
// # Testing
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("test message")
package logging
