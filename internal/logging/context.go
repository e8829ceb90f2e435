// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// writeSpanIDKey correlates every log line emitted while a dispatcher
	// drains one alert.Record across its group/error-group sink writes
	// (spec's dispatcher batch-write span, see internal/alert.Dispatcher).
	writeSpanIDKey contextKey = "write_span_id"

	loggerKey contextKey = "logger"
)

// NewWriteSpanID returns a short correlation id for one dispatcher
// write span. Truncated to 8 hex characters: it only needs to
// disambiguate concurrently in-flight writes in a log stream, not
// serve as a durable identifier (alert.Record.AlertID already is one).
func NewWriteSpanID() string {
	return uuid.New().String()[:8]
}

// ContextWithWriteSpan attaches id as the write-span correlation id.
func ContextWithWriteSpan(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, writeSpanIDKey, id)
}

// ContextWithNewWriteSpan attaches a freshly generated write-span id.
func ContextWithNewWriteSpan(ctx context.Context) context.Context {
	return ContextWithWriteSpan(ctx, NewWriteSpanID())
}

// WriteSpanFromContext returns the write-span id stored in ctx, or ""
// if none was attached.
func WriteSpanFromContext(ctx context.Context) string {
	id, _ := ctx.Value(writeSpanIDKey).(string)
	return id
}

// ContextWithLogger stores logger in ctx for later retrieval via Ctx
// or LoggerFromContext.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, falling back to
// the global logger if none was attached.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns the context's logger with write_span_id attached when
// present. The dispatcher uses this to correlate every sink-write log
// line for one alert.Record without threading the id through every
// call's argument list.
//
//	logging.Ctx(ctx).Error().Err(err).Str("sink", name).Msg("sink write failed")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := LoggerFromContext(ctx)
	if id := WriteSpanFromContext(ctx); id != "" {
		logger = logger.With().Str("write_span_id", id).Logger()
	}
	return &logger
}
