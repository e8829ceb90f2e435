// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/warpfusion/warpfusion/internal/logging"
	"github.com/warpfusion/warpfusion/internal/metrics"
)

// Breaker wraps another Sink in a circuit breaker so a persistently
// failing sink trips open rather than retrying synchronously on every
// alert (spec §11's domain-stack entry for sony/gobreaker/v2). Once
// open, Write fails fast with gobreaker.ErrOpenState instead of
// blocking the dispatcher on a dead downstream.
type Breaker struct {
	inner Sink
	cb    *gobreaker.CircuitBreaker[any]
}

// BreakerSettings configures the wrapped breaker. Zero values fall back
// to the defaults below.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	return s
}

// NewBreaker wraps inner with a circuit breaker named after it.
func NewBreaker(inner Sink, settings BreakerSettings) *Breaker {
	settings = settings.withDefaults()
	name := inner.Name()

	metrics.SinkBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("sink", name).Str("from", from.String()).Str("to", to.String()).
				Msg("sink circuit breaker state transition")
			metrics.SinkBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.SinkBreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Breaker{inner: inner, cb: cb}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Write(ctx context.Context, payload []byte) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Write(ctx, payload)
	})
	return err
}

func (b *Breaker) Stop(ctx context.Context) error {
	return b.inner.Stop(ctx)
}
