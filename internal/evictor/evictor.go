// SPDX-License-Identifier: AGPL-3.0-or-later

package evictor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/metrics"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/window"
)

// Evictor periodically sweeps every window in the registry. It implements
// supervisor.Startable so the engine can wrap it into the core suture
// layer (spec §4.4, §10.4).
type Evictor struct {
	reg           *registry.Registry
	interval      time.Duration
	maxTotalBytes uint64
	policy        config.EvictPolicy
	now           func() time.Time
	log           zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// New builds an Evictor. now defaults to time.Now.
func New(reg *registry.Registry, interval time.Duration, maxTotalBytes uint64, policy config.EvictPolicy, now func() time.Time, log zerolog.Logger) *Evictor {
	if now == nil {
		now = time.Now
	}
	return &Evictor{
		reg:           reg,
		interval:      interval,
		maxTotalBytes: maxTotalBytes,
		policy:        policy,
		now:           now,
		log:           log.With().Str("component", "evictor").Logger(),
	}
}

// Start launches the sweep loop. Stop (or ctx cancellation) ends it.
func (e *Evictor) Start(ctx context.Context) error {
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(ctx)
	return nil
}

func (e *Evictor) Stop() {
	if e.stop != nil {
		close(e.stop)
	}
	if e.done != nil {
		<-e.done
	}
}

func (e *Evictor) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Sweep runs one time phase followed by one memory phase (spec §4.4).
// Exported so tests can trigger a deterministic sweep without waiting on
// the ticker.
func (e *Evictor) Sweep() {
	e.sweepExpired()
	e.sweepMemory()
}

func (e *Evictor) sweepExpired() {
	now := e.now()
	for _, w := range e.reg.Windows() {
		evicted, bytesFreed := w.EvictExpired(now)
		if evicted > 0 {
			metrics.EvictionsTotal.WithLabelValues(w.Name(), "time").Add(float64(evicted))
			metrics.WindowBytes.WithLabelValues(w.Name()).Set(float64(w.MemoryUsage()))
			e.log.Debug().Str("window", w.Name()).Int("evicted", evicted).Int64("bytes_freed", bytesFreed).Msg("time-phase eviction")
		}
	}
}

func (e *Evictor) sweepMemory() {
	if e.maxTotalBytes == 0 {
		return
	}
	for e.totalBytes() > e.maxTotalBytes {
		victim := e.pickVictim()
		if victim == nil {
			return
		}
		bytesFreed, ok := victim.EvictOldest()
		if !ok {
			return
		}
		metrics.EvictionsTotal.WithLabelValues(victim.Name(), "memory").Inc()
		metrics.WindowBytes.WithLabelValues(victim.Name()).Set(float64(victim.MemoryUsage()))
		e.log.Debug().Str("window", victim.Name()).Int64("bytes_freed", bytesFreed).Msg("memory-phase eviction")
	}
}

func (e *Evictor) totalBytes() uint64 {
	var total uint64
	for _, w := range e.reg.Windows() {
		total += uint64(w.MemoryUsage())
	}
	return total
}

// pickVictim selects the window the memory phase sheds from next,
// according to the configured policy (spec §4.4). time_first prefers the
// window whose oldest buffered batch is oldest; memory_first prefers the
// window using the most bytes. Ties are broken by registration order,
// left unspecified by spec §9's open question.
func (e *Evictor) pickVictim() *window.Window {
	var best *window.Window
	var bestKey int64
	first := true

	for _, w := range e.reg.Windows() {
		if w.MemoryUsage() == 0 {
			continue
		}
		var key int64
		switch e.policy {
		case config.EvictPolicyMemoryFirst:
			key = w.MemoryUsage()
		default: // time_first
			oldest, ok := w.OldestEventTime()
			if !ok {
				continue
			}
			// Older event-time (smaller nanos) should sort first; negate
			// so "largest key wins" selection logic stays uniform across
			// policies.
			key = -oldest
		}
		if first || key > bestKey {
			best, bestKey, first = w, key, false
		}
	}
	return best
}
