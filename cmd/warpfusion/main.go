// SPDX-License-Identifier: AGPL-3.0-or-later

// Command warpfusion runs the correlation detection engine: it ingests
// columnar event batches over TCP or NATS, buffers them into sliding
// windows, evaluates CEP rule plans against those windows, and routes
// the resulting alerts to configured sinks.
//
// # Application architecture
//
// main wires components in the order the supervisor tree starts them
// (dispatch -> core -> ingest, see internal/supervisor/lifecycle.go):
//
//  1. Configuration: load settings from a TOML file plus WARPFUSION_*
//     environment overrides (koanf v2).
//  2. Window registry: decode the window-definition artifact and build
//     the in-memory window map and stream subscription table.
//  3. Dispatch layer: sinks built from configuration, wrapped in circuit
//     breakers, and the alert dispatcher that routes records to them.
//  4. Admin surface: health, metrics, pprof, and a live alert websocket
//     feed.
//  5. Core layer: the evictor's sweep loop and one task per compiled
//     rule plan.
//  6. Ingest layer: the configured frame receiver (TCP or NATS).
//
// # Signal handling
//
// SIGINT and SIGTERM trigger the two-phase shutdown sequence documented
// on internal/supervisor.Lifecycle: the receiver and evictor stop first,
// then every rule task drains and closes its instances, then the alert
// channel closes and the dispatcher drains in flight alerts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warpfusion/warpfusion/internal/admin"
	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/evictor"
	"github.com/warpfusion/warpfusion/internal/ingest"
	"github.com/warpfusion/warpfusion/internal/logging"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/router"
	"github.com/warpfusion/warpfusion/internal/sink"
	"github.com/warpfusion/warpfusion/internal/supervisor"
	"github.com/warpfusion/warpfusion/internal/window"
)

func main() {
	cfg, err := config.Load(os.Getenv("WARPFUSION_CONFIG"))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("listen", cfg.Listen).Str("transport", cfg.Ingest.Transport).Msg("starting warpfusion")

	reg, err := loadRegistry(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build window registry")
	}
	logging.Info().Int("windows", len(reg.WindowNames())).Msg("window registry built")

	plans, err := loadRulePlans(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load rule plans")
	}
	logging.Info().Int("rules", len(plans)).Msg("rule plans loaded")

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	ctx, ruleCtx, lc := supervisor.NewLifecycle(sigCtx)

	slogLogger := logging.NewSlogLoggerWithLevel(cfg.Logging.Level)
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	// --- dispatch layer ---

	wsFeed := sink.NewWSSink("admin-ws")
	sinksByGroup, err := buildSinksByGroup(cfg, wsFeed, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build sinks")
	}
	groupPatterns := buildGroupPatterns(cfg)

	alertRecords := make(chan alert.Record, 1024)
	dispatcher := alert.NewDispatcher(alertRecords, groupPatterns, sinksByGroup, cfg.Sinks.ErrorGroup, logging.Logger())

	alertCloseSignal := make(chan struct{})
	lc.SetAlertChannel(alertCloseSignal)
	go func() {
		<-alertCloseSignal
		close(alertRecords)
	}()

	dispatchDone := lc.DispatchDone()
	tree.AddDispatchService(supervisor.FromFunc("alert-dispatcher", func(context.Context) error {
		defer close(dispatchDone)
		dispatcher.Run()
		return nil
	}))

	adminServer := admin.New(admin.Config{Listen: cfg.Admin.Listen}, wsFeed, logging.Logger())
	tree.AddDispatchService(adminServer)

	// --- core layer ---

	ev := evictor.New(reg, time.Duration(cfg.WindowDefaults.EvictInterval), uint64(cfg.WindowDefaults.MaxTotalBytes), cfg.WindowDefaults.EvictPolicy, nil, logging.Logger())
	evictorDone := lc.EvictorDone()
	tree.AddCoreService(supervisor.FromFunc("evictor", func(context.Context) error {
		defer close(evictorDone)
		if err := ev.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		ev.Stop()
		return nil
	}))

	for _, plan := range plans {
		task, err := buildRuleTask(plan, reg, alertRecords, time.Duration(cfg.ScanInterval), time.Duration(cfg.RuleExecTimeout), logging.Logger())
		if err != nil {
			logging.Fatal().Err(err).Str("rule", plan.RuleName).Msg("failed to build rule task")
		}
		ruleDone := lc.AddRuleTask()
		tree.AddCoreService(supervisor.FromFunc(fmt.Sprintf("rule-task-%s", plan.RuleName), func(context.Context) error {
			defer close(ruleDone)
			task.Run(ruleCtx)
			return nil
		}))
	}

	// --- ingest layer ---

	rt := router.New(reg, logging.Logger())
	routeFn := func(stream string, b *batch.RecordBatch) {
		defer b.Release()
		if rep := rt.Route(stream, b); rep.DroppedLate > 0 {
			logging.Debug().Str("stream", stream).Int("dropped_late", rep.DroppedLate).Msg("batch partially dropped as late")
		}
	}

	receiver, err := ingest.New(*cfg, routeFn, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build ingest receiver")
	}

	receiverDone := lc.ReceiverDone()
	tree.AddIngestService(supervisor.FromFunc("ingest-receiver", func(context.Context) error {
		defer close(receiverDone)
		return receiver.Run(ctx)
	}))

	// --- run ---

	errCh := tree.ServeBackground(sigCtx)

	<-sigCtx.Done()
	logging.Info().Msg("shutdown signal received, draining in-flight work")
	lc.Shutdown()

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	logging.Info().Msg("warpfusion stopped")
}

// loadRegistry opens cfg.WindowDefsFile and builds the window registry
// from its contents merged against cfg's resolved per-window settings
// (spec §6.2's window-definition artifact, stood in for the WFL/WFS
// compiler's output).
func loadRegistry(cfg *config.RuntimeConfig) (*registry.Registry, error) {
	f, err := os.Open(cfg.WindowDefsFile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.WindowDefsFile, err)
	}
	defer f.Close()

	resolved, err := cfg.ResolvedWindows()
	if err != nil {
		return nil, err
	}
	defs, err := window.DecodeDefs(f, resolved)
	if err != nil {
		return nil, err
	}
	return registry.Build(defs, nil)
}

// loadRulePlans opens cfg.RulePlansFile and decodes the compiled rule
// plans it contains (spec §6.2's rule-plan artifact, stood in for the
// WFL/WFS compiler's output).
func loadRulePlans(cfg *config.RuntimeConfig) ([]cep.RulePlan, error) {
	f, err := os.Open(cfg.RulePlansFile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.RulePlansFile, err)
	}
	defer f.Close()
	return cep.DecodeRulePlans(f)
}
