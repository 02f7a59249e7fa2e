package main

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polyflow/config"
	"github.com/alejandrodnm/polyflow/internal/adapters/notify"
	"github.com/alejandrodnm/polyflow/internal/adapters/sink"
	"github.com/alejandrodnm/polyflow/internal/adapters/storage"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
	"github.com/alejandrodnm/polyflow/internal/ports"
	"github.com/alejandrodnm/polyflow/internal/replay"
)

// runReplay carga eventos históricos, los reproduce por el mismo consumer
// que usa el modo live con ejecución simulada, e imprime el reporte del run.
func runReplay(ctx context.Context, cfg *config.Config, runID string, fromMs, toMs int64) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.LoadEvents(ctx, ports.EventFilter{StartMs: fromMs, EndMs: toMs})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		slog.Warn("no events in range, nothing to replay", "from", fromMs, "to", toMs)
		return nil
	}
	slog.Info("replaying events", "count", len(events), "run_id", runID)

	runner := newRunner(cfg)
	collector := sink.NewCollect(runID, store, false)
	simExec := sink.NewSimExec(runID, sink.SimParams{
		LatencyMinMs: cfg.Sim.LatencyMinMs,
		LatencyMaxMs: cfg.Sim.LatencyMaxMs,
		FailProb:     cfg.Sim.FailProb,
		FeeBps:       cfg.Sim.FeeBps,
		Seed:         cfg.Sim.Seed,
	}, runner.Manager(), store)

	pctx := pipeline.Context{
		Mode:            pipeline.ModeBacktest,
		RunID:           runID,
		FeaturesVersion: cfg.Model.FeaturesVersion,
		BetaVersion:     cfg.Model.BetaVersion,
	}

	if err := replay.Run(events, runner, pipeline.MultiSink{collector, simExec}, pctx); err != nil {
		return err
	}
	if err := simExec.Finish(); err != nil {
		return err
	}

	res := simExec.Results()
	report := notify.RunReport{
		RunID:       runID,
		Mode:        string(pctx.Mode),
		Events:      collector.Handled(),
		Signals:     len(collector.Signals()),
		Fingerprint: collector.Fingerprint(),
		Trades:      simExec.Trades(),
		Cash:        res.Cash,
		MTM:         res.MTM,
		PnL:         res.PnL,
		Inventory:   res.Inventory,
	}

	collector.FlushToDB(ctx)
	simExec.FlushToDB(ctx)

	notify.NewConsole().PrintRunReport(report)
	slog.Info("replay complete",
		"run_id", runID,
		"events", report.Events,
		"signals", report.Signals,
		"fills", len(report.Trades),
		"pnl", report.PnL,
		"collisions", runner.Collisions(),
	)
	return nil
}
