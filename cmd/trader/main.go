package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyflow/config"
	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/alejandrodnm/polyflow/internal/health"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
	"github.com/alejandrodnm/polyflow/internal/position"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "live", "execution mode: live|collect|replay")
	runID := flag.String("run-id", "", "run id (default: random uuid)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	fromMs := flag.Int64("from", 0, "replay: start of event range (epoch ms, 0 = open)")
	toMs := flag.Int64("to", 0, "replay: end of event range (epoch ms, 0 = open)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	id := *runID
	if id == "" {
		id = uuid.NewString()
	}

	slog.Info("polyflow starting",
		"config", *configPath,
		"mode", *mode,
		"run_id", id,
		"spot_product", cfg.Feeds.SpotProductID,
		"catalog_asset", cfg.Feeds.CatalogAsset,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "live":
		err = runLive(ctx, cfg, id, false)
	case "collect":
		err = runLive(ctx, cfg, id, true)
	case "replay":
		err = runReplay(ctx, cfg, id, *fromMs, *toMs)
	default:
		slog.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("run finished with error", "err", err, "run_id", id)
		os.Exit(1)
	}

	slog.Info("polyflow stopped cleanly", "run_id", id)
}

// newRunner construye el consumer a partir de la configuración cargada.
// Live y replay pasan por aquí: misma construcción, mismo comportamiento.
func newRunner(cfg *config.Config) *pipeline.Runner {
	return pipeline.NewRunner(pipeline.Config{
		Features: features.Config{
			AnchorWindowMs:     cfg.Features.AnchorMs,
			EmaFastHalfLifeMs:  cfg.Features.EmaFastMs,
			EmaSlowHalfLifeMs:  cfg.Features.EmaSlowMs,
			VolWindowMs:        cfg.Features.VolMs,
			ExpectedIntervalMs: cfg.Features.IntervalMs,
		},
		Health: health.Config{
			MaxLatencyMs: cfg.Health.MaxLatencyMs,
			MaxStaleMs:   cfg.Health.MaxStaleMs,
		},
		Beta:          features.BetaParams(cfg.Model.Betas),
		AllowZeroBeta: cfg.Model.AllowZeroBeta,
		SpotProductID: cfg.Feeds.SpotProductID,
		Intent: position.Params{
			DeltaThreshold:       cfg.Intent.DeltaThreshold,
			InventoryCap:         cfg.Intent.InventoryCap,
			OrderSize:            cfg.Intent.OrderSize,
			UnwindStartFrac:      cfg.Intent.UnwindStartFrac,
			UnwindAggressiveFrac: cfg.Intent.UnwindAggressiveFrac,
			UnwindMinEdgeTicks:   cfg.Intent.UnwindMinEdgeTicks,
			UnwindCooldownMs:     cfg.Intent.UnwindCooldownMs,
			TickSize:             cfg.Intent.TickSize,
		},
	})
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
