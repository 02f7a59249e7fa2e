package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyflow/config"
	"github.com/alejandrodnm/polyflow/internal/adapters/coinbase"
	"github.com/alejandrodnm/polyflow/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyflow/internal/adapters/sink"
	"github.com/alejandrodnm/polyflow/internal/adapters/storage"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
)

// flushInterval es la cadencia del volcado por lotes en modo collect.
const flushInterval = 30 * time.Second

// runLive arranca catálogo y feeds y consume eventos hasta cancelación.
// Con collect=true además captura señales y eventos crudos a la DB para
// replays posteriores.
func runLive(ctx context.Context, cfg *config.Config, runID string, collect bool) error {
	runner := newRunner(cfg)

	mode := pipeline.ModeLive
	var sinks pipeline.MultiSink
	sinks = append(sinks, sink.NewLive())

	var collector *sink.Collect
	if collect {
		mode = pipeline.ModeCollect
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		collector = sink.NewCollect(runID, store, true)
		sinks = append(sinks, collector)
	}

	pctx := pipeline.Context{
		Mode:            mode,
		RunID:           runID,
		FeaturesVersion: cfg.Model.FeaturesVersion,
		BetaVersion:     cfg.Model.BetaVersion,
	}
	dispatcher := pipeline.NewDispatcher(runner, sinks, pctx, 4096)

	catalog := polymarket.NewCatalog(polymarket.CatalogConfig{
		Asset:           cfg.Feeds.CatalogAsset,
		WindowsAhead:    cfg.Feeds.CatalogWindowsAhead,
		RefreshInterval: cfg.CatalogRefresh(),
	}, polymarket.NewClient(cfg.Feeds.GammaBase))
	if err := catalog.Start(ctx); err != nil {
		return err
	}
	defer catalog.Stop()

	pmFeed := polymarket.StartFeed(ctx, polymarket.FeedConfig{
		URL:     cfg.Feeds.PolymarketFeedURL,
		StaleMs: cfg.Feeds.BestBookStaleMs,
	}, catalog.ActiveAssetIDs(), dispatcher.Submit)
	defer pmFeed.Stop()

	// Las ventanas de 15m rotan: en cada refresh el feed se resuscribe a los
	// asset ids vigentes.
	catalog.OnUpdate(func(markets []domain.MarketDescriptor) {
		ids := make([]string, 0, len(markets)*2)
		for _, m := range markets {
			ids = append(ids, m.AssetIDs()...)
		}
		pmFeed.UpdateAssets(ids)
	})

	cbFeed := coinbase.Start(ctx, coinbase.Config{
		URL:        cfg.Feeds.CoinbaseURL,
		ProductIDs: []string{cfg.Feeds.SpotProductID},
		MaxStaleMs: cfg.Feeds.MaxSpotStaleMs,
	}, dispatcher.Submit)
	defer cbFeed.Stop()

	if collector != nil {
		go periodicFlush(ctx, collector)
	}

	err := dispatcher.Run(ctx)

	if collector != nil {
		// Último volcado con contexto fresco: el de arriba ya está cancelado.
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		collector.FlushToDB(flushCtx)
		slog.Info("collect run finished",
			"run_id", runID,
			"events", collector.Handled(),
			"fingerprint", collector.Fingerprint(),
		)
	}
	return err
}

func periodicFlush(ctx context.Context, collector *sink.Collect) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.FlushToDB(ctx)
		}
	}
}
