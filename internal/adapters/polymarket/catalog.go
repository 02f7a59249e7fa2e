package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// CatalogConfig configura el refresco del catálogo de mercados up/down.
type CatalogConfig struct {
	Asset           string // ticker del slug, ej. "btc"
	WindowsAhead    int
	RefreshInterval time.Duration
}

// DefaultCatalogConfig devuelve la configuración por defecto.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Asset:           "btc",
		WindowsAhead:    4,
		RefreshInterval: time.Minute,
	}
}

// Catalog implementa ports.MarketCatalog contra Gamma. Mantiene el conjunto
// de ventanas activas y avisa a los listeners en cada refresh para que los
// feeds se resuscriban a los asset ids vigentes.
type Catalog struct {
	cfg    CatalogConfig
	client *Client

	mu        sync.RWMutex
	markets   map[string]domain.MarketDescriptor // conditionID → descriptor
	listeners []func([]domain.MarketDescriptor)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCatalog crea un Catalog sin arrancar.
func NewCatalog(cfg CatalogConfig, client *Client) *Catalog {
	if cfg.Asset == "" {
		cfg.Asset = "btc"
	}
	if cfg.WindowsAhead <= 0 {
		cfg.WindowsAhead = 4
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	return &Catalog{
		cfg:     cfg,
		client:  client,
		markets: make(map[string]domain.MarketDescriptor),
	}
}

// Start hace el primer refresh (error si falla: sin mercados no hay a qué
// suscribirse) y arranca el refresco periódico.
func (c *Catalog) Start(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("polymarket.Catalog: initial refresh: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

// Stop detiene el refresco periódico.
func (c *Catalog) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Catalog) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("market catalog refresh failed", "err", err)
			}
		}
	}
}

// refresh consulta Gamma por los slugs de las ventanas vigentes y reemplaza
// el estado completo: las ventanas expiradas caen solas del set.
func (c *Catalog) refresh(ctx context.Context) error {
	slugs := buildSlugs(c.cfg.Asset, time.Now().UnixMilli(), c.cfg.WindowsAhead)

	next := make(map[string]domain.MarketDescriptor, len(slugs))
	for _, slug := range slugs {
		url := fmt.Sprintf("%s/markets?slug=%s", c.client.base, slug)

		var resp gammaMarketsResponse
		if err := c.client.get(ctx, url, &resp); err != nil {
			slog.Debug("gamma slug lookup failed, skipping", "slug", slug, "err", err)
			continue
		}
		if len(resp) == 0 {
			continue
		}
		if desc, ok := mapGammaMarket(resp[0]); ok {
			next[desc.ConditionID] = desc
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("no active markets for asset %q", c.cfg.Asset)
	}

	c.mu.Lock()
	c.markets = next
	listeners := c.listeners
	c.mu.Unlock()

	snapshot := c.ActiveMarkets()
	for _, l := range listeners {
		l(snapshot)
	}
	slog.Info("market catalog refreshed", "asset", c.cfg.Asset, "markets", len(snapshot))
	return nil
}

// ActiveMarkets devuelve un snapshot de los mercados activos.
func (c *Catalog) ActiveMarkets() []domain.MarketDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.MarketDescriptor, 0, len(c.markets))
	for _, m := range c.markets {
		out = append(out, m)
	}
	return out
}

// ActiveAssetIDs devuelve los asset ids (UP y DOWN) de los mercados activos.
func (c *Catalog) ActiveAssetIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.markets)*2)
	for _, m := range c.markets {
		ids = append(ids, m.AssetIDs()...)
	}
	return ids
}

// OnUpdate registra un listener que se invoca tras cada refresh.
func (c *Catalog) OnUpdate(fn func(markets []domain.MarketDescriptor)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
