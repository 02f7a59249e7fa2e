// Package coinbase implementa el feed de ticker spot vía websocket.
package coinbase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/gorilla/websocket"
)

// DefaultURL es el endpoint público del feed de exchange de Coinbase.
const DefaultURL = "wss://ws-feed.exchange.coinbase.com"

// Config configura el feed de ticker.
type Config struct {
	URL        string
	ProductIDs []string
	// MaxStaleMs descarta ticks cuyo timestamp de exchange sea más viejo
	// que esto respecto a la ingestión. 0 desactiva el filtro.
	MaxStaleMs int64
}

// Feed mantiene la conexión al ticker y reintenta con backoff si se cae.
type Feed struct {
	cfg    Config
	submit func(domain.UnifiedEvent)
	cancel context.CancelFunc
	done   chan struct{}
}

// Start abre la conexión, se suscribe al canal ticker y arranca el read loop.
func Start(ctx context.Context, cfg Config, submit func(domain.UnifiedEvent)) *Feed {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		cfg:    cfg,
		submit: submit,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

// Stop cierra la conexión y espera a que el read loop termine.
func (f *Feed) Stop() {
	f.cancel()
	<-f.done
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.session(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("coinbase feed disconnected, retrying", "err", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

// session abre una conexión, se suscribe y lee hasta error o cancelación.
func (f *Feed) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"type":        "subscribe",
		"product_ids": f.cfg.ProductIDs,
		"channels":    []string{"ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	slog.Info("coinbase feed subscribed", "products", f.cfg.ProductIDs)

	// Cierra la conexión al cancelar para desbloquear ReadMessage.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok := ParseTicker(raw, time.Now().UnixMilli())
		if !ok {
			continue
		}
		if f.cfg.MaxStaleMs > 0 && ev.IngestTs-ev.ExchangeTs > f.cfg.MaxStaleMs {
			slog.Debug("dropping stale spot tick", "product", ev.ProductID, "age_ms", ev.IngestTs-ev.ExchangeTs)
			continue
		}
		f.submit(ev)
	}
}

// tickerMsg es el payload crudo del canal ticker.
type tickerMsg struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Time      string `json:"time"`
}

// ParseTicker decodifica un mensaje de ticker a evento normalizado.
// Devuelve false para mensajes de otro tipo o malformados: nada inválido
// pasa al consumer. El mid es (bid+ask)/2 si hay ambos lados, si no el last.
func ParseTicker(raw []byte, ingestTs int64) (domain.UnifiedEvent, bool) {
	var msg tickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "ticker" {
		return domain.UnifiedEvent{}, false
	}

	bid, bidOk := parsePrice(msg.BestBid)
	ask, askOk := parsePrice(msg.BestAsk)
	last, lastOk := parsePrice(msg.Price)

	var mid float64
	switch {
	case bidOk && askOk:
		mid = (bid + ask) / 2
	case lastOk:
		mid = last
	default:
		return domain.UnifiedEvent{}, false
	}

	exchangeTs := ingestTs
	if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
		exchangeTs = t.UnixMilli()
	}

	base, quote := splitProduct(msg.ProductID)
	return domain.UnifiedEvent{
		Kind:       domain.KindSpot,
		ProductID:  msg.ProductID,
		BaseAsset:  base,
		QuoteAsset: quote,
		Mid:        &mid,
		ExchangeTs: exchangeTs,
		IngestTs:   ingestTs,
	}, true
}

func parsePrice(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func splitProduct(productID string) (base, quote string) {
	parts := strings.SplitN(productID, "-", 2)
	if len(parts) != 2 {
		return productID, ""
	}
	return parts[0], parts[1]
}
