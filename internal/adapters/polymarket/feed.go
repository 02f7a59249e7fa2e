package polymarket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/gorilla/websocket"
)

// DefaultFeedURL es el endpoint público de datos en tiempo real.
const DefaultFeedURL = "wss://ws-live-data.polymarket.com"

// FeedConfig configura el feed de price changes.
type FeedConfig struct {
	URL string
	// StaleMs: si el book de un asset lleva más de esto sin actualizarse,
	// el mid se omite (el evento sale igual, sin mid).
	StaleMs int64
}

// bestBook es el best book acumulado de un asset. Un price change puede
// traer solo un lado; el otro se conserva del estado anterior.
type bestBook struct {
	bid       *float64
	ask       *float64
	updatedAt int64
}

func (b *bestBook) merge(change PriceChange, ts int64) {
	if change.BestBid != nil {
		b.bid = change.BestBid
	}
	if change.BestAsk != nil {
		b.ask = change.BestAsk
	}
	b.updatedAt = ts
}

func (b *bestBook) mid(ts, staleMs int64) *float64 {
	if b.bid == nil || b.ask == nil {
		return nil
	}
	if staleMs > 0 && ts-b.updatedAt > staleMs {
		return nil
	}
	m := (*b.bid + *b.ask) / 2
	return &m
}

// Feed consume el canal clob_market/price_changes y emite un evento pmBook
// por cada asset actualizado. UpdateAssets resuscribe al vuelo cuando el
// catálogo rota de ventana.
type Feed struct {
	cfg    FeedConfig
	submit func(domain.UnifiedEvent)

	mu       sync.Mutex
	assets   []string
	assetSet map[string]struct{}
	conn     *websocket.Conn
	books    map[string]*bestBook

	cancel context.CancelFunc
	done   chan struct{}
}

// StartFeed conecta, se suscribe a los assets dados y arranca el read loop.
func StartFeed(ctx context.Context, cfg FeedConfig, assets []string, submit func(domain.UnifiedEvent)) *Feed {
	if cfg.URL == "" {
		cfg.URL = DefaultFeedURL
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		cfg:    cfg,
		submit: submit,
		books:  make(map[string]*bestBook),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	f.setAssets(assets)
	go f.run(ctx)
	return f
}

// Stop cierra la conexión y espera a que el read loop termine.
func (f *Feed) Stop() {
	f.cancel()
	<-f.done
}

// UpdateAssets reemplaza el set de assets y resuscribe en la conexión viva.
// Si no hay conexión, el siguiente reconnect usa el set nuevo.
func (f *Feed) UpdateAssets(assets []string) {
	f.setAssets(assets)

	f.mu.Lock()
	conn := f.conn
	msg := f.subscribeMsg()
	f.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(msg); err != nil {
		slog.Warn("polymarket feed resubscribe failed", "err", err)
	}
}

func (f *Feed) setAssets(assets []string) {
	set := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		set[a] = struct{}{}
	}
	f.mu.Lock()
	f.assets = assets
	f.assetSet = set
	f.mu.Unlock()
}

func (f *Feed) subscribeMsg() subscribeMsg {
	return subscribeMsg{
		Action: "subscribe",
		Subscriptions: []subscription{{
			Topic:   "clob_market",
			Type:    "price_changes",
			Filters: f.assets,
		}},
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.session(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("polymarket feed disconnected, retrying", "err", err, "backoff", backoff)
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

func (f *Feed) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	msg := f.subscribeMsg()
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
	}()

	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	slog.Info("polymarket feed subscribed", "assets", len(msg.Subscriptions[0].Filters))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ingestTs := time.Now().UnixMilli()
		ev, ok := ParsePriceChanges(raw, ingestTs)
		if !ok {
			continue
		}
		f.handle(ev, ingestTs)
	}
}

// handle mergea cada cambio en el best book del asset y emite el evento.
func (f *Feed) handle(ev PriceChangesEvent, ingestTs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, change := range ev.Changes {
		if len(f.assetSet) > 0 {
			if _, ok := f.assetSet[change.AssetID]; !ok {
				continue
			}
		}

		book, ok := f.books[change.AssetID]
		if !ok {
			book = &bestBook{}
			f.books[change.AssetID] = book
		}
		book.merge(change, ev.ExchangeTs)

		f.submit(domain.UnifiedEvent{
			Kind:        domain.KindPmBook,
			AssetID:     change.AssetID,
			ConditionID: ev.ConditionID,
			BestBid:     book.bid,
			BestAsk:     book.ask,
			Mid:         book.mid(ev.ExchangeTs, f.cfg.StaleMs),
			ExchangeTs:  ev.ExchangeTs,
			IngestTs:    ingestTs,
		})
	}
}
