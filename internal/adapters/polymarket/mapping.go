package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

const windowSeconds = 15 * 60

// ceilToInterval redondea epoch seconds hacia arriba al múltiplo del intervalo.
func ceilToInterval(epochSeconds, intervalSeconds int64) int64 {
	return ((epochSeconds + intervalSeconds - 1) / intervalSeconds) * intervalSeconds
}

// buildSlugs genera los slugs de las ventanas up/down de 15m que terminan
// desde ahora hacia adelante: {asset}-updown-15m-{endTs}.
func buildSlugs(asset string, nowMs int64, windowsAhead int) []string {
	currentEnd := ceilToInterval(nowMs/1000, windowSeconds)
	slugs := make([]string, 0, windowsAhead)
	for i := 0; i < windowsAhead; i++ {
		endTs := currentEnd + int64(i)*windowSeconds
		slugs = append(slugs, fmt.Sprintf("%s-updown-15m-%d", asset, endTs))
	}
	return slugs
}

// mapGammaMarket convierte un gammaMarket a descriptor de dominio.
// Devuelve false si faltan condition id o los dos token ids (UP y DOWN).
func mapGammaMarket(gm gammaMarket) (domain.MarketDescriptor, bool) {
	if gm.ConditionID == "" || gm.Closed {
		return domain.MarketDescriptor{}, false
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil || len(tokenIDs) < 2 {
		return domain.MarketDescriptor{}, false
	}

	tick := 0.01
	if v, err := gm.TickSize.Float64(); err == nil && v > 0 {
		tick = v
	}
	minSize := 1.0
	if v, err := gm.MinOrderSize.Float64(); err == nil && v > 0 {
		minSize = v
	}

	return domain.MarketDescriptor{
		ConditionID:  gm.ConditionID,
		AssetIDUp:    tokenIDs[0],
		AssetIDDown:  tokenIDs[1],
		TickSize:     tick,
		MinOrderSize: minSize,
		Slug:         gm.Slug,
	}, true
}

// PriceChange es un cambio de best book normalizado (precios ya parseados;
// nil donde el update no traía ese lado).
type PriceChange struct {
	AssetID string
	BestBid *float64
	BestAsk *float64
}

// PriceChangesEvent es un mensaje de price_changes normalizado.
type PriceChangesEvent struct {
	ConditionID string
	ExchangeTs  int64
	Changes     []PriceChange
}

// ParsePriceChanges decodifica un mensaje del websocket. Devuelve false para
// mensajes de otro topic/type o malformados. Si el timestamp del payload no
// es parseable usa ingestTs.
func ParsePriceChanges(raw []byte, ingestTs int64) (PriceChangesEvent, bool) {
	var msg priceChangesMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PriceChangesEvent{}, false
	}
	if msg.Topic != "clob_market" || msg.Type != "price_changes" || msg.Payload.M == "" {
		return PriceChangesEvent{}, false
	}

	ts := ingestTs
	if v, err := strconv.ParseInt(msg.Payload.T, 10, 64); err == nil && v > 0 {
		ts = v
	}

	ev := PriceChangesEvent{ConditionID: msg.Payload.M, ExchangeTs: ts}
	for _, pc := range msg.Payload.PC {
		if pc.A == "" {
			continue
		}
		ev.Changes = append(ev.Changes, PriceChange{
			AssetID: pc.A,
			BestBid: parseSide(pc.BB),
			BestAsk: parseSide(pc.BA),
		})
	}
	return ev, true
}

func parseSide(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
