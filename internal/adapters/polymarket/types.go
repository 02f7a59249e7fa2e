package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete;
// la conversión a domain entities vive en mapping.go.

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket es la metadata de un mercado up/down. Gamma devuelve
// clobTokenIds como string con un array JSON dentro, y varios numéricos
// como strings; usamos json.Number donde aplica.
type gammaMarket struct {
	ConditionID  string      `json:"conditionId"`
	Slug         string      `json:"slug"`
	ClobTokenIDs string      `json:"clobTokenIds"`
	TickSize     json.Number `json:"orderPriceMinTickSize"`
	MinOrderSize json.Number `json:"orderMinSize"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
}

// --- Websocket de price changes ---

// priceChangesMsg es el sobre del canal clob_market/price_changes.
type priceChangesMsg struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload struct {
		M  string           `json:"m"` // condition id
		PC []priceChangeRaw `json:"pc"`
		T  string           `json:"t"` // epoch ms como string
	} `json:"payload"`
}

// priceChangeRaw es un cambio individual del best book de un asset.
// Los precios llegan como strings; bb/ba pueden faltar (update parcial).
type priceChangeRaw struct {
	A  string `json:"a"`  // asset id
	P  string `json:"p"`  // trade price
	S  string `json:"s"`  // BUY | SELL
	Si string `json:"si"` // size
	BA string `json:"ba"` // best ask
	BB string `json:"bb"` // best bid
	H  string `json:"h"`  // book hash
}

// subscribeMsg es el mensaje de (re)suscripción del websocket.
type subscribeMsg struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

type subscription struct {
	Topic   string   `json:"topic"`
	Type    string   `json:"type"`
	Filters []string `json:"filters,omitempty"`
}
