package domain

// EventKind identifica la variante de un UnifiedEvent.
type EventKind string

const (
	// KindSpot es un tick de precio spot (Coinbase).
	KindSpot EventKind = "spot"
	// KindPmBook es una actualización de best book de Polymarket.
	KindPmBook EventKind = "pmBook"
)

// UnifiedEvent es el evento normalizado que entra al pipeline.
// Los feed adapters decodifican los payloads crudos en esta forma estricta;
// nada malformado llega al consumer.
//
// ExchangeTs es la clave de ordenamiento canónica (event-time en el venue).
// IngestTs es solo observabilidad (latencia), nunca afecta decisiones.
type UnifiedEvent struct {
	Kind EventKind

	// Campos de spot.
	ProductID  string
	BaseAsset  string
	QuoteAsset string

	// Campos de pmBook.
	AssetID     string
	ConditionID string
	BestBid     *float64
	BestAsk     *float64

	// Mid es el midpoint del spot o del book según la variante.
	Mid *float64

	ExchangeTs int64 // epoch ms
	IngestTs   int64 // epoch ms
}

// Key devuelve el identificador del instrumento según la variante.
func (e UnifiedEvent) Key() string {
	if e.Kind == KindSpot {
		return e.ProductID
	}
	return e.AssetID
}

// HasBothSides devuelve true si el evento trae best bid y best ask.
func (e UnifiedEvent) HasBothSides() bool {
	return e.BestBid != nil && e.BestAsk != nil
}

// ReplayEvent envuelve un UnifiedEvent con su ordinal de llegada.
// El ordinal estabiliza el orden entre eventos con mismo ExchangeTs y mismo
// kind cuando el histórico se carga en chunks.
type ReplayEvent struct {
	UnifiedEvent

	// ArrivalOrdinal < 0 significa "sin asignar"; el harness lo asigna
	// según el orden de ingestión original.
	ArrivalOrdinal int64
}

// NewReplayEvent crea un ReplayEvent sin ordinal asignado.
func NewReplayEvent(ev UnifiedEvent) ReplayEvent {
	return ReplayEvent{UnifiedEvent: ev, ArrivalOrdinal: -1}
}
