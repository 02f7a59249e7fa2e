package domain

// SignalRecord es la fila que los sinks entregan a la persistencia por cada
// señal de dislocación observada.
type SignalRecord struct {
	ConditionID       string
	AssetID           string
	ExchangeTs        int64
	IngestTs          int64
	DtMs              *int64
	PmMid             float64
	ExpectedProb      float64
	DeltaSPD          float64
	State             string
	OrderingCollision bool
}

// SimulatedTrade es un fill simulado producido por el execution sink en replay.
type SimulatedTrade struct {
	IntentID    string
	ConditionID string
	AssetID     string
	Side        Side
	Price       float64
	Size        float64
	Timestamp   int64
	LatencyMs   int64
	Failed      bool
}

// MarketDescriptor describe un mercado activo del catálogo (par up/down).
type MarketDescriptor struct {
	ConditionID  string
	AssetIDUp    string
	AssetIDDown  string
	TickSize     float64
	MinOrderSize float64
	Slug         string
}

// AssetIDs devuelve los dos asset ids del mercado.
func (m MarketDescriptor) AssetIDs() []string {
	return []string{m.AssetIDUp, m.AssetIDDown}
}
