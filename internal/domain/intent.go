package domain

// Side es el lado de una orden.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign devuelve +1 para BUY y -1 para SELL.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// IntentReason clasifica por qué se emitió un intent.
type IntentReason string

const (
	// ReasonDeltaSPD: entrada por dislocación modelo vs mercado.
	ReasonDeltaSPD IntentReason = "DELTA_SPD"
	// ReasonRebalance: unwind para reducir exposición de inventario.
	ReasonRebalance IntentReason = "MM_REBALANCE"
)

// OrderIntent es una intención de orden emitida por el position manager.
// IntentID es determinista (hash del key compuesto), lo que permite dedupe
// e idempotencia entre ejecuciones.
type OrderIntent struct {
	IntentID    string
	ConditionID string
	AssetID     string
	Side        Side
	Price       float64
	Size        float64
	Reason      IntentReason
	CreatedTs   int64 // epoch ms
}

// FillEvent es el feedback de ejecución (real o simulada) de un intent.
type FillEvent struct {
	IntentID    string
	ConditionID string
	AssetID     string
	Side        Side
	FilledSize  float64
	Price       float64
	Timestamp   int64
	Partial     bool
}

// FailEvent indica que un intent no se ejecutó; revierte solo el pending.
type FailEvent struct {
	IntentID    string
	ConditionID string
	AssetID     string
	Side        Side
	Size        float64
	Timestamp   int64
	Reason      string
}
