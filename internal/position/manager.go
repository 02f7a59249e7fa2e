package position

import (
	"errors"
	"fmt"
	"math"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/alejandrodnm/polyflow/internal/health"
	"github.com/google/uuid"
)

// ErrCapInvariant indica que |inventory| o |pending| superó el cap.
// Es fatal: una violación es un defecto de lógica, nunca se corrige en
// silencio: recortar exposición financiera a escondidas es inaceptable.
var ErrCapInvariant = errors.New("position: inventory/pending cap invariant violated")

// eps absorbe ruido de float en comparaciones de tamaño/exposición.
const eps = 1e-9

// Params son los parámetros del intent manager.
type Params struct {
	DeltaThreshold       float64
	InventoryCap         float64
	OrderSize            float64
	UnwindStartFrac      float64
	UnwindAggressiveFrac float64
	UnwindMinEdgeTicks   int
	UnwindCooldownMs     int64
	TickSize             float64
}

// DefaultParams devuelve parámetros conservadores.
func DefaultParams() Params {
	return Params{
		DeltaThreshold:       0.02,
		InventoryCap:         100,
		OrderSize:            5,
		UnwindStartFrac:      0.5,
		UnwindAggressiveFrac: 0.8,
		UnwindMinEdgeTicks:   1,
		UnwindCooldownMs:     5_000,
		TickSize:             0.01,
	}
}

// Position es el estado por instrumento: inventario liquidado y exposición
// pendiente (intents en vuelo), más las claves de dedupe.
type Position struct {
	Inventory          float64
	Pending            float64
	LastIntentID       string
	LastUnwindIntentID string
	LastUnwindTs       int64
}

// Exposure devuelve inventory + pending.
func (p Position) Exposure() float64 {
	return p.Inventory + p.Pending
}

// Manager decide si emitir intents y mantiene las posiciones.
// Keyed por "conditionId|assetId"; se crea lazy en el primer evento.
// Single-writer: solo el unified consumer y los callbacks de fill/fail lo mutan.
type Manager struct {
	params    Params
	positions map[string]*Position
}

// NewManager crea un Manager vacío.
func NewManager(params Params) *Manager {
	return &Manager{params: params, positions: make(map[string]*Position)}
}

func key(conditionID, assetID string) string {
	return conditionID + "|" + assetID
}

func (m *Manager) position(conditionID, assetID string) *Position {
	k := key(conditionID, assetID)
	p, ok := m.positions[k]
	if !ok {
		p = &Position{}
		m.positions[k] = p
	}
	return p
}

// Snapshot devuelve una copia de la posición (para reporting y tests).
func (m *Manager) Snapshot(conditionID, assetID string) Position {
	if p, ok := m.positions[key(conditionID, assetID)]; ok {
		return *p
	}
	return Position{}
}

// Inventories devuelve inventory por key (para mark-to-market al final de un run).
func (m *Manager) Inventories() map[string]float64 {
	out := make(map[string]float64, len(m.positions))
	for k, p := range m.positions {
		out[k] = p.Inventory
	}
	return out
}

// IntentID deriva el id determinista de un intent a partir del key compuesto.
// Mismo (condition, asset, side, price, size) → mismo id, en cualquier run.
func IntentID(conditionID, assetID string, side domain.Side, price, size float64) string {
	name := fmt.Sprintf("%s|%s|%s|%.6f|%.6f", conditionID, assetID, side, price, size)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Evaluate corre la lógica de entrada y, si no disparó, la de unwind.
// Solo se invoca con ambos lados del book presentes; devuelve nil si el
// estado no es RUNNING o si ninguna regla emite intent.
func (m *Manager) Evaluate(state health.State, sig *features.Signal, conditionID, assetID string, bestBid, bestAsk float64, now int64) (*domain.OrderIntent, error) {
	if state != health.StateRunning {
		return nil, nil
	}

	if sig != nil {
		intent, err := m.entryIntent(sig, conditionID, assetID, bestBid, bestAsk, now)
		if err != nil || intent != nil {
			return intent, err
		}
	}
	return m.unwindIntent(conditionID, assetID, bestBid, bestAsk, now)
}

// entryIntent emite una orden a favor de la dislocación si supera el umbral
// y no rompe el cap de inventario.
func (m *Manager) entryIntent(sig *features.Signal, conditionID, assetID string, bestBid, bestAsk float64, now int64) (*domain.OrderIntent, error) {
	if math.Abs(sig.DeltaSPD) < m.params.DeltaThreshold {
		return nil, nil
	}

	// Entrada marketable: BUY levanta el ask, SELL pega al bid.
	side := domain.SideSell
	price := bestBid
	if sig.DeltaSPD > 0 {
		side = domain.SideBuy
		price = bestAsk
	}

	pos := m.position(conditionID, assetID)
	size := m.params.OrderSize
	projected := pos.Exposure() + side.Sign()*size
	if math.Abs(projected) > m.params.InventoryCap+eps {
		return nil, nil
	}

	id := IntentID(conditionID, assetID, side, price, size)
	if id == pos.LastIntentID && math.Abs(pos.Pending) > eps {
		// Intent idéntico todavía en vuelo: no-op.
		return nil, nil
	}

	pos.Pending += side.Sign() * size
	pos.LastIntentID = id
	if err := m.assertCaps(pos, conditionID, assetID); err != nil {
		return nil, err
	}

	return &domain.OrderIntent{
		IntentID:    id,
		ConditionID: conditionID,
		AssetID:     assetID,
		Side:        side,
		Price:       price,
		Size:        size,
		Reason:      domain.ReasonDeltaSPD,
		CreatedTs:   now,
	}, nil
}

// unwindIntent reduce la exposición hacia cero cuando supera startFrac del
// cap. El tamaño se duplica en o por encima de aggressiveFrac (umbral
// inclusivo, >=) y se recorta para no cruzar por cero.
func (m *Manager) unwindIntent(conditionID, assetID string, bestBid, bestAsk float64, now int64) (*domain.OrderIntent, error) {
	pos := m.position(conditionID, assetID)
	exposure := pos.Exposure()
	absExp := math.Abs(exposure)

	if absExp < m.params.InventoryCap*m.params.UnwindStartFrac {
		return nil, nil
	}
	if pos.LastUnwindTs > 0 && now-pos.LastUnwindTs < m.params.UnwindCooldownMs {
		return nil, nil
	}

	size := m.params.OrderSize
	if absExp >= m.params.InventoryCap*m.params.UnwindAggressiveFrac {
		size *= 2
	}
	if size > absExp {
		size = absExp
	}

	// El unwind va contra el signo de la exposición: largo → SELL, corto → BUY.
	side := domain.SideSell
	if exposure < 0 {
		side = domain.SideBuy
	}
	price := m.unwindPrice(side, bestBid, bestAsk)

	id := IntentID(conditionID, assetID, side, price, size)
	if id == pos.LastUnwindIntentID && math.Abs(pos.Pending) > eps {
		return nil, nil
	}

	pos.Pending += side.Sign() * size
	pos.LastUnwindIntentID = id
	pos.LastUnwindTs = now
	if err := m.assertCaps(pos, conditionID, assetID); err != nil {
		return nil, err
	}

	return &domain.OrderIntent{
		IntentID:    id,
		ConditionID: conditionID,
		AssetID:     assetID,
		Side:        side,
		Price:       price,
		Size:        size,
		Reason:      domain.ReasonRebalance,
		CreatedTs:   now,
	}, nil
}

// unwindPrice cotiza con un edge mínimo contra el touch relevante, redondeado
// al tick: SELL por encima del bid (hacia arriba), BUY por debajo del ask
// (hacia abajo).
func (m *Manager) unwindPrice(side domain.Side, bestBid, bestAsk float64) float64 {
	tick := m.params.TickSize
	edge := float64(m.params.UnwindMinEdgeTicks) * tick
	if side == domain.SideSell {
		return roundUpTick(bestBid+edge, tick)
	}
	return roundDownTick(bestAsk-edge, tick)
}

func roundUpTick(p, tick float64) float64 {
	if tick <= 0 {
		return p
	}
	return math.Ceil(p/tick-eps) * tick
}

func roundDownTick(p, tick float64) float64 {
	if tick <= 0 {
		return p
	}
	return math.Floor(p/tick+eps) * tick
}

// ApplyFill liquida tamaño firmado de pending a inventory.
func (m *Manager) ApplyFill(fill domain.FillEvent) error {
	pos := m.position(fill.ConditionID, fill.AssetID)
	signed := fill.Side.Sign() * fill.FilledSize
	pos.Pending -= signed
	pos.Inventory += signed
	m.clearDedupIfFlat(pos)
	return m.assertCaps(pos, fill.ConditionID, fill.AssetID)
}

// ApplyFail revierte solo el pending del intent fallido.
func (m *Manager) ApplyFail(fail domain.FailEvent) error {
	pos := m.position(fail.ConditionID, fail.AssetID)
	pos.Pending -= fail.Side.Sign() * fail.Size
	m.clearDedupIfFlat(pos)
	return m.assertCaps(pos, fail.ConditionID, fail.AssetID)
}

// clearDedupIfFlat limpia las claves de dedupe cuando pending vuelve a ~0,
// habilitando el siguiente intent idéntico.
func (m *Manager) clearDedupIfFlat(pos *Position) {
	if math.Abs(pos.Pending) <= eps {
		pos.Pending = 0
		pos.LastIntentID = ""
		pos.LastUnwindIntentID = ""
	}
}

func (m *Manager) assertCaps(pos *Position, conditionID, assetID string) error {
	limit := m.params.InventoryCap
	if math.Abs(pos.Inventory) > limit+eps || math.Abs(pos.Pending) > limit+eps {
		return fmt.Errorf("position %s: inventory=%.4f pending=%.4f cap=%.4f: %w",
			key(conditionID, assetID), pos.Inventory, pos.Pending, limit, ErrCapInvariant)
	}
	return nil
}
