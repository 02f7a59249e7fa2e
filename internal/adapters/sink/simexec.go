package sink

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
	"github.com/alejandrodnm/polyflow/internal/ports"
	"github.com/alejandrodnm/polyflow/internal/position"
)

// SimParams controla la simulación de ejecución del backtest.
type SimParams struct {
	LatencyMinMs int64
	LatencyMaxMs int64
	FailProb     float64
	FeeBps       float64
	Seed         int64
}

// DefaultSimParams devuelve los parámetros de simulación por defecto.
func DefaultSimParams() SimParams {
	return SimParams{
		LatencyMinMs: 200,
		LatencyMaxMs: 1_200,
		FailProb:     0.01,
		FeeBps:       0,
		Seed:         1,
	}
}

type simOrder struct {
	intent domain.OrderIntent
}

type settlement struct {
	intent    domain.OrderIntent
	dueAt     int64
	latencyMs int64
	failed    bool
}

// SimExec cruza los intents contra el book corriente, aplica latencia y
// probabilidad de fallo configurables, y devuelve los fills/fails al position
// manager, el único feedback de ejecución que existe en backtest.
//
// El RNG va sembrado: misma semilla y mismo stream de eventos → mismos fills.
type SimExec struct {
	runID       string
	params      SimParams
	manager     *position.Manager
	storage     ports.SignalStorage
	rng         *rand.Rand
	open        []simOrder
	settlements []settlement
	trades      []domain.SimulatedTrade
	marks       map[string]float64
	lastEventTs int64
}

// NewSimExec crea el sink de ejecución simulada. manager debe ser el mismo
// position manager del Runner; storage puede ser nil.
func NewSimExec(runID string, params SimParams, manager *position.Manager, storage ports.SignalStorage) *SimExec {
	return &SimExec{
		runID:   runID,
		params:  params,
		manager: manager,
		storage: storage,
		rng:     rand.New(rand.NewSource(params.Seed)),
		marks:   make(map[string]float64),
	}
}

// Handle liquida settlements vencidos, registra el intent del output si lo
// hay y cruza las órdenes abiertas contra el book del evento.
func (s *SimExec) Handle(out pipeline.Output, ctx pipeline.Context) error {
	now := out.Event.ExchangeTs
	s.lastEventTs = now
	if err := s.settleDue(now); err != nil {
		return err
	}

	if out.Event.Kind == domain.KindPmBook && out.Event.Mid != nil {
		s.marks[out.Event.AssetID] = *out.Event.Mid
	}

	if out.Intent != nil {
		s.open = append(s.open, simOrder{intent: *out.Intent})
	}

	if out.Event.Kind == domain.KindPmBook && out.Event.HasBothSides() {
		s.cross(out.Event.AssetID, *out.Event.BestBid, *out.Event.BestAsk, now)
	}
	return nil
}

// cross ejecuta las órdenes abiertas cuyo precio cruza el book actual.
func (s *SimExec) cross(assetID string, bestBid, bestAsk float64, now int64) {
	remaining := s.open[:0]
	for _, ord := range s.open {
		if ord.intent.AssetID != assetID || !s.crosses(ord.intent, bestBid, bestAsk) {
			remaining = append(remaining, ord)
			continue
		}

		latency := s.params.LatencyMinMs
		if span := s.params.LatencyMaxMs - s.params.LatencyMinMs; span > 0 {
			latency += s.rng.Int63n(span + 1)
		}
		failed := s.rng.Float64() < s.params.FailProb

		s.settlements = append(s.settlements, settlement{
			intent:    ord.intent,
			dueAt:     now + latency,
			latencyMs: latency,
			failed:    failed,
		})
		s.trades = append(s.trades, domain.SimulatedTrade{
			IntentID:    ord.intent.IntentID,
			ConditionID: ord.intent.ConditionID,
			AssetID:     ord.intent.AssetID,
			Side:        ord.intent.Side,
			Price:       ord.intent.Price * (1 - s.params.FeeBps/10_000),
			Size:        ord.intent.Size,
			Timestamp:   now,
			LatencyMs:   latency,
			Failed:      failed,
		})
	}
	s.open = remaining
}

func (s *SimExec) crosses(intent domain.OrderIntent, bestBid, bestAsk float64) bool {
	if intent.Side == domain.SideBuy {
		return bestAsk <= intent.Price
	}
	return bestBid >= intent.Price
}

// settleDue aplica al manager los settlements con dueAt vencido.
// Un fallo de invariante de cap aborta el run.
func (s *SimExec) settleDue(now int64) error {
	remaining := s.settlements[:0]
	for _, st := range s.settlements {
		if st.dueAt > now {
			remaining = append(remaining, st)
			continue
		}
		if err := s.apply(st); err != nil {
			return fmt.Errorf("sink.SimExec: settle %s: %w", st.intent.IntentID, err)
		}
	}
	s.settlements = remaining
	return nil
}

func (s *SimExec) apply(st settlement) error {
	if st.failed {
		return s.manager.ApplyFail(domain.FailEvent{
			IntentID:    st.intent.IntentID,
			ConditionID: st.intent.ConditionID,
			AssetID:     st.intent.AssetID,
			Side:        st.intent.Side,
			Size:        st.intent.Size,
			Timestamp:   st.dueAt,
			Reason:      "simulated failure",
		})
	}
	return s.manager.ApplyFill(domain.FillEvent{
		IntentID:    st.intent.IntentID,
		ConditionID: st.intent.ConditionID,
		AssetID:     st.intent.AssetID,
		Side:        st.intent.Side,
		FilledSize:  st.intent.Size,
		Price:       st.intent.Price,
		Timestamp:   st.dueAt,
	})
}

// Finish liquida todo lo pendiente pasado el último evento del run.
func (s *SimExec) Finish() error {
	return s.settleDue(s.lastEventTs + s.params.LatencyMaxMs + 1)
}

// Result resume el run simulado.
type Result struct {
	Trades    int
	Cash      float64
	MTM       float64
	PnL       float64
	Inventory map[string]float64
}

// Results computa cash de los fills no fallidos y mark-to-market del
// inventario final con el último mid conocido por asset.
func (s *SimExec) Results() Result {
	var cash float64
	for _, t := range s.trades {
		if t.Failed {
			continue
		}
		if t.Side == domain.SideBuy {
			cash -= t.Price * t.Size
		} else {
			cash += t.Price * t.Size
		}
	}

	inventory := s.manager.Inventories()
	var mtm float64
	for k, inv := range inventory {
		assetID := k
		if i := strings.LastIndex(k, "|"); i >= 0 {
			assetID = k[i+1:]
		}
		mtm += inv * s.marks[assetID]
	}

	return Result{
		Trades:    len(s.trades),
		Cash:      cash,
		MTM:       mtm,
		PnL:       cash + mtm,
		Inventory: inventory,
	}
}

// Trades devuelve los fills simulados acumulados.
func (s *SimExec) Trades() []domain.SimulatedTrade {
	return s.trades
}

// FlushToDB persiste los trades simulados; un fallo se loguea y no bloquea.
func (s *SimExec) FlushToDB(ctx context.Context) {
	if s.storage == nil || len(s.trades) == 0 {
		return
	}
	if err := s.storage.SaveTrades(ctx, s.runID, s.trades); err != nil {
		slog.Error("failed to flush simulated trades", "err", err, "run_id", s.runID, "count", len(s.trades))
	}
}
