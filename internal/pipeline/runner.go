package pipeline

// runner.go: el unified event consumer.
//
// Invariante: todo el procesamiento, live y replay, pasa por HandleEvent.
// No hay caminos alternativos de features ni de Δ_SPD. Un evento se procesa
// completo antes del siguiente (single-writer), que es lo que hace posible
// la equivalencia byte a byte entre live y replay.

import (
	"log/slog"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/alejandrodnm/polyflow/internal/health"
	"github.com/alejandrodnm/polyflow/internal/position"
)

// Config agrupa la configuración inyectada del pipeline.
type Config struct {
	Features      features.Config
	Health        health.Config
	Beta          features.BetaParams
	AllowZeroBeta bool
	SpotProductID string
	Intent        position.Params
}

// Runner encapsula todo el estado mutable de un run: engines de features,
// posiciones, caches calientes, estado del trader y diagnósticos.
// Se construye uno por run; no hay estado compartido entre runs.
type Runner struct {
	cfg      Config
	betaZero bool

	engines map[string]*features.Engine
	manager *position.Manager
	spots   map[string]spotState
	books   map[string]bookState

	state         health.State
	lastEventTs   int64
	lastEventKind domain.EventKind
	hasLastEvent  bool
	collisions    int64
}

// NewRunner crea un Runner en estado STARTING.
func NewRunner(cfg Config) *Runner {
	if cfg.SpotProductID == "" {
		cfg.SpotProductID = "BTC-USD"
	}
	return &Runner{
		cfg:      cfg,
		betaZero: cfg.Beta.IsZero(),
		engines:  make(map[string]*features.Engine),
		manager:  position.NewManager(cfg.Intent),
		spots:    make(map[string]spotState),
		books:    make(map[string]bookState),
		state:    health.InitialState,
	}
}

// State devuelve el estado actual del trader.
func (r *Runner) State() health.State {
	return r.state
}

// Manager expone el position manager para el feedback de fills/fails.
func (r *Runner) Manager() *position.Manager {
	return r.manager
}

// Collisions devuelve el contador de colisiones de orden observadas.
func (r *Runner) Collisions() int64 {
	return r.collisions
}

func (r *Runner) engine(instrument string) *features.Engine {
	eng, ok := r.engines[instrument]
	if !ok {
		eng = features.NewEngine(r.cfg.Features)
		r.engines[instrument] = eng
	}
	return eng
}

// HandleEvent procesa un evento normalizado de punta a punta y entrega el
// output al sink. Un error solo puede venir de una violación de invariante
// (cap de posición) o del propio sink, y ambos abortan el run.
func (r *Runner) HandleEvent(ev domain.UnifiedEvent, sink IntentSink, ctx Context) (Output, error) {
	collision := r.detectCollision(ev)

	var out Output
	var err error
	switch ev.Kind {
	case domain.KindSpot:
		out = r.handleSpot(ev)
	case domain.KindPmBook:
		out, err = r.handlePmBook(ev)
		if err != nil {
			return Output{}, err
		}
	default:
		// Kind desconocido: el adapter debió descartarlo como DataError.
		slog.Warn("dropping event with unknown kind", "kind", ev.Kind)
		out = Output{Event: ev, State: r.state}
	}

	out.OrderingCollision = collision
	if sink != nil {
		ctx.ConditionID = ev.ConditionID
		ctx.AssetID = ev.AssetID
		if err := sink.Handle(out, ctx); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

// handleSpot refresca cache y features. Los ticks de spot no emiten intents:
// solo actualizan features y salud.
func (r *Runner) handleSpot(ev domain.UnifiedEvent) Output {
	if ev.Mid == nil || *ev.Mid <= 0 {
		snap := health.MakeSnapshot(r.cfg.Health, health.SnapshotArgs{
			ExchangeTs:    ev.ExchangeTs,
			IngestTs:      ev.IngestTs,
			FeaturesReady: false,
		})
		r.advance(snap)
		return Output{Event: ev, State: r.state}
	}

	r.spots[ev.ProductID] = spotState{
		productID:  ev.ProductID,
		baseAsset:  ev.BaseAsset,
		quoteAsset: ev.QuoteAsset,
		mid:        *ev.Mid,
		updatedAt:  ev.ExchangeTs,
	}

	vec := r.engine(ev.ProductID).Update(*ev.Mid, ev.ExchangeTs)

	spotAge := int64(0)
	snap := health.MakeSnapshot(r.cfg.Health, health.SnapshotArgs{
		ExchangeTs:    ev.ExchangeTs,
		IngestTs:      ev.IngestTs,
		SpotAgeMs:     &spotAge,
		FeaturesReady: vec.Ready(),
	})
	r.advance(snap)

	return Output{Event: ev, Features: &vec, State: r.state}
}

// handlePmBook correlaciona el book con el spot emparejado, computa la señal
// de dislocación y consulta al position manager.
func (r *Runner) handlePmBook(ev domain.UnifiedEvent) (Output, error) {
	book := r.books[ev.AssetID].merge(ev.BestBid, ev.BestAsk, ev.Mid, ev.ExchangeTs)
	r.books[ev.AssetID] = book

	spot, ok := r.spots[r.cfg.SpotProductID]
	if !ok || spot.mid <= 0 {
		// Sin spot no hay features ni señal: snapshot "no-data" y a degradar.
		pmAge := int64(0)
		snap := health.MakeSnapshot(r.cfg.Health, health.SnapshotArgs{
			ExchangeTs:    ev.ExchangeTs,
			IngestTs:      ev.IngestTs,
			PmAgeMs:       &pmAge,
			FeaturesReady: false,
		})
		r.advance(snap)
		return Output{Event: ev, State: r.state}, nil
	}

	eng := r.engine(spot.productID)
	vec, primed := eng.Latest()
	if !primed {
		vec = eng.Update(spot.mid, ev.ExchangeTs)
	}

	var sig *features.Signal
	if ev.Mid != nil {
		if s, ok := features.ComputeDislocation(vec, *ev.Mid, r.cfg.Beta, ev.ExchangeTs, ev.IngestTs); ok {
			sig = &s
		}
	}

	spotAge := ev.ExchangeTs - spot.updatedAt
	if spotAge < 0 {
		spotAge = 0
	}
	pmAge := int64(0)
	dt := ev.ExchangeTs - spot.updatedAt
	if dt < -1 {
		dt = -1
	}

	snap := health.MakeSnapshot(r.cfg.Health, health.SnapshotArgs{
		ExchangeTs:    ev.ExchangeTs,
		IngestTs:      ev.IngestTs,
		SpotAgeMs:     &spotAge,
		PmAgeMs:       &pmAge,
		FeaturesReady: vec.Ready(),
	})
	r.advance(snap)

	out := Output{
		Event:       ev,
		Features:    &vec,
		Dislocation: sig,
		State:       r.state,
		DtMs:        &dt,
	}

	if book.hasBothSides() {
		intent, err := r.manager.Evaluate(r.state, sig, ev.ConditionID, ev.AssetID,
			*book.bestBid, *book.bestAsk, ev.ExchangeTs)
		if err != nil {
			return Output{}, err
		}
		out.Intent = intent
	}
	return out, nil
}

// advance aplica la máquina de estados y el interlock de beta cero: sin
// modelo cargado (y sin override) nunca se entra en RUNNING, en ningún modo.
// La decisión no puede depender del modo o live y replay divergen.
func (r *Runner) advance(snap health.Snapshot) {
	prev := r.state
	next := health.Next(prev, snap)
	if next == health.StateRunning && r.betaZero && !r.cfg.AllowZeroBeta {
		next = health.StateWarming
	}
	r.state = next
	if prev != next {
		logTransition(prev, next, snap, r.betaZero && !r.cfg.AllowZeroBeta, r.collisions)
	}
}

// detectCollision marca eventos de distinto kind con ExchangeTs idéntico al
// anterior. Diagnóstico puro: nunca altera la decisión.
func (r *Runner) detectCollision(ev domain.UnifiedEvent) bool {
	collision := r.hasLastEvent &&
		r.lastEventTs == ev.ExchangeTs &&
		r.lastEventKind != ev.Kind
	if collision {
		r.collisions++
	}
	r.lastEventTs = ev.ExchangeTs
	r.lastEventKind = ev.Kind
	r.hasLastEvent = true
	return collision
}

func logTransition(prev, next health.State, snap health.Snapshot, betaBlocked bool, collisions int64) {
	causes := make([]string, 0, 5)
	if !snap.SpotFresh {
		causes = append(causes, "spotStale")
	}
	if !snap.PmFresh {
		causes = append(causes, "pmStale")
	}
	if !snap.FeaturesReady {
		causes = append(causes, "featuresNotReady")
	}
	if !snap.LatencyOk {
		causes = append(causes, "latencyBad")
	}
	if betaBlocked {
		causes = append(causes, "betaBlocked")
	}
	slog.Info("state transition",
		"from", prev,
		"to", next,
		"causes", causes,
		"exchange_ts", snap.ExchangeTs,
		"latency_ms", snap.LatencyMs,
		"collisions", collisions,
	)
}
