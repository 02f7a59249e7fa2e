package features

import "math"

// Config controla las ventanas del feature engine.
type Config struct {
	AnchorWindowMs     int64
	EmaFastHalfLifeMs  int64
	EmaSlowHalfLifeMs  int64
	VolWindowMs        int64
	ExpectedIntervalMs int64
}

// DefaultConfig devuelve las ventanas por defecto (anchor 60s, EMA 10s/60s,
// vol 120s, tick esperado 1s).
func DefaultConfig() Config {
	return Config{
		AnchorWindowMs:     60_000,
		EmaFastHalfLifeMs:  10_000,
		EmaSlowHalfLifeMs:  60_000,
		VolWindowMs:        120_000,
		ExpectedIntervalMs: 1_000,
	}
}

// Vector es el feature vector calculado en cada tick de spot.
// Los punteros nil marcan features todavía no disponibles.
type Vector struct {
	X1      *float64 // ln(spot / anchor)
	EmaFast *float64
	EmaSlow *float64
	Vol     *float64
	Spot    float64
	Ts      int64
}

// Ready devuelve true si todas las features del modelo están presentes.
func (v Vector) Ready() bool {
	return v.X1 != nil && v.EmaFast != nil && v.EmaSlow != nil && v.Vol != nil
}

// Engine mantiene el estado de features de UN instrumento.
// Solo debe mutarse desde el unified consumer: un writer, sin locks.
type Engine struct {
	anchor  *WindowAnchor
	emaFast *EMA
	emaSlow *EMA
	vol     *WindowStd
	latest  Vector
	primed  bool
}

// NewEngine crea un Engine con la configuración dada.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		anchor:  NewWindowAnchor(cfg.AnchorWindowMs),
		emaFast: NewEMA(cfg.EmaFastHalfLifeMs, cfg.ExpectedIntervalMs),
		emaSlow: NewEMA(cfg.EmaSlowHalfLifeMs, cfg.ExpectedIntervalMs),
		vol:     NewWindowStd(cfg.VolWindowMs),
	}
}

// Update incorpora un precio spot y devuelve el vector actualizado.
// La vol se calcula sobre ln(spot); el x1 sobre el ancla de la ventana.
func (e *Engine) Update(spot float64, exchangeTs int64) Vector {
	anchor, hasAnchor := e.anchor.Update(spot, exchangeTs)
	emaFast := e.emaFast.Update(spot)
	emaSlow := e.emaSlow.Update(spot)
	vol := e.vol.Update(math.Log(spot), exchangeTs)

	v := Vector{
		EmaFast: &emaFast,
		EmaSlow: &emaSlow,
		Vol:     &vol,
		Spot:    spot,
		Ts:      exchangeTs,
	}
	if hasAnchor {
		x1 := math.Log(spot / anchor)
		v.X1 = &x1
	}

	e.latest = v
	e.primed = true
	return v
}

// Latest devuelve el último vector cacheado sin recalcular nada.
// Se usa cuando un evento de book necesita features sin tick de spot nuevo.
func (e *Engine) Latest() (Vector, bool) {
	return e.latest, e.primed
}
