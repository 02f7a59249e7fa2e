package features

import "math"

// rolling.go: primitivas de estadística rodante del feature engine.
// Todas son deterministas: mismo stream de (valor, ts) → mismos resultados.

type sample struct {
	ts    int64
	value float64
}

// EMA es una media móvil exponencial con alpha derivado de una half-life,
// asumiendo ticks razonablemente regulares (sin re-ponderar por timestamp).
type EMA struct {
	alpha   float64
	current float64
	primed  bool
}

// NewEMA crea una EMA: alpha = 1 - exp(-ln2/halfLife * interval).
func NewEMA(halfLifeMs, expectedIntervalMs int64) *EMA {
	lambda := math.Ln2 / float64(halfLifeMs)
	return &EMA{alpha: 1 - math.Exp(-lambda*float64(expectedIntervalMs))}
}

// Update incorpora un valor. La primera llamada fija current = v.
func (e *EMA) Update(v float64) float64 {
	if !e.primed {
		e.current = v
		e.primed = true
		return e.current
	}
	e.current = e.alpha*v + (1-e.alpha)*e.current
	return e.current
}

// Value devuelve la EMA actual y si ya recibió algún valor.
func (e *EMA) Value() (float64, bool) {
	return e.current, e.primed
}

// WindowAnchor mantiene una ventana temporal FIFO y devuelve el valor más
// antiguo que sobrevive en la ventana (el precio de referencia del log-return).
type WindowAnchor struct {
	windowMs int64
	samples  []sample
}

func NewWindowAnchor(windowMs int64) *WindowAnchor {
	return &WindowAnchor{windowMs: windowMs}
}

// Update añade (v, ts), expulsa muestras con ts < now-window y devuelve el
// ancla. ok es false solo si la ventana quedó vacía.
func (a *WindowAnchor) Update(v float64, ts int64) (float64, bool) {
	a.samples = append(a.samples, sample{ts: ts, value: v})
	a.prune(ts)
	if len(a.samples) == 0 {
		return 0, false
	}
	return a.samples[0].value, true
}

func (a *WindowAnchor) prune(now int64) {
	cutoff := now - a.windowMs
	i := 0
	for i < len(a.samples) && a.samples[i].ts < cutoff {
		i++
	}
	if i > 0 {
		a.samples = append(a.samples[:0], a.samples[i:]...)
	}
}

// WindowStd calcula la desviación estándar poblacional sobre una ventana
// temporal con la misma política de expulsión que WindowAnchor.
type WindowStd struct {
	windowMs int64
	samples  []sample
}

func NewWindowStd(windowMs int64) *WindowStd {
	return &WindowStd{windowMs: windowMs}
}

// Update añade (v, ts) y devuelve la std de la ventana (0 si queda vacía).
func (s *WindowStd) Update(v float64, ts int64) float64 {
	s.samples = append(s.samples, sample{ts: ts, value: v})
	s.prune(ts)
	return s.std()
}

func (s *WindowStd) prune(now int64) {
	cutoff := now - s.windowMs
	i := 0
	for i < len(s.samples) && s.samples[i].ts < cutoff {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}

func (s *WindowStd) std() float64 {
	n := len(s.samples)
	if n == 0 {
		return 0
	}
	var total float64
	for _, smp := range s.samples {
		total += smp.value
	}
	mean := total / float64(n)
	var variance float64
	for _, smp := range s.samples {
		d := smp.value - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(n))
}
