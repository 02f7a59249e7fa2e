package features

import "math"

// BetaParams son los coeficientes [b0,b1,b2,b3] aplicados a
// [1, x1, emaFast-emaSlow, vol]. Coeficientes ausentes cuentan como 0.
type BetaParams []float64

// IsZero devuelve true si no hay coeficientes o todos son 0.
// Con beta cero el modelo siempre devuelve 0.5 y no debe operarse.
func (b BetaParams) IsZero() bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Signal es la señal de dislocación: probabilidad esperada del modelo vs la
// probabilidad implícita del mercado (mid del book).
type Signal struct {
	ExpectedProb float64
	PmMid        float64
	DeltaSPD     float64 // ExpectedProb - PmMid
	ExchangeTs   int64
	IngestTs     int64
}

// ComputeDislocation evalúa el modelo sobre el vector de features.
// Devuelve ok=false si pmMid no es finito o falta alguna feature.
// Función pura: no muta nada, no lee relojes.
func ComputeDislocation(v Vector, pmMid float64, beta BetaParams, exchangeTs, ingestTs int64) (Signal, bool) {
	if math.IsNaN(pmMid) || math.IsInf(pmMid, 0) {
		return Signal{}, false
	}
	if !v.Ready() {
		return Signal{}, false
	}

	x := [4]float64{1, *v.X1, *v.EmaFast - *v.EmaSlow, *v.Vol}
	var z float64
	for i := 0; i < len(x) && i < len(beta); i++ {
		z += beta[i] * x[i]
	}

	expected := sigmoid(z)
	return Signal{
		ExpectedProb: expected,
		PmMid:        pmMid,
		DeltaSPD:     expected - pmMid,
		ExchangeTs:   exchangeTs,
		IngestTs:     ingestTs,
	}, true
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
