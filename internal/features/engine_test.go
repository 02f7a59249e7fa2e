package features_test

import (
	"math"
	"testing"

	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ReadyAfterFirstTick(t *testing.T) {
	eng := features.NewEngine(features.DefaultConfig())

	v := eng.Update(100, 1_000)

	// El ancla existe desde el primer tick (es el propio tick), así que
	// x1=0 y el vector queda completo inmediatamente.
	require.True(t, v.Ready())
	assert.Equal(t, 0.0, *v.X1)
	assert.Equal(t, 100.0, *v.EmaFast)
	assert.Equal(t, 100.0, *v.EmaSlow)
	assert.Equal(t, 0.0, *v.Vol)
	assert.Equal(t, 100.0, v.Spot)
	assert.Equal(t, int64(1_000), v.Ts)
}

func TestEngine_X1IsLogReturnVsAnchor(t *testing.T) {
	eng := features.NewEngine(features.DefaultConfig())
	eng.Update(100, 0)

	v := eng.Update(110, 1_000)

	require.True(t, v.Ready())
	assert.InDelta(t, math.Log(110.0/100.0), *v.X1, 1e-12)
}

func TestEngine_VolOverLogPrices(t *testing.T) {
	eng := features.NewEngine(features.DefaultConfig())
	eng.Update(100, 0)
	v := eng.Update(110, 1_000)

	// std poblacional de [ln(100), ln(110)]
	mean := (math.Log(100) + math.Log(110)) / 2
	d1 := math.Log(100) - mean
	d2 := math.Log(110) - mean
	want := math.Sqrt((d1*d1 + d2*d2) / 2)
	assert.InDelta(t, want, *v.Vol, 1e-12)
}

func TestEngine_LatestReturnsCachedVector(t *testing.T) {
	eng := features.NewEngine(features.DefaultConfig())

	_, primed := eng.Latest()
	assert.False(t, primed)

	want := eng.Update(100, 1_000)
	got, primed := eng.Latest()
	require.True(t, primed)
	assert.Equal(t, want, got)
}
