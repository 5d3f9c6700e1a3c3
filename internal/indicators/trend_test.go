package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAroon(t *testing.T) {
	highs := []float64{1, 2, 3, 2}
	lows := []float64{1, 2, 3, 2}
	res := Aroon(highs, lows, 2)
	assert.False(t, IsValid(res.Up[1]))
	// Highest high at the current bar.
	assert.InDelta(t, 100, res.Up[2], 1e-12)
	assert.InDelta(t, 0, res.Down[2], 1e-12)
	// Bar 3: high peaked one bar ago; low ties resolve to the latest.
	assert.InDelta(t, 50, res.Up[3], 1e-12)
	assert.InDelta(t, 100, res.Down[3], 1e-12)
}

func TestADX_TrendingSeries(t *testing.T) {
	n := 80
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100 + float64(i)
		highs[i] = closes[i] + 1
		lows[i] = closes[i] - 1
	}
	res := ADX(highs, lows, closes, 14)
	last := n - 1
	require.True(t, IsValid(res.PlusDI[last]))
	require.True(t, IsValid(res.ADX[last]))
	// Steady uptrend: +DI dominates and ADX signals a strong trend.
	assert.Greater(t, res.PlusDI[last], res.MinusDI[last])
	assert.Greater(t, res.ADX[last], 25.0)
	// Warm-up: ADX needs two Wilder windows.
	assert.False(t, IsValid(res.ADX[2*14-2]))
}

func TestIchimoku_FlatSeries(t *testing.T) {
	n := 60
	flat := make([]float64, n)
	for i := range flat {
		flat[i] = 100
	}
	res := Ichimoku(flat, flat, flat, 9, 26, 52)

	assert.False(t, IsValid(res.Tenkan[7]))
	assert.InDelta(t, 100, res.Tenkan[8], 1e-12)
	assert.InDelta(t, 100, res.Kijun[25], 1e-12)
	// Senkou A: valid after base-1 bars of kijun plus the forward shift.
	assert.False(t, IsValid(res.SenkouA[50]))
	assert.InDelta(t, 100, res.SenkouA[51], 1e-12)
	// Senkou B needs lead-1 + base bars: 51+26=77 > 59, never valid here.
	for i := 0; i < n; i++ {
		assert.False(t, IsValid(res.SenkouB[i]), "SenkouB[%d]", i)
	}
}

func TestIchimoku_ChikouIsShiftedClose(t *testing.T) {
	n := 60
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i := range closes {
		closes[i] = float64(i)
		highs[i] = float64(i) + 1
		lows[i] = float64(i) - 1
	}
	res := Ichimoku(highs, lows, closes, 9, 26, 52)
	assert.InDelta(t, closes[30], res.Chikou[30-26], 1e-12)
	// Trailing region has nothing to plot.
	assert.False(t, IsValid(res.Chikou[n-1]))
}

func TestRollingExtremes(t *testing.T) {
	vals := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	mx := rollingMax(vals, 3)
	mn := rollingMin(vals, 3)
	assert.False(t, IsValid(mx[1]))
	assert.InDelta(t, 4, mx[2], 1e-12)
	assert.InDelta(t, 9, mx[5], 1e-12)
	assert.InDelta(t, 9, mx[6], 1e-12)
	assert.InDelta(t, 1, mn[2], 1e-12)
	assert.InDelta(t, 2, mn[6], 1e-12)
	assert.InDelta(t, 2, mn[7], 1e-12)
}
