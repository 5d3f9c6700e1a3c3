package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrueRange_GapUsesPrevClose(t *testing.T) {
	highs := []float64{10, 15}
	lows := []float64{8, 14}
	closes := []float64{9, 14.5}
	tr := TrueRange(highs, lows, closes)
	assert.InDelta(t, 2, tr[0], 1e-12)
	// Gap up: |15-9| dominates the 1-point bar range.
	assert.InDelta(t, 6, tr[1], 1e-12)
}

func TestATR(t *testing.T) {
	highs := []float64{10, 11, 12, 13}
	lows := []float64{8, 9, 10, 11}
	closes := []float64{9, 10, 11, 12}
	got := ATR(highs, lows, closes, 2)
	assert.False(t, IsValid(got[0]))
	assert.False(t, IsValid(got[1]))
	assert.InDelta(t, 2, got[2], 1e-12)
	assert.InDelta(t, 2, got[3], 1e-12)
}

func TestBollinger(t *testing.T) {
	res := Bollinger([]float64{1, 2, 3}, 2, 2)
	assert.False(t, IsValid(res.Middle[0]))
	assert.InDelta(t, 1.5, res.Middle[1], 1e-12)
	assert.InDelta(t, 2.5, res.Upper[1], 1e-12)
	assert.InDelta(t, 0.5, res.Lower[1], 1e-12)
}

func TestBollinger_FlatWindowHasZeroWidth(t *testing.T) {
	res := Bollinger([]float64{7, 7, 7, 7}, 3, 2)
	require.True(t, IsValid(res.Middle[3]))
	assert.InDelta(t, 7, res.Upper[3], 1e-12)
	assert.InDelta(t, 7, res.Lower[3], 1e-12)
}

func TestSupertrend_UptrendStaysBullish(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100 + 2*float64(i)
		highs[i] = closes[i] + 1
		lows[i] = closes[i] - 1
	}
	res := Supertrend(highs, lows, closes, 10, 3)
	for i := 15; i < n; i++ {
		require.True(t, IsValid(res.Direction[i]))
		assert.Equal(t, 1.0, res.Direction[i], "bar %d", i)
		assert.Less(t, res.Line[i], closes[i])
	}
}

func TestSupertrend_CrashFlipsBearish(t *testing.T) {
	n := 60
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		c := 100.0
		if i >= 40 {
			c = 50
		}
		closes[i] = c
		highs[i] = c + 1
		lows[i] = c - 1
	}
	res := Supertrend(highs, lows, closes, 10, 3)
	assert.Equal(t, -1.0, res.Direction[45])
}
