package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 5)
	assert.False(t, IsValid(got[0]))
	assert.False(t, IsValid(got[1]))
	assert.InDelta(t, 2, got[2], 1e-12)
	assert.InDelta(t, 3, got[3], 1e-12)
	assert.InDelta(t, 4, got[4], 1e-12)
}

func TestSMA_WindowLargerThanSeries(t *testing.T) {
	got := SMA([]float64{1, 2}, 5)
	for _, v := range got {
		assert.False(t, IsValid(v))
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	got := EMA([]float64{2, 2, 2, 4}, 2)
	assert.False(t, IsValid(got[0]))
	assert.InDelta(t, 2, got[1], 1e-12)
	assert.InDelta(t, 2, got[2], 1e-12)
	// k = 2/3: 4*2/3 + 2*1/3
	assert.InDelta(t, 10.0/3.0, got[3], 1e-12)
}

func TestKAMA(t *testing.T) {
	got := KAMA([]float64{1, 2, 3, 4}, 2, 2, 30)
	assert.False(t, IsValid(got[0]))
	assert.False(t, IsValid(got[1]))
	// ER=1, SC=(2/3)^2=4/9, seeded with close[1]=2.
	assert.InDelta(t, 2+4.0/9.0, got[2], 1e-9)
	assert.InDelta(t, 2.44444444+4.0/9.0*(4-2.44444444), got[3], 1e-6)
}

func TestKAMA_FlatSeriesConverges(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100
	}
	got := KAMA(closes, 10, 2, 30)
	assert.InDelta(t, 100, got[49], 1e-9)
}

func TestMACD(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	res := MACD(closes, 1, 2, 1)
	// EMA(1) is the series itself; with signal period 1 the histogram
	// is identically zero once valid.
	for i := 2; i < len(closes); i++ {
		require.True(t, IsValid(res.Line[i]))
		assert.InDelta(t, 0, res.Histogram[i], 1e-12)
	}
	// Warm-up region is sentinel.
	assert.False(t, IsValid(res.Line[0]))
	assert.False(t, IsValid(res.Signal[0]))
}

func TestMACD_DegenerateParams(t *testing.T) {
	res := MACD([]float64{1, 2, 3}, 5, 3, 2)
	for _, v := range res.Line {
		assert.True(t, math.IsNaN(v))
	}
}
