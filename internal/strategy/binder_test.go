package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

func flatSeries(n int) *domain.Series {
	s := domain.NewSeries("TEST", domain.Interval1d, n)
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.Append(domain.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1000,
		})
	}
	return s
}

func TestBinder_CursorGatesReads(t *testing.T) {
	s := flatSeries(20)
	b := NewBinder(s)
	h := b.Bind("close", s.Close)
	require.NoError(t, b.Err())

	// Before the engine advances the cursor every read is sentinel.
	assert.True(t, math.IsNaN(h.At(0)))

	b.SetCursor(5)
	assert.Equal(t, 100.0, h.At(5))
	assert.Equal(t, 100.0, h.At(0))
	assert.True(t, math.IsNaN(h.At(6)), "future read must be sentinel")
	assert.True(t, math.IsNaN(h.At(19)))
	assert.True(t, math.IsNaN(h.At(-1)))
	assert.Equal(t, 100.0, h.Last())
}

func TestBinder_DuplicateBindIsError(t *testing.T) {
	s := flatSeries(20)
	b := NewBinder(s)
	b.Bind("rsi", indicators.RSI(s.Close, 14))
	dup := b.Bind("rsi", indicators.RSI(s.Close, 7))

	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "bound twice")

	b.SetCursor(19)
	assert.True(t, math.IsNaN(dup.At(19)), "duplicate handle never yields values")
}

func TestBinder_LengthMismatchIsError(t *testing.T) {
	s := flatSeries(20)
	b := NewBinder(s)
	b.Bind("short", make([]float64, 10))
	assert.Error(t, b.Err())
}

func TestBinder_WarmupEnd(t *testing.T) {
	s := flatSeries(60)
	b := NewBinder(s)
	b.Bind("sma5", indicators.SMA(s.Close, 5))
	b.Bind("sma20", indicators.SMA(s.Close, 20))
	require.NoError(t, b.Err())

	assert.Equal(t, 19, b.WarmupEnd())
}

func TestRegistry_BundledStrategies(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	assert.Equal(t, []string{
		KeyBollingerRSI, KeyCandlestick, KeyEMACross, KeyEnvelopeKD,
		KeyIchimoku, KeyKAMACross, KeyStochRSI,
	}, r.Keys())

	for _, key := range r.Keys() {
		st, err := r.New(key, nil)
		require.NoError(t, err, key)
		assert.Equal(t, key, st.Name())
	}
}

func TestRegistry_UnknownKeyIsConfigError(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	_, err := r.New("nope", nil)
	require.Error(t, err)

	var re *domain.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.KindConfigError, re.Kind)
}

func TestRegistry_ParamTypoIsConfigError(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	_, err := r.New(KeyEMACross, Params{"fsat": 10})
	require.Error(t, err)

	var re *domain.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.KindConfigError, re.Kind)
	assert.Contains(t, err.Error(), "fsat")
}

func TestParams_Accessors(t *testing.T) {
	p := Params{"a": 3.0, "b": 2, "c": 1.5}
	assert.Equal(t, 3, p.Int("a", 9))
	assert.Equal(t, 2, p.Int("b", 9))
	assert.Equal(t, 9, p.Int("missing", 9))
	assert.Equal(t, 1.5, p.Float("c", 9))
	assert.Equal(t, 2.0, p.Float("b", 9))
}
