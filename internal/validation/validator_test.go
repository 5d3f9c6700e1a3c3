package validation

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeelab/backtest/internal/domain"
)

func dailySeries(symbol string, rows int) *domain.Series {
	s := domain.NewSeries(symbol, domain.Interval1d, rows)
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		c := 100 + 0.5*float64(i)
		s.Append(domain.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		})
	}
	return s
}

func TestValidate_CleanSeriesPasses(t *testing.T) {
	v := New(zerolog.Nop())
	res := v.Validate(dailySeries("RELIANCE", 120))
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Fingerprint, 8)
	assert.Equal(t, 120, res.Stats.Rows)
}

func TestValidate_TooFewRows(t *testing.T) {
	v := New(zerolog.Nop())
	res := v.Validate(dailySeries("TCS", 50))
	assert.False(t, res.Passed)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "structure")
}

func TestValidate_HighBelowLow(t *testing.T) {
	s := dailySeries("INFY", 120)
	s.High[10] = s.Low[10] - 1
	v := New(zerolog.Nop())
	res := v.Validate(s)
	assert.False(t, res.Passed)
}

func TestValidate_FirstFailureStillRunsRemainingChecks(t *testing.T) {
	s := dailySeries("INFY", 50) // structure fails
	s.Close[10] = s.High[10] + 5 // values fail too
	v := New(zerolog.Nop())
	res := v.Validate(s)
	assert.False(t, res.Passed)
	require.Len(t, res.Checks, 3)
	assert.False(t, res.Checks[0].Passed)
	assert.False(t, res.Checks[1].Passed)
}

func TestValidate_DailyGapWarns(t *testing.T) {
	s := dailySeries("HDFC", 120)
	// Introduce a 20-day hole by shifting the tail.
	for i := 60; i < s.Len(); i++ {
		s.TS[i] = s.TS[i].AddDate(0, 0, 20)
	}
	v := New(zerolog.Nop())
	res := v.Validate(s)
	assert.True(t, res.Passed, "gaps are warnings, not errors")
	assert.NotEmpty(t, res.Warnings)
}

func TestValidate_NaNBudget(t *testing.T) {
	s := dailySeries("SBIN", 120)
	for i := 0; i < 20; i++ { // ~17% NaN closes
		s.Close[i] = math.NaN()
	}
	v := New(zerolog.Nop())
	res := v.Validate(s)
	assert.False(t, res.Passed)
}

func TestValidateTradePrices(t *testing.T) {
	s := dailySeries("ITC", 120)
	v := New(zerolog.Nop())
	errs := v.ValidateTradePrices(s, []float64{100, 5000})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "5000")
}

func TestCheckCacheFile(t *testing.T) {
	v := New(zerolog.Nop())

	missing := v.CheckCacheFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.False(t, missing.Passed)

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.False(t, v.CheckCacheFile(empty).Passed)

	full := filepath.Join(dir, "full.csv")
	require.NoError(t, os.WriteFile(full, []byte("date,open\n"), 0o644))
	assert.True(t, v.CheckCacheFile(full).Passed)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := dailySeries("RELIANCE", 120)
	b := dailySeries("RELIANCE", 120)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_SingleTickChange(t *testing.T) {
	a := dailySeries("RELIANCE", 120)
	b := dailySeries("RELIANCE", 120)
	b.Close[57] += 0.05
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
