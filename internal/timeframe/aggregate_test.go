package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeelab/backtest/internal/domain"
)

// minuteSeries builds n one-minute bars with linearly increasing closes
// starting at 09:15 IST.
func minuteSeries(n int) *domain.Series {
	s := domain.NewSeries("TEST", domain.Interval1m, n)
	base := time.Date(2024, 4, 1, 9, 15, 0, 0, domain.ISTLocation)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		s.Append(domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		})
	}
	return s
}

func TestAggregate_75Minutes(t *testing.T) {
	s := minuteSeries(75)
	out, err := Aggregate(s, domain.Interval75m)
	require.NoError(t, err)

	// Buckets anchor at session open, so 75 bars from 09:15 collapse
	// into exactly one 75m bar.
	require.Equal(t, 1, out.Len())
	assert.True(t, out.TS[0].Equal(s.TS[0]))
	assert.InDelta(t, s.Open[0], out.Open[0], 1e-9)
	assert.InDelta(t, s.Close[74], out.Close[0], 1e-9)
	assert.InDelta(t, s.Low[0], out.Low[0], 1e-9)
	assert.InDelta(t, s.High[74], out.High[0], 1e-9)
	assert.InDelta(t, 750, out.Volume[0], 1e-9)
}

func TestAggregate_Associativity(t *testing.T) {
	s := minuteSeries(375) // one full session

	direct, err := Aggregate(s, domain.Interval75m)
	require.NoError(t, err)

	via5, err := Aggregate(s, domain.Interval5m)
	require.NoError(t, err)
	indirect, err := Aggregate(via5, domain.Interval75m)
	require.NoError(t, err)

	require.Equal(t, direct.Len(), indirect.Len())
	for i := 0; i < direct.Len(); i++ {
		assert.True(t, direct.TS[i].Equal(indirect.TS[i]), "ts %d", i)
		assert.InDelta(t, direct.Open[i], indirect.Open[i], 1e-9)
		assert.InDelta(t, direct.High[i], indirect.High[i], 1e-9)
		assert.InDelta(t, direct.Low[i], indirect.Low[i], 1e-9)
		assert.InDelta(t, direct.Close[i], indirect.Close[i], 1e-9)
		assert.InDelta(t, direct.Volume[i], indirect.Volume[i], 1e-9)
	}
}

func TestAggregate_DailyBucketsByISTDate(t *testing.T) {
	s := domain.NewSeries("TEST", domain.Interval1h, 8)
	day1 := time.Date(2024, 4, 1, 10, 0, 0, 0, domain.ISTLocation)
	day2 := time.Date(2024, 4, 2, 10, 0, 0, 0, domain.ISTLocation)
	for i := 0; i < 4; i++ {
		s.Append(domain.Bar{Timestamp: day1.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1})
	}
	for i := 0; i < 4; i++ {
		s.Append(domain.Bar{Timestamp: day2.Add(time.Duration(i) * time.Hour), Open: 3, High: 4, Low: 2.5, Close: 3.5, Volume: 1})
	}
	out, err := Aggregate(s, domain.Interval1d)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.InDelta(t, 4, out.Volume[0], 1e-9)
	assert.InDelta(t, 1, out.Open[0], 1e-9)
	assert.InDelta(t, 3.5, out.Close[1], 1e-9)
}

func TestAggregate_GapsProduceNoSyntheticBars(t *testing.T) {
	s := domain.NewSeries("TEST", domain.Interval1m, 10)
	base := time.Date(2024, 4, 1, 10, 0, 0, 0, domain.ISTLocation)
	for i := 0; i < 5; i++ {
		s.Append(domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	// One hour hole.
	for i := 0; i < 5; i++ {
		s.Append(domain.Bar{Timestamp: base.Add(time.Hour + time.Duration(i)*time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	out, err := Aggregate(s, domain.Interval5m)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestAggregate_RejectsFinerTarget(t *testing.T) {
	s := minuteSeries(10)
	s.Interval = domain.Interval1h
	_, err := Aggregate(s, domain.Interval5m)
	assert.Error(t, err)
}
