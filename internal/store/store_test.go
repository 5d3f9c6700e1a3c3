package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeelab/backtest/internal/database"
	"github.com/rupeelab/backtest/internal/domain"
)

func testStore(t *testing.T) *BarStore {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileArchive,
		Name:    "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewBarStore(db, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func sampleSeries(symbol string, days int) *domain.Series {
	s := domain.NewSeries(symbol, domain.Interval1d, days)
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, domain.ISTLocation)
	for i := 0; i < days; i++ {
		px := 100 + float64(i)
		s.Append(domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      px,
			High:      px + 1,
			Low:       px - 1,
			Close:     px + 0.5,
			Volume:    1000,
		})
	}
	return s
}

func TestBarStore_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := sampleSeries("RELIANCE", 5)
	in.Volume[2] = math.NaN()

	n, err := s.UpsertSeries(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	out, err := s.LoadSeries(ctx, "RELIANCE", domain.Interval1d, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 5, out.Len())

	assert.InDelta(t, in.Close[4], out.Close[4], 1e-9)
	assert.True(t, out.TS[0].Equal(in.TS[0]))
	assert.True(t, math.IsNaN(out.Volume[2]), "NULL volume reads back as NaN")
}

func TestBarStore_UpsertReplacesSameTimestamp(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := sampleSeries("TCS", 3)
	_, err := s.UpsertSeries(ctx, in)
	require.NoError(t, err)

	in.Close[1] = 999
	_, err = s.UpsertSeries(ctx, in)
	require.NoError(t, err)

	out, err := s.LoadSeries(ctx, "TCS", domain.Interval1d, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len(), "reimport must not duplicate rows")
	assert.InDelta(t, 999, out.Close[1], 1e-9)
}

func TestBarStore_LoadSeriesTimeRange(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := sampleSeries("INFY", 10)
	_, err := s.UpsertSeries(ctx, in)
	require.NoError(t, err)

	out, err := s.LoadSeries(ctx, "INFY", domain.Interval1d, in.TS[3], in.TS[6])
	require.NoError(t, err)
	require.Equal(t, 4, out.Len())
	assert.True(t, out.TS[0].Equal(in.TS[3]))
	assert.True(t, out.TS[3].Equal(in.TS[6]))
}

func TestBarStore_MissingSymbolIsDataError(t *testing.T) {
	s := testStore(t)

	_, err := s.LoadSeries(context.Background(), "NOSUCH", domain.Interval1d, time.Time{}, time.Time{})
	require.Error(t, err)

	var re *domain.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.KindDataError, re.Kind)
}

func TestBarStore_SymbolsAndCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.UpsertSeries(ctx, sampleSeries("TCS", 3))
	require.NoError(t, err)
	_, err = s.UpsertSeries(ctx, sampleSeries("RELIANCE", 3))
	require.NoError(t, err)

	symbols, err := s.Symbols(ctx, domain.Interval1d)
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, symbols)

	n, err := s.Count(ctx, "TCS", domain.Interval1d)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
