package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/engine"
	"github.com/rupeelab/backtest/internal/metrics"
	"github.com/rupeelab/backtest/internal/portfolio"
)

func testInput(t *testing.T) Input {
	t.Helper()
	ist := domain.ISTLocation
	entry := time.Date(2023, 3, 1, 0, 0, 0, 0, ist)
	exit := time.Date(2023, 3, 10, 0, 0, 0, 0, ist)

	closed := domain.ConsolidatedTrade{
		Symbol: "RELIANCE", TradeNum: 1,
		EntryTime: entry, ExitTime: &exit,
		EntryPrice: 100, ExitPrice: 110, Qty: 10,
		NetPnLAbs: 100, NetPnLPct: 10, HoldingDays: 9,
		RunUpAbs: 120, RunUpPct: 12, DrawdownAbs: -20, DrawdownPct: -2,
		Snapshot: domain.EntrySnapshot{
			Captured: true, RSI: 55.5, RSIBullish: domain.FlagTrue,
			ATR: 2.345, VolatilityClass: "medium", TrendClass: "uptrend",
			VolumeClass: "normal", MACDBullish: domain.FlagFalse,
		},
	}
	open := domain.ConsolidatedTrade{
		Symbol: "TCS", TradeNum: 2,
		EntryTime: exit, EntryPrice: 200, ExitPrice: 210, Qty: 5,
		NetPnLAbs: 50, NetPnLPct: 5, HoldingDays: 3,
		ExitReason: "end_of_data",
	}

	daily := []domain.EquityPoint{
		{Timestamp: entry, Cash: 50000, PositionsValue: 50000, TotalEquity: 100000},
		{Timestamp: exit, Cash: 60000, PositionsValue: 41000, TotalEquity: 101000},
	}

	win := domain.WindowSlice{
		Label: domain.WindowMax,
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, ist),
		End:   time.Date(2023, 12, 31, 0, 0, 0, 0, ist),
	}
	wm := metrics.WindowMetrics{
		Label: win.Label, TradeCount: 2, Wins: 1,
		WinRate: 100, TotalPnLPct: 1, CAGR: 1.234, Sharpe: 0.5,
	}

	return Input{
		RunID:        "run-1234",
		StrategyName: "ema_cross",
		BasketName:   "largecaps",
		Interval:     domain.Interval1d,
		StartedAt:    time.Date(2023, 6, 15, 10, 30, 0, 0, ist),
		EndedAt:      time.Date(2023, 6, 15, 10, 31, 0, 0, ist),
		Workers:      4,
		Windows:      []domain.WindowSlice{win},
		Results: []*engine.Result{
			{
				Symbol:      "RELIANCE",
				Fingerprint: "ab12cd34",
				Stats:       engine.Stats{Bars: 250, ClosedTrades: 1, Wins: 1, FinalEquity: 101000},
			},
		},
		Failures: []Failure{
			{Symbol: "BADSYM", Kind: domain.KindDataError, Message: "no data file"},
		},
		Portfolio: &portfolio.Result{
			Daily:   daily,
			Monthly: daily[len(daily)-1:],
			Trades:  []domain.ConsolidatedTrade{closed, open},
		},
		PortfolioMetrics: []metrics.WindowMetrics{wm},
		SymbolMetrics: map[string][]metrics.WindowMetrics{
			"RELIANCE": {wm},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteAll_LayoutAndDirName(t *testing.T) {
	root := t.TempDir()
	dir, err := NewWriter(root, zerolog.Nop()).WriteAll(testInput(t))
	require.NoError(t, err)

	assert.Equal(t, "0615-1030-ema_cross-largecaps-1d", filepath.Base(dir))
	for _, name := range []string{
		"summary.json",
		"consolidated_trades_MAX.csv",
		"portfolio_daily_equity_curve_MAX.csv",
		"portfolio_monthly_equity_curve_MAX.csv",
		"portfolio_key_metrics_MAX.csv",
		"strategy_backtests_summary.csv",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestWriteAll_SummaryJSON(t *testing.T) {
	dir, err := NewWriter(t.TempDir(), zerolog.Nop()).WriteAll(testInput(t))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "run-1234", doc["run_id"])
	assert.Equal(t, float64(2), doc["symbol_count"])
	assert.Equal(t, float64(1), doc["success_count"])
	assert.Equal(t, float64(1), doc["failure_count"])

	fps, ok := doc["data_fingerprints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ab12cd34", fps["RELIANCE"])
}

func TestConsolidatedTradesCSV(t *testing.T) {
	dir, err := NewWriter(t.TempDir(), zerolog.Nop()).WriteAll(testInput(t))
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, "consolidated_trades_MAX.csv"))
	require.Len(t, rows, 5, "header plus entry/exit pair per trade")

	entry, exit := rows[1], rows[2]
	assert.Equal(t, "Entry long", entry[2])
	assert.Equal(t, "", entry[6], "entry rows have empty P&L")
	assert.Equal(t, "55.50", entry[14], "snapshot RSI on entry row")
	assert.Equal(t, "True", entry[15])
	assert.Equal(t, "False", entry[20])
	assert.Equal(t, "", entry[22], "uncaptured flag stays blank")

	assert.Equal(t, "Exit long", exit[2])
	assert.Equal(t, "100.00", exit[6])
	assert.Equal(t, "Yes", exit[8])
	assert.Equal(t, "9", exit[13])

	openExit := rows[4]
	assert.Equal(t, "OPEN", openExit[2])
	assert.Equal(t, "", openExit[3], "open trade has no exit timestamp")
	assert.Equal(t, "", openExit[8], "open trade profitability is blank")
}

func TestKeyMetricsCSV(t *testing.T) {
	dir, err := NewWriter(t.TempDir(), zerolog.Nop()).WriteAll(testInput(t))
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, "portfolio_key_metrics_MAX.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, "RELIANCE", rows[1][0])
	assert.Equal(t, "TOTAL", rows[2][0])
	assert.Equal(t, "1.23", rows[2][9], "CAGR rounded to two decimals")
}

func TestBacktestsSummaryCSV(t *testing.T) {
	dir, err := NewWriter(t.TempDir(), zerolog.Nop()).WriteAll(testInput(t))
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, "strategy_backtests_summary.csv"))
	require.Len(t, rows, 3)

	assert.Equal(t, "BADSYM", rows[1][0], "rows sorted by symbol")
	assert.Equal(t, "failed", rows[1][1])
	assert.True(t, strings.HasPrefix(rows[1][len(rows[1])-1], "DataError:"))
	assert.Equal(t, "RELIANCE", rows[2][0])
	assert.Equal(t, "ok", rows[2][1])
}

func TestWriteAll_Deterministic(t *testing.T) {
	in := testInput(t)
	dir1, err := NewWriter(t.TempDir(), zerolog.Nop()).WriteAll(in)
	require.NoError(t, err)
	dir2, err := NewWriter(t.TempDir(), zerolog.Nop()).WriteAll(in)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir1)
	require.NoError(t, err)
	for _, e := range entries {
		a, err := os.ReadFile(filepath.Join(dir1, e.Name()))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dir2, e.Name()))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), e.Name())
	}
}
