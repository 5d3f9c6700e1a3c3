package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/metrics"
)

const timeFormat = "2006-01-02T15:04:05+05:30"

var tradeHeader = []string{
	"Trade#", "Symbol", "Type", "Date/Time", "Price", "Quantity",
	"Net P&L INR", "Net P&L %", "Profitable",
	"Run-up INR", "Run-up %", "Drawdown INR", "Drawdown %", "Holding Days",
	"RSI", "RSI Bullish", "ATR", "Volatility", "Trend", "Volume Class",
	"MACD Bullish", "Above Cloud", "Stoch Bullish", "StochRSI Bullish",
}

func (w *Writer) writeConsolidatedTrades(dir string, win domain.WindowSlice, in Input) error {
	rows := [][]string{tradeHeader}
	num := 0
	for _, t := range portfolioTrades(in) {
		if !win.Contains(tradeWindowRef(t)) {
			continue
		}
		num++
		rows = append(rows, entryRow(num, t), exitRow(num, t))
	}
	return writeCSV(filepath.Join(dir, fmt.Sprintf("consolidated_trades_%s.csv", win.Label)), rows)
}

// tradeWindowRef is the timestamp that decides window membership: the
// exit time for closed trades, the entry time while still open.
func tradeWindowRef(t domain.ConsolidatedTrade) time.Time {
	if t.IsOpen() {
		return t.EntryTime
	}
	return *t.ExitTime
}

func portfolioTrades(in Input) []domain.ConsolidatedTrade {
	if in.Portfolio != nil {
		return in.Portfolio.Trades
	}
	var all []domain.ConsolidatedTrade
	for _, r := range in.Results {
		all = append(all, r.Consolidated...)
	}
	return all
}

// entryRow has the snapshot columns filled and the P&L columns empty.
func entryRow(num int, t domain.ConsolidatedTrade) []string {
	snap := t.Snapshot
	return []string{
		strconv.Itoa(num), t.Symbol, "Entry long",
		t.EntryTime.In(domain.ISTLocation).Format(timeFormat),
		f2(t.EntryPrice), f0(t.Qty),
		"", "", "", "", "", "", "", "",
		snapNum(snap.Captured, snap.RSI), snap.RSIBullish.String(),
		snapNum(snap.Captured, snap.ATR),
		snap.VolatilityClass, snap.TrendClass, snap.VolumeClass,
		snap.MACDBullish.String(), snap.AboveCloud.String(),
		snap.StochBullish.String(), snap.StochRSIBullish.String(),
	}
}

// exitRow carries the P&L and excursion columns. Open trades have no
// exit timestamp or price; they are typed OPEN and their P&L reflects
// the terminal mark-to-market.
func exitRow(num int, t domain.ConsolidatedTrade) []string {
	kind := "Exit long"
	exitTime, exitPrice := "", ""
	if t.IsOpen() {
		kind = "OPEN"
	} else {
		exitTime = t.ExitTime.In(domain.ISTLocation).Format(timeFormat)
		exitPrice = f2(t.ExitPrice)
	}
	return []string{
		strconv.Itoa(num), t.Symbol, kind, exitTime, exitPrice, f0(t.Qty),
		f2(t.NetPnLAbs), f2(t.NetPnLPct), t.Profitable(),
		f2(t.RunUpAbs), f2(t.RunUpPct), f2(t.DrawdownAbs), f2(t.DrawdownPct),
		strconv.Itoa(t.HoldingDays),
		"", "", "", "", "", "", "", "", "", "",
	}
}

var equityHeader = []string{"date", "cash", "positions_value", "total_equity", "drawdown_abs", "drawdown_pct"}

func (w *Writer) writeEquityCurves(dir string, win domain.WindowSlice, in Input) error {
	if in.Portfolio == nil {
		return nil
	}
	daily := equityRows(in.Portfolio.Daily, win)
	path := filepath.Join(dir, fmt.Sprintf("portfolio_daily_equity_curve_%s.csv", win.Label))
	if err := writeCSV(path, daily); err != nil {
		return err
	}
	monthly := equityRows(in.Portfolio.Monthly, win)
	path = filepath.Join(dir, fmt.Sprintf("portfolio_monthly_equity_curve_%s.csv", win.Label))
	return writeCSV(path, monthly)
}

func equityRows(points []domain.EquityPoint, win domain.WindowSlice) [][]string {
	rows := [][]string{equityHeader}
	for _, p := range points {
		if !win.Contains(p.Timestamp) {
			continue
		}
		rows = append(rows, []string{
			p.Timestamp.In(domain.ISTLocation).Format("2006-01-02"),
			f2(p.Cash), f2(p.PositionsValue), f2(p.TotalEquity),
			f2(p.DrawdownAbs), f2(p.DrawdownPct),
		})
	}
	return rows
}

var keyMetricsHeader = []string{
	"Symbol", "Trades", "Wins", "Losses", "Win Rate %", "Net P&L %",
	"Avg Trade %", "Profit Factor", "Max DD %", "CAGR %",
	"Sharpe", "Sortino", "Calmar", "IRR %",
}

func (w *Writer) writeKeyMetrics(dir string, win domain.WindowSlice, in Input) error {
	rows := [][]string{keyMetricsHeader}

	symbols := make([]string, 0, len(in.SymbolMetrics))
	for sym := range in.SymbolMetrics {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		if m, ok := metricsForWindow(in.SymbolMetrics[sym], win.Label); ok {
			rows = append(rows, keyMetricsRow(sym, m))
		}
	}
	if m, ok := metricsForWindow(in.PortfolioMetrics, win.Label); ok {
		rows = append(rows, keyMetricsRow("TOTAL", m))
	}
	return writeCSV(filepath.Join(dir, fmt.Sprintf("portfolio_key_metrics_%s.csv", win.Label)), rows)
}

func metricsForWindow(all []metrics.WindowMetrics, label domain.WindowLabel) (metrics.WindowMetrics, bool) {
	for _, m := range all {
		if m.Label == label {
			return m, true
		}
	}
	return metrics.WindowMetrics{}, false
}

func keyMetricsRow(symbol string, m metrics.WindowMetrics) []string {
	return []string{
		symbol,
		strconv.Itoa(m.TradeCount), strconv.Itoa(m.Wins), strconv.Itoa(m.Losses),
		f2(m.WinRate), f2(m.TotalPnLPct), f2(m.AvgTradePnLPct), f2(m.ProfitFactor),
		f2(m.MaxDrawdownPct), f2(m.CAGR), f2(m.Sharpe), f2(m.Sortino),
		f2(m.Calmar), f2(m.IRR),
	}
}

var backtestsHeader = []string{
	"Symbol", "Status", "Bars", "Warmup Bars", "Closed Trades", "Open Trades",
	"Wins", "Losses", "Dropped Orders", "Realized PnL", "Unrealized PnL",
	"Commission", "Final Cash", "Final Equity", "Fingerprint", "Warnings", "Error",
}

func (w *Writer) writeBacktestsSummary(dir string, in Input) error {
	rows := [][]string{backtestsHeader}

	results := make([]*engineResultRow, 0, len(in.Results))
	for _, r := range in.Results {
		results = append(results, &engineResultRow{symbol: r.Symbol, row: []string{
			r.Symbol, "ok",
			strconv.Itoa(r.Stats.Bars), strconv.Itoa(r.Stats.WarmupEnd),
			strconv.Itoa(r.Stats.ClosedTrades), strconv.Itoa(r.Stats.OpenTrades),
			strconv.Itoa(r.Stats.Wins), strconv.Itoa(r.Stats.Losses),
			strconv.Itoa(r.Stats.DroppedOrders),
			f2(r.Stats.RealizedPnL), f2(r.Stats.UnrealizedPnL),
			f2(r.Stats.TotalCommission), f2(r.Stats.FinalCash), f2(r.Stats.FinalEquity),
			r.Fingerprint, strconv.Itoa(len(r.Warnings)), "",
		}})
	}
	for _, f := range in.Failures {
		results = append(results, &engineResultRow{symbol: f.Symbol, row: []string{
			f.Symbol, "failed", "", "", "", "", "", "", "", "", "", "", "", "", "", "",
			fmt.Sprintf("%s: %s", f.Kind, f.Message),
		}})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].symbol < results[j].symbol })
	for _, r := range results {
		rows = append(rows, r.row)
	}
	return writeCSV(filepath.Join(dir, "strategy_backtests_summary.csv"), rows)
}

type engineResultRow struct {
	symbol string
	row    []string
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// f2 renders a float rounded to two decimals. Infinities keep Go's
// Inf rendering so a zero-loss profit factor stays recognizable.
func f2(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	if math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(domain.Round2(v), 'f', 2, 64)
}

func f0(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func snapNum(captured bool, v float64) string {
	if !captured {
		return ""
	}
	return f2(v)
}
