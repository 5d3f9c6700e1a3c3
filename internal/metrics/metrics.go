// Package metrics computes per-window performance statistics over
// equity curves and consolidated trades, plus the entry-time indicator
// snapshots attached to trades.
package metrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rupeelab/backtest/internal/domain"
)

// tradingDaysPerYear annualizes daily return statistics.
const tradingDaysPerYear = 252

// WindowMetrics is the full statistics block for one reporting window.
// Percentage fields are percentages, not fractions.
type WindowMetrics struct {
	Label domain.WindowLabel `json:"label"`
	Start time.Time          `json:"start"`
	End   time.Time          `json:"end"`

	StartEquity    float64 `json:"start_equity"`
	EndEquity      float64 `json:"end_equity"`
	TotalPnLAbs    float64 `json:"total_pnl_abs"`
	TotalPnLPct    float64 `json:"total_pnl_pct"`
	CAGR           float64 `json:"cagr"`
	Sharpe         float64 `json:"sharpe"`
	Sortino        float64 `json:"sortino"`
	Calmar         float64 `json:"calmar"`
	ProfitFactor   float64 `json:"profit_factor"`
	WinRate        float64 `json:"win_rate"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	TradeCount     int     `json:"trade_count"`
	OpenTradeCount int     `json:"open_trade_count"`
	AvgTradePnLPct float64 `json:"avg_trade_pnl_pct"`
	AvgHoldingBars float64 `json:"avg_holding_bars"`
	MaxDrawdownAbs float64 `json:"max_drawdown_abs"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	IRR            float64 `json:"irr"`
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
}

// Compute builds the metrics for one window. The benchmark curve is
// optional; without it alpha and beta stay zero. Trades belong to the
// window when their exit time (entry time for still-open trades) falls
// inside it.
func Compute(
	w domain.WindowSlice,
	equity []domain.EquityPoint,
	trades []domain.ConsolidatedTrade,
	benchmark []domain.EquityPoint,
) WindowMetrics {
	m := WindowMetrics{Label: w.Label, Start: w.Start, End: w.End}

	eq := filterEquity(equity, w)
	if len(eq) > 0 {
		m.StartEquity = eq[0].TotalEquity
		m.EndEquity = eq[len(eq)-1].TotalEquity
		m.TotalPnLAbs = m.EndEquity - m.StartEquity
		if m.StartEquity > 0 {
			m.TotalPnLPct = m.TotalPnLAbs / m.StartEquity * 100
		}
		m.CAGR = cagr(eq)
		m.MaxDrawdownAbs, m.MaxDrawdownPct = maxDrawdown(eq)

		rets := dailyReturns(eq)
		m.Sharpe = sharpe(rets)
		m.Sortino = sortino(rets)
		if m.MaxDrawdownPct != 0 {
			m.Calmar = m.CAGR / math.Abs(m.MaxDrawdownPct)
		}
		if len(benchmark) > 0 {
			m.Alpha, m.Beta = alphaBeta(eq, filterEquity(benchmark, w))
		}
	}

	var wins, closed int
	var grossProfit, grossLoss, pnlPctSum, barsSum float64
	var flows []Cashflow
	for _, t := range trades {
		ref := t.EntryTime
		if !t.IsOpen() {
			ref = *t.ExitTime
		}
		if !w.Contains(ref) {
			continue
		}
		m.TradeCount++
		pnlPctSum += t.NetPnLPct
		barsSum += float64(t.HoldingBars)
		if t.IsOpen() {
			m.OpenTradeCount++
		} else {
			closed++
			if t.NetPnLAbs > 0 {
				wins++
				grossProfit += t.NetPnLAbs
			} else {
				grossLoss += -t.NetPnLAbs
			}
		}
		flows = append(flows, Cashflow{Time: t.EntryTime, Amount: -t.EntryNotional()})
		exitTime := w.End
		if !t.IsOpen() {
			exitTime = *t.ExitTime
		}
		flows = append(flows, Cashflow{Time: exitTime, Amount: t.EntryNotional() + t.NetPnLAbs})
	}
	m.Wins = wins
	m.Losses = closed - wins
	if closed > 0 {
		m.WinRate = float64(wins) / float64(closed) * 100
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	}
	if m.TradeCount > 0 {
		m.AvgTradePnLPct = pnlPctSum / float64(m.TradeCount)
		m.AvgHoldingBars = barsSum / float64(m.TradeCount)
	}
	m.IRR = IRR(flows) * 100

	return m
}

// ComputeAll builds metrics for every window.
func ComputeAll(
	windows []domain.WindowSlice,
	equity []domain.EquityPoint,
	trades []domain.ConsolidatedTrade,
	benchmark []domain.EquityPoint,
) []WindowMetrics {
	out := make([]WindowMetrics, 0, len(windows))
	for _, w := range windows {
		out = append(out, Compute(w, equity, trades, benchmark))
	}
	return out
}

func filterEquity(points []domain.EquityPoint, w domain.WindowSlice) []domain.EquityPoint {
	var out []domain.EquityPoint
	for _, p := range points {
		if w.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out
}

func dailyReturns(eq []domain.EquityPoint) []float64 {
	var rets []float64
	for i := 1; i < len(eq); i++ {
		prev := eq[i-1].TotalEquity
		if prev > 0 {
			rets = append(rets, eq[i].TotalEquity/prev-1)
		}
	}
	return rets
}

// cagr annualizes growth over the observed calendar span, in percent.
func cagr(eq []domain.EquityPoint) float64 {
	first, last := eq[0], eq[len(eq)-1]
	days := last.Timestamp.Sub(first.Timestamp).Hours() / 24
	if days <= 0 || first.TotalEquity <= 0 || last.TotalEquity <= 0 {
		return 0
	}
	years := days / 365.25
	if years < 1.0/365.25 {
		return 0
	}
	return (math.Pow(last.TotalEquity/first.TotalEquity, 1/years) - 1) * 100
}

func sharpe(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(rets, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// sortino uses downside deviation: the root mean square of negative
// returns only.
func sortino(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	mean := stat.Mean(rets, nil)
	var sumSq float64
	for _, r := range rets {
		if r < 0 {
			sumSq += r * r
		}
	}
	downside := math.Sqrt(sumSq / float64(len(rets)))
	if downside == 0 {
		return 0
	}
	return mean / downside * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdown(eq []domain.EquityPoint) (abs, pct float64) {
	peak := eq[0].TotalEquity
	for _, p := range eq {
		if p.TotalEquity > peak {
			peak = p.TotalEquity
		}
		dd := p.TotalEquity - peak
		if dd < abs {
			abs = dd
			if peak > 0 {
				pct = dd / peak * 100
			}
		}
	}
	return abs, pct
}

// alphaBeta regresses portfolio daily returns on benchmark daily
// returns over the inner join of their dates. Alpha is annualized and
// in percent; beta is the raw slope. Days present on only one side
// are dropped.
func alphaBeta(eq, bench []domain.EquityPoint) (alpha, beta float64) {
	benchByDay := make(map[string]float64, len(bench))
	for i := 1; i < len(bench); i++ {
		prev := bench[i-1].TotalEquity
		if prev > 0 {
			benchByDay[dayKey(bench[i].Timestamp)] = bench[i].TotalEquity/prev - 1
		}
	}

	var xs, ys []float64
	for i := 1; i < len(eq); i++ {
		br, ok := benchByDay[dayKey(eq[i].Timestamp)]
		if !ok {
			continue
		}
		prev := eq[i-1].TotalEquity
		if prev <= 0 {
			continue
		}
		xs = append(xs, br)
		ys = append(ys, eq[i].TotalEquity/prev-1)
	}
	if len(xs) < 2 {
		return 0, 0
	}
	a, b := stat.LinearRegression(xs, ys, nil, false)
	return a * tradingDaysPerYear * 100, b
}

func dayKey(ts time.Time) string {
	return ts.In(domain.ISTLocation).Format("2006-01-02")
}
