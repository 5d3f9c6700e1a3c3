// Package portfolio merges per-symbol engine outputs into one
// daily-granular equity curve and a combined trade ledger, under
// either isolated or shared capital semantics.
package portfolio

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rupeelab/backtest/internal/domain"
)

// Input is one symbol's contribution to the portfolio.
type Input struct {
	Symbol string
	Events []domain.TradeEvent
	Equity []domain.EquityPoint
	Trades []domain.ConsolidatedTrade
	Series *domain.Series
}

// Result is the aggregated portfolio view.
type Result struct {
	Daily          []domain.EquityPoint
	Monthly        []domain.EquityPoint
	Trades         []domain.ConsolidatedTrade
	DroppedEntries int
	Warnings       []domain.Warning
}

// Aggregator combines per-symbol results. Mode selects the capital
// semantics: isolated sums independent curves, shared replays the
// merged event stream against one cash pool.
type Aggregator struct {
	cfg  domain.BrokerConfig
	mode domain.CapitalMode
	log  zerolog.Logger
}

// New creates an aggregator.
func New(cfg domain.BrokerConfig, mode domain.CapitalMode, log zerolog.Logger) *Aggregator {
	if mode == "" {
		mode = domain.CapitalModeIsolated
	}
	return &Aggregator{
		cfg:  cfg,
		mode: mode,
		log:  log.With().Str("component", "portfolio").Logger(),
	}
}

// Aggregate builds the portfolio result. Inputs may arrive in any
// order; output is deterministic.
func (a *Aggregator) Aggregate(inputs []Input) (*Result, error) {
	if len(inputs) == 0 {
		return nil, domain.NewAggregationError("", "no symbol results to aggregate")
	}
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	var res *Result
	var err error
	if a.mode == domain.CapitalModeShared {
		res, err = a.aggregateShared(sorted)
	} else {
		res, err = a.aggregateIsolated(sorted)
	}
	if err != nil {
		return nil, err
	}

	res.Monthly = monthlyRollup(res.Daily)
	a.log.Info().
		Str("mode", string(a.mode)).
		Int("symbols", len(sorted)).
		Int("trades", len(res.Trades)).
		Int("dropped_entries", res.DroppedEntries).
		Msg("Portfolio aggregated")
	return res, nil
}

// aggregateIsolated sums independent per-symbol curves day by day,
// forward-filling symbols that have no observation on a given day.
// The portfolio is viewed against one initial capital even though each
// engine ran with its own: portfolio cash is capital plus the summed
// per-symbol cash deltas, so concurrent entries can push it negative,
// which is recorded as a warning rather than rejected.
func (a *Aggregator) aggregateIsolated(inputs []Input) (*Result, error) {
	days := unionDays(inputs)
	res := &Result{Daily: make([]domain.EquityPoint, 0, len(days))}
	peak := 0.0
	warned := false

	// Per-symbol cursor into its equity curve.
	cursors := make([]int, len(inputs))
	lastEquity := make([]float64, len(inputs))
	lastCash := make([]float64, len(inputs))
	for i := range inputs {
		lastEquity[i] = a.cfg.InitialCapital
		lastCash[i] = a.cfg.InitialCapital
	}

	for _, d := range days {
		cash := a.cfg.InitialCapital
		positions := 0.0
		for i, in := range inputs {
			for cursors[i] < len(in.Equity) && !dayOf(in.Equity[cursors[i]].Timestamp).After(d) {
				lastEquity[i] = in.Equity[cursors[i]].TotalEquity
				lastCash[i] = in.Equity[cursors[i]].Cash
				cursors[i]++
			}
			cash += lastCash[i] - a.cfg.InitialCapital
			positions += lastEquity[i] - lastCash[i]
		}
		if cash < 0 && !warned {
			warned = true
			res.Warnings = append(res.Warnings, domain.NewDataWarning("",
				"portfolio cash negative (%.2f) on %s under isolated capital",
				cash, d.Format("2006-01-02")))
		}
		res.Daily = append(res.Daily, equityPoint(d, cash, cash+positions, &peak))
	}

	for _, in := range inputs {
		res.Trades = append(res.Trades, in.Trades...)
	}
	sortTrades(res.Trades)
	return res, nil
}

// aggregateShared replays the merged event stream against one cash
// pool. Entries that exceed available cash are dropped and their
// consolidated trades flagged; exits of partially dropped positions
// scale down proportionally.
func (a *Aggregator) aggregateShared(inputs []Input) (*Result, error) {
	events := mergeEvents(inputs)
	closes := closesByDay(inputs)

	type holding struct{ qty float64 }
	held := make(map[string]*holding)
	droppedKeys := make(map[tradeKey]bool)

	cash := a.cfg.InitialCapital
	dropped := 0

	days := unionDays(inputs)
	daily := make([]domain.EquityPoint, 0, len(days))
	peak := 0.0
	ev := 0

	for _, d := range days {
		for ev < len(events) && !dayOf(events[ev].Timestamp).After(d) {
			e := events[ev]
			ev++
			h := held[e.Symbol]
			if h == nil {
				h = &holding{}
				held[e.Symbol] = h
			}
			if e.Kind == domain.EventEntryLong {
				cost := -e.CashDelta
				if cost > cash {
					dropped++
					droppedKeys[keyOf(e)] = true
					continue
				}
				cash += e.CashDelta
				h.qty += e.Qty
				continue
			}
			// Exits close the whole engine-side position; scale to what
			// the shared pool actually holds.
			if e.Qty <= 0 || h.qty <= 0 {
				continue
			}
			frac := h.qty / e.Qty
			if frac > 1 {
				frac = 1
			}
			cash += e.CashDelta * frac
			h.qty -= e.Qty * frac
		}

		positions := 0.0
		for sym, h := range held {
			if h.qty <= 0 {
				continue
			}
			if c, ok := closes[sym][d]; ok {
				positions += h.qty * c
			}
		}
		daily = append(daily, equityPoint(d, cash, cash+positions, &peak))
	}

	var trades []domain.ConsolidatedTrade
	for _, in := range inputs {
		for _, t := range in.Trades {
			if droppedKeys[tradeKey{t.Symbol, t.EntryTime.Unix()}] {
				t.Dropped = true
			}
			trades = append(trades, t)
		}
	}
	sortTrades(trades)
	return &Result{Daily: daily, Trades: trades, DroppedEntries: dropped}, nil
}

type tradeKey struct {
	symbol string
	entry  int64
}

func keyOf(e domain.TradeEvent) tradeKey {
	return tradeKey{e.Symbol, e.Timestamp.Unix()}
}

// mergeEvents collects all events into one stream ordered by
// (timestamp, symbol, event id).
func mergeEvents(inputs []Input) []domain.TradeEvent {
	var all []domain.TradeEvent
	for _, in := range inputs {
		all = append(all, in.Events...)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.TradeID < b.TradeID
	})
	return all
}

// unionDays returns the sorted union of IST calendar days observed in
// any input's equity curve.
func unionDays(inputs []Input) []time.Time {
	seen := make(map[time.Time]bool)
	for _, in := range inputs {
		for _, p := range in.Equity {
			seen[dayOf(p.Timestamp)] = true
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// closesByDay maps symbol -> IST day -> last close of that day.
func closesByDay(inputs []Input) map[string]map[time.Time]float64 {
	out := make(map[string]map[time.Time]float64, len(inputs))
	for _, in := range inputs {
		if in.Series == nil {
			continue
		}
		m := make(map[time.Time]float64, in.Series.Len())
		for i := 0; i < in.Series.Len(); i++ {
			m[dayOf(in.Series.TS[i])] = in.Series.Close[i]
		}
		out[in.Symbol] = m
	}
	return out
}

func dayOf(ts time.Time) time.Time {
	t := ts.In(domain.ISTLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.ISTLocation)
}

func equityPoint(d time.Time, cash, total float64, peak *float64) domain.EquityPoint {
	if total > *peak {
		*peak = total
	}
	dd := total - *peak
	var ddPct float64
	if *peak > 0 {
		ddPct = dd / *peak * 100
	}
	return domain.EquityPoint{
		Timestamp:      d,
		Cash:           cash,
		PositionsValue: total - cash,
		TotalEquity:    total,
		DrawdownAbs:    dd,
		DrawdownPct:    ddPct,
	}
}

// monthlyRollup keeps the last observation of each IST month.
func monthlyRollup(daily []domain.EquityPoint) []domain.EquityPoint {
	var out []domain.EquityPoint
	for i, p := range daily {
		if i+1 == len(daily) || !sameMonth(p.Timestamp, daily[i+1].Timestamp) {
			out = append(out, p)
		}
	}
	return out
}

func sameMonth(a, b time.Time) bool {
	ai, bi := a.In(domain.ISTLocation), b.In(domain.ISTLocation)
	return ai.Year() == bi.Year() && ai.Month() == bi.Month()
}

func sortTrades(trades []domain.ConsolidatedTrade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.Symbol < b.Symbol
	})
	for i := range trades {
		trades[i].TradeNum = i + 1
	}
}
