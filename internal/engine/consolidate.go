package engine

import (
	"math"
	"sort"

	"github.com/rupeelab/backtest/internal/domain"
)

// closedLot pairs one entry lot with the exit that closed it. Exits
// always close the full position, so the exit commission is allocated
// across lots by quantity.
type closedLot struct {
	lot            Lot
	exitIdx        int
	exitPrice      float64
	exitCommission float64
	reason         string
}

// consolidate builds the post-hoc trade ledger: one ConsolidatedTrade
// per lot, closed lots first in entry order, then still-open lots
// marked to market with a nil exit time.
func consolidate(
	s *domain.Series,
	closed []closedLot,
	open []Lot,
	lastIdx int,
	lastClose float64,
	closeReason string,
	snap SnapshotProvider,
) []domain.ConsolidatedTrade {
	trades := make([]domain.ConsolidatedTrade, 0, len(closed)+len(open))

	for _, c := range closed {
		t := baseTrade(s, c.lot, c.exitIdx, snap)
		exitTime := s.TS[c.exitIdx]
		t.ExitTime = &exitTime
		t.ExitPrice = c.exitPrice
		t.NetPnLAbs = (c.exitPrice-c.lot.EntryPrice)*c.lot.Qty - c.lot.Commission - c.exitCommission
		t.ExitReason = c.reason
		finishTrade(&t)
		trades = append(trades, t)
	}
	for _, l := range open {
		t := baseTrade(s, l, lastIdx, snap)
		t.ExitPrice = lastClose
		t.NetPnLAbs = (lastClose-l.EntryPrice)*l.Qty - l.Commission
		t.ExitReason = closeReason
		finishTrade(&t)
		trades = append(trades, t)
	}

	// Entry order; closed and open lots interleave when pyramided.
	sort.SliceStable(trades, func(i, j int) bool { return tradeLess(trades[i], trades[j]) })
	for i := range trades {
		trades[i].TradeNum = i + 1
	}
	return trades
}

// baseTrade fills the entry-side fields and the excursion figures over
// [entry, end].
func baseTrade(s *domain.Series, l Lot, endIdx int, snap SnapshotProvider) domain.ConsolidatedTrade {
	t := domain.ConsolidatedTrade{
		Symbol:     s.Symbol,
		EntryTime:  l.EntryTime,
		EntryPrice: l.EntryPrice,
		Qty:        l.Qty,
		EntryTag:   l.Tag,
	}
	if snap != nil {
		t.Snapshot = snap.SnapshotAt(l.BarIndex)
	}

	var hi, lo float64 = math.Inf(-1), math.Inf(1)
	for i := l.BarIndex; i <= endIdx && i < s.Len(); i++ {
		if s.High[i] > hi {
			hi = s.High[i]
		}
		if s.Low[i] < lo {
			lo = s.Low[i]
		}
	}
	if !math.IsInf(hi, -1) {
		t.RunUpAbs = math.Max(0, (hi-l.EntryPrice)*l.Qty)
		t.DrawdownAbs = math.Min(0, (lo-l.EntryPrice)*l.Qty)
	}

	t.HoldingBars = endIdx - l.BarIndex
	if endIdx >= 0 && endIdx < s.Len() {
		t.HoldingDays = int(s.TS[endIdx].Sub(l.EntryTime).Hours() / 24)
	}
	return t
}

// finishTrade derives the percentage fields from the absolute ones.
func finishTrade(t *domain.ConsolidatedTrade) {
	base := t.EntryNotional()
	if base <= 0 {
		return
	}
	t.NetPnLPct = t.NetPnLAbs / base * 100
	t.RunUpPct = t.RunUpAbs / base * 100
	t.DrawdownPct = t.DrawdownAbs / base * 100
}

// tradeLess orders by entry time, then exit time, with open trades
// last among equals.
func tradeLess(a, b domain.ConsolidatedTrade) bool {
	if !a.EntryTime.Equal(b.EntryTime) {
		return a.EntryTime.Before(b.EntryTime)
	}
	if a.IsOpen() != b.IsOpen() {
		return b.IsOpen()
	}
	if !a.IsOpen() && !a.ExitTime.Equal(*b.ExitTime) {
		return a.ExitTime.Before(*b.ExitTime)
	}
	return false
}
