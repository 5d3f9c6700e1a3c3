package metrics

import (
	"sort"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// Snapshot indicator parameters. Fixed: snapshots describe entry
// conditions in a comparable vocabulary across strategies, so they do
// not follow per-strategy overrides.
const (
	snapRSIN     = 14
	snapATRN     = 14
	snapMACDFast = 12
	snapMACDSlow = 26
	snapMACDSig  = 9
	snapIchConv  = 9
	snapIchBase  = 26
	snapIchLead  = 52
	snapStochK   = 14
	snapStochD   = 3
	snapAroonN   = 25
	snapVolSMA   = 20
)

// SnapshotSeries precomputes every snapshot indicator once per series
// and answers point lookups at entry bars. Implements the engine's
// SnapshotProvider.
type SnapshotSeries struct {
	series *domain.Series

	rsi      []float64
	atr      []float64
	macd     indicators.MACDResult
	ich      indicators.IchimokuResult
	stoch    indicators.StochasticResult
	stochRSI indicators.StochRSIResult
	aroon    indicators.AroonResult
	atrPct   []float64
	volSMA   []float64
}

// NewSnapshotSeries computes the snapshot indicator set for a series.
func NewSnapshotSeries(s *domain.Series) *SnapshotSeries {
	ss := &SnapshotSeries{
		series:   s,
		rsi:      indicators.RSI(s.Close, snapRSIN),
		atr:      indicators.ATR(s.High, s.Low, s.Close, snapATRN),
		macd:     indicators.MACD(s.Close, snapMACDFast, snapMACDSlow, snapMACDSig),
		ich:      indicators.Ichimoku(s.High, s.Low, s.Close, snapIchConv, snapIchBase, snapIchLead),
		stoch:    indicators.Stochastic(s.High, s.Low, s.Close, snapStochK, snapStochD),
		stochRSI: indicators.StochRSI(s.Close, snapRSIN, snapStochK, snapStochD, snapStochD),
		aroon:    indicators.Aroon(s.High, s.Low, snapAroonN),
		volSMA:   indicators.SMA(s.Volume, snapVolSMA),
	}
	ss.atrPct = make([]float64, s.Len())
	for i := range ss.atrPct {
		if indicators.IsValid(ss.atr[i]) && s.Close[i] > 0 {
			ss.atrPct[i] = ss.atr[i] / s.Close[i]
		} else {
			ss.atrPct[i] = indicators.NotYetValid
		}
	}
	return ss
}

// SnapshotAt captures the indicator context at bar i. Values that are
// not yet valid leave their flags unset, which serialize as blanks.
func (ss *SnapshotSeries) SnapshotAt(i int) domain.EntrySnapshot {
	if i < 0 || i >= ss.series.Len() {
		return domain.EntrySnapshot{}
	}
	snap := domain.EntrySnapshot{Captured: true}

	if v := ss.rsi[i]; indicators.IsValid(v) {
		snap.RSI = v
		snap.RSIBullish = domain.FlagOf(v > 50)
	}
	if v := ss.atr[i]; indicators.IsValid(v) {
		snap.ATR = v
	}
	if l, s := ss.macd.Line[i], ss.macd.Signal[i]; indicators.IsValid(l) && indicators.IsValid(s) {
		snap.MACDBullish = domain.FlagOf(l > s)
	}
	if a, b := ss.ich.SenkouA[i], ss.ich.SenkouB[i]; indicators.IsValid(a) && indicators.IsValid(b) {
		c := ss.series.Close[i]
		snap.AboveCloud = domain.FlagOf(c > a && c > b)
	}
	if k, d := ss.stoch.K[i], ss.stoch.D[i]; indicators.IsValid(k) && indicators.IsValid(d) {
		snap.StochBullish = domain.FlagOf(k > d)
	}
	if k, d := ss.stochRSI.K[i], ss.stochRSI.D[i]; indicators.IsValid(k) && indicators.IsValid(d) {
		snap.StochRSIBullish = domain.FlagOf(k > d)
	}

	snap.VolatilityClass = ss.volatilityClass(i)
	snap.TrendClass = ss.trendClass(i)
	snap.VolumeClass = ss.volumeClass(i)
	return snap
}

// volatilityClass buckets the ATR/close ratio by its percentile rank
// over the history up to and including i.
func (ss *SnapshotSeries) volatilityClass(i int) string {
	cur := ss.atrPct[i]
	if !indicators.IsValid(cur) {
		return ""
	}
	var hist []float64
	for j := 0; j <= i; j++ {
		if indicators.IsValid(ss.atrPct[j]) {
			hist = append(hist, ss.atrPct[j])
		}
	}
	if len(hist) < 5 {
		return ""
	}
	sort.Float64s(hist)
	rank := sort.SearchFloat64s(hist, cur)
	pct := float64(rank) / float64(len(hist))
	switch {
	case pct < 1.0/3:
		return "low"
	case pct < 2.0/3:
		return "medium"
	default:
		return "high"
	}
}

func (ss *SnapshotSeries) trendClass(i int) string {
	up, down := ss.aroon.Up[i], ss.aroon.Down[i]
	if !indicators.IsValid(up) || !indicators.IsValid(down) {
		return ""
	}
	switch {
	case up > 70 && down < 30:
		return "uptrend"
	case down > 70 && up < 30:
		return "downtrend"
	default:
		return "sideways"
	}
}

func (ss *SnapshotSeries) volumeClass(i int) string {
	avg := ss.volSMA[i]
	if !indicators.IsValid(avg) || avg <= 0 {
		return ""
	}
	ratio := ss.series.Volume[i] / avg
	switch {
	case ratio >= 1.5:
		return "high"
	case ratio <= 0.5:
		return "low"
	default:
		return "normal"
	}
}
