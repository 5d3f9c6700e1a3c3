package domain

import (
	"math"
	"time"
)

// TradeEventKind identifies the kind of a trade event.
type TradeEventKind string

const (
	EventEntryLong TradeEventKind = "EntryLong"
	EventExitLong  TradeEventKind = "ExitLong"
	EventStopHit   TradeEventKind = "StopHit"
	EventTPHit     TradeEventKind = "TPHit"
)

// IsExit reports whether the event closes quantity.
func (k TradeEventKind) IsExit() bool {
	return k == EventExitLong || k == EventStopHit || k == EventTPHit
}

// TradeEvent is one execution event recorded by the engine. TradeID is
// monotonically increasing per symbol; together with (Symbol, Timestamp)
// it gives the portfolio aggregator a deterministic tie-break.
type TradeEvent struct {
	TradeID     int64          `json:"trade_id"`
	Symbol      string         `json:"symbol"`
	Kind        TradeEventKind `json:"kind"`
	Timestamp   time.Time      `json:"timestamp"`
	Price       float64        `json:"price"`
	Qty         float64        `json:"qty"`
	CashDelta   float64        `json:"cash_delta"`
	RealizedPnL float64        `json:"realized_pnl"`
	Reason      string         `json:"reason"`
}

// Flag is a tri-state boolean used in indicator snapshots. The zero
// value means "not captured" and serializes as the empty string; set
// values serialize as "True"/"False" so downstream CSV consumers never
// see an ambiguous blank for a captured flag.
type Flag int

const (
	FlagUnset Flag = iota
	FlagTrue
	FlagFalse
)

// FlagOf converts a bool to a set Flag.
func FlagOf(b bool) Flag {
	if b {
		return FlagTrue
	}
	return FlagFalse
}

// String serializes the flag for CSV output.
func (f Flag) String() string {
	switch f {
	case FlagTrue:
		return "True"
	case FlagFalse:
		return "False"
	}
	return ""
}

// EntrySnapshot captures indicator context at entry time. Fields are
// typed, not keyed by free-form strings, so a misspelled column can not
// silently produce an empty CSV column.
type EntrySnapshot struct {
	Captured        bool    `json:"captured"`
	RSI             float64 `json:"rsi"`
	RSIBullish      Flag    `json:"rsi_bullish"`
	ATR             float64 `json:"atr"`
	VolatilityClass string  `json:"volatility_class"`
	TrendClass      string  `json:"trend_class"`
	VolumeClass     string  `json:"volume_class"`
	MACDBullish     Flag    `json:"macd_bullish"`
	AboveCloud      Flag    `json:"above_cloud"`
	StochBullish    Flag    `json:"stoch_bullish"`
	StochRSIBullish Flag    `json:"stoch_rsi_bullish"`
}

// ConsolidatedTrade is an entry/exit pair built post-hoc from the event
// stream (FIFO when pyramided). ExitTime is nil while the trade is
// still open at series end.
type ConsolidatedTrade struct {
	Symbol      string        `json:"symbol"`
	TradeNum    int           `json:"trade_num"`
	EntryTime   time.Time     `json:"entry_time"`
	ExitTime    *time.Time    `json:"exit_time,omitempty"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Qty         float64       `json:"qty"`
	NetPnLAbs   float64       `json:"net_pnl_abs"`
	NetPnLPct   float64       `json:"net_pnl_pct"`
	HoldingBars int           `json:"holding_bars"`
	HoldingDays int           `json:"holding_days"`
	RunUpAbs    float64       `json:"run_up_abs"`
	RunUpPct    float64       `json:"run_up_pct"`
	DrawdownAbs float64       `json:"drawdown_abs"`
	DrawdownPct float64       `json:"drawdown_pct"`
	EntryTag    string        `json:"entry_tag,omitempty"`
	ExitReason  string        `json:"exit_reason,omitempty"`
	Dropped     bool          `json:"dropped,omitempty"`
	Snapshot    EntrySnapshot `json:"snapshot"`
}

// IsOpen reports whether the trade has no exit.
func (t ConsolidatedTrade) IsOpen() bool { return t.ExitTime == nil }

// Profitable returns the CSV representation of profitability: "Yes",
// "No", or "" for open trades.
func (t ConsolidatedTrade) Profitable() string {
	if t.IsOpen() {
		return ""
	}
	if t.NetPnLAbs > 0 {
		return "Yes"
	}
	return "No"
}

// EntryNotional is the base for percentage excursion figures.
func (t ConsolidatedTrade) EntryNotional() float64 {
	return t.EntryPrice * t.Qty
}

// EquityPoint is one observation of the equity curve.
type EquityPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalEquity    float64   `json:"total_equity"`
	DrawdownAbs    float64   `json:"drawdown_abs"`
	DrawdownPct    float64   `json:"drawdown_pct"`
}

// WindowLabel identifies a reporting look-back window.
type WindowLabel string

const (
	Window1Y  WindowLabel = "1Y"
	Window3Y  WindowLabel = "3Y"
	Window5Y  WindowLabel = "5Y"
	WindowMax WindowLabel = "MAX"
)

// WindowSlice is a concrete [Start, End] range derived from the data
// end date, never from the wall clock.
type WindowSlice struct {
	Label WindowLabel `json:"label"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
}

// Contains reports whether ts falls inside the window.
func (w WindowSlice) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// WindowsFor derives the reporting windows from the data range.
// "period" limits the set: MAX returns all four, 5Y returns {5Y,3Y,1Y},
// and so on.
func WindowsFor(dataStart, dataEnd time.Time, period WindowLabel) []WindowSlice {
	all := []WindowSlice{
		{Label: WindowMax, Start: dataStart, End: dataEnd},
		{Label: Window5Y, Start: maxTime(dataStart, dataEnd.AddDate(-5, 0, 0)), End: dataEnd},
		{Label: Window3Y, Start: maxTime(dataStart, dataEnd.AddDate(-3, 0, 0)), End: dataEnd},
		{Label: Window1Y, Start: maxTime(dataStart, dataEnd.AddDate(-1, 0, 0)), End: dataEnd},
	}
	switch period {
	case Window1Y:
		return all[3:]
	case Window3Y:
		return all[2:]
	case Window5Y:
		return all[1:]
	default:
		return all
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Round2 rounds a value to two decimals for serialization. Internal
// computation stays in full double precision.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*100) / 100
}
