// Package engine runs one strategy against one OHLCV series with
// realistic fill semantics: next-open execution, tick slippage,
// per-side commission, position-level stops and optional pyramiding.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/strategy"
	"github.com/rupeelab/backtest/internal/validation"
)

// SnapshotProvider supplies entry-time indicator snapshots from
// sequences computed once per series. A nil provider leaves snapshots
// empty.
type SnapshotProvider interface {
	SnapshotAt(i int) domain.EntrySnapshot
}

// Signal is the per-bar diagnostic record of strategy intent.
type Signal struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Enter     bool      `json:"enter"`
	Exit      bool      `json:"exit"`
	Stop      float64   `json:"stop,omitempty"`
}

// Stats is the per-symbol run roll-up.
type Stats struct {
	Bars            int     `json:"bars"`
	WarmupEnd       int     `json:"warmup_end"`
	Events          int     `json:"events"`
	ClosedTrades    int     `json:"closed_trades"`
	OpenTrades      int     `json:"open_trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	DroppedOrders   int     `json:"dropped_orders"`
	GrossProfit     float64 `json:"gross_profit"`
	GrossLoss       float64 `json:"gross_loss"`
	RealizedPnL     float64 `json:"realized_pnl"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	TotalCommission float64 `json:"total_commission"`
	FinalCash       float64 `json:"final_cash"`
	FinalEquity     float64 `json:"final_equity"`
}

// Result is what one engine run produces.
type Result struct {
	Symbol       string                     `json:"symbol"`
	Interval     domain.Interval            `json:"interval"`
	StrategyName string                     `json:"strategy_name"`
	Trades       []domain.TradeEvent        `json:"trades"`
	Consolidated []domain.ConsolidatedTrade `json:"consolidated"`
	Equity       []domain.EquityPoint       `json:"equity"`
	Signals      []Signal                   `json:"signals"`
	Stats        Stats                      `json:"stats"`
	Series       *domain.Series             `json:"-"`
	Fingerprint  string                     `json:"fingerprint"`
	Validation   *validation.Result         `json:"validation,omitempty"`
	Warnings     []domain.Warning           `json:"warnings,omitempty"`
}

// Engine executes strategies under a broker configuration. Stateless
// across runs; per-run state lives on the run struct.
type Engine struct {
	cfg domain.BrokerConfig
	log zerolog.Logger
}

// New creates an engine.
func New(cfg domain.BrokerConfig, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.With().Str("component", "engine").Logger()}
}

// Run executes the strategy over the series. The returned error is
// tagged: strategy panics become StrategyError, bad configuration
// ConfigError. Context cancellation is checked between bars.
func (e *Engine) Run(ctx context.Context, series *domain.Series, strat strategy.Strategy, snap SnapshotProvider) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, domain.NewConfigError("broker config: %s", err)
	}

	r := &run{
		e:      e,
		strat:  strat,
		snap:   snap,
		state:  &strategy.BarState{},
		cash:   e.cfg.InitialCapital,
		peak:   e.cfg.InitialCapital,
		symbol: series.Symbol,
	}

	prepared, err := r.safePrepare(series)
	if err != nil {
		return nil, err
	}
	r.series = prepared

	r.binder = strategy.NewBinder(prepared)
	if err := r.safeInitialize(); err != nil {
		return nil, err
	}
	warmup := r.binder.WarmupEnd()

	for i := warmup; i < prepared.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewEngineError(r.symbol, "cancelled at bar %d: %s", i, err)
		}
		bar := prepared.At(i)
		if bar.IsNaN() {
			continue
		}

		r.fillPending(i, bar)
		r.updateTrailing(bar)
		r.checkStop(i, bar)

		d, err := r.safeOnBar(i, bar)
		if err != nil {
			return nil, err
		}
		r.applyDirectives(i, bar, d)
		r.signals = append(r.signals, Signal{
			Index: i, Timestamp: bar.Timestamp,
			Enter: d.EnterLong, Exit: d.ExitLong, Stop: r.pos.Stop,
		})
		r.recordEquity(bar)
	}

	res := r.finish(warmup)
	e.log.Debug().
		Str("symbol", res.Symbol).
		Str("strategy", strat.Name()).
		Int("closed_trades", res.Stats.ClosedTrades).
		Int("open_trades", res.Stats.OpenTrades).
		Float64("final_equity", res.Stats.FinalEquity).
		Msg("Engine run complete")
	return res, nil
}

// run carries the mutable state of one engine execution.
type run struct {
	e      *Engine
	series *domain.Series
	strat  strategy.Strategy
	snap   SnapshotProvider
	binder *strategy.Binder
	state  *strategy.BarState
	symbol string

	pos         Position
	cash        float64
	peak        float64
	pendingBuy  *pendingOrder
	pendingSell *pendingOrder

	events     []domain.TradeEvent
	closed     []closedLot
	signals    []Signal
	equity     []domain.EquityPoint
	warnings   []domain.Warning
	tradeID    int64
	realized   float64
	commission float64
	dropped    int
}

// fillPending executes queued orders at the bar open. Sells first:
// an exit and a pyramid buy queued on the same bar must not overlap.
func (r *run) fillPending(i int, bar domain.Bar) {
	if r.pendingSell != nil {
		o := *r.pendingSell
		r.pendingSell = nil
		if r.pos.Open() {
			r.fillSell(i, bar.Open-r.e.cfg.Slippage(), domain.EventExitLong, o.reason)
		}
	}
	if r.pendingBuy != nil {
		o := *r.pendingBuy
		r.pendingBuy = nil
		r.fillBuy(i, bar, bar.Open+r.e.cfg.Slippage(), o.qty)
	}
}

func (r *run) updateTrailing(bar domain.Bar) {
	if !r.pos.Open() {
		return
	}
	if bar.High > r.state.HighestHighSinceEntry {
		r.state.HighestHighSinceEntry = bar.High
	}
	r.state.BarsSinceFirstEntry++
}

// checkStop fills at the stop price when the bar trades through it,
// or at the open when the bar gaps below. Stops are conservative
// triggers: no slippage on top.
func (r *run) checkStop(i int, bar domain.Bar) {
	if !r.pos.Open() || r.pos.Stop <= 0 {
		return
	}
	stop := r.pos.Stop
	switch {
	case bar.Open <= stop:
		r.fillSell(i, bar.Open, domain.EventStopHit, "stop_gap_open")
	case bar.Low <= stop && stop <= bar.High:
		r.fillSell(i, stop, domain.EventStopHit, "stop_hit")
	}
}

// fillSell closes the whole position at the given price.
func (r *run) fillSell(i int, price float64, kind domain.TradeEventKind, reason string) {
	qty := r.pos.Qty()
	proceeds := price * qty
	comm := r.e.cfg.CommissionPct * proceeds

	var realized float64
	for _, l := range r.pos.Lots {
		realized += (price-l.EntryPrice)*l.Qty - l.Commission
	}
	realized -= comm

	r.cash += proceeds - comm
	r.realized += realized
	r.commission += comm
	r.tradeID++
	r.events = append(r.events, domain.TradeEvent{
		TradeID: r.tradeID, Symbol: r.symbol, Kind: kind,
		Timestamp: r.series.TS[i], Price: price, Qty: qty,
		CashDelta: proceeds - comm, RealizedPnL: realized, Reason: reason,
	})
	for _, l := range r.pos.Lots {
		r.closed = append(r.closed, closedLot{
			lot: l, exitIdx: i, exitPrice: price,
			exitCommission: comm * l.Qty / qty, reason: reason,
		})
	}
	r.pos = Position{}
	*r.state = strategy.BarState{}
}

// fillBuy opens a new lot. Orders that exceed available cash are
// dropped whole; primary entries never partially fill.
func (r *run) fillBuy(i int, bar domain.Bar, price, qty float64) {
	cost := price * qty
	comm := r.e.cfg.CommissionPct * cost
	if cost+comm > r.cash {
		r.dropped++
		r.warnings = append(r.warnings, domain.NewDataWarning(r.symbol,
			"buy of %.0f @ %.2f dropped: cost %.2f exceeds cash %.2f",
			qty, price, cost+comm, r.cash))
		return
	}

	r.cash -= cost + comm
	r.commission += comm
	first := !r.pos.Open()
	r.pos.Lots = append(r.pos.Lots, Lot{
		BarIndex: i, EntryTime: r.series.TS[i],
		EntryPrice: price, Qty: qty, Commission: comm,
	})
	lot := &r.pos.Lots[len(r.pos.Lots)-1]

	if first {
		r.state.InPosition = true
		r.state.FirstEntryPrice = price
		r.state.HighestHighSinceEntry = price
		r.state.BarsSinceFirstEntry = 0
	}
	r.tradeID++
	r.events = append(r.events, domain.TradeEvent{
		TradeID: r.tradeID, Symbol: r.symbol, Kind: domain.EventEntryLong,
		Timestamp: r.series.TS[i], Price: price, Qty: qty,
		CashDelta: -(cost + comm),
	})

	d, err := r.safeOnEntry(i, bar)
	if err != nil {
		// A panic in OnEntry degrades to "no stop, no tag"; the fill
		// itself already happened and stays on the books.
		r.warnings = append(r.warnings, domain.NewDataWarning(r.symbol, "%s", err))
		return
	}
	lot.Tag = d.Tag
	if first {
		r.pos.Stop = d.Stop
	} else {
		r.pos.TightenStop(d.Stop)
	}
}

// applyDirectives turns the OnBar outcome into queued orders and stop
// updates for the next bar. With execute_on_next_open disabled, fills
// happen immediately at the bar close instead.
func (r *run) applyDirectives(i int, bar domain.Bar, d strategy.Directive) {
	cfg := r.e.cfg
	switch {
	case d.ExitLong && r.pos.Open():
		if cfg.ExecuteOnNextOpen {
			r.pendingSell = &pendingOrder{qty: r.pos.Qty(), reason: d.Reason}
		} else {
			r.fillSell(i, bar.Close-cfg.Slippage(), domain.EventExitLong, d.Reason)
		}
	case d.EnterLong:
		qty, ok := r.entryQty(bar, d.QtyMultiplier)
		if ok {
			if cfg.ExecuteOnNextOpen {
				r.pendingBuy = &pendingOrder{qty: qty}
			} else {
				r.fillBuy(i, bar, bar.Close+cfg.Slippage(), qty)
			}
		}
	}
	if r.pos.Open() {
		r.pos.TightenStop(d.Stop)
	}
}

// entryQty sizes a new lot from current equity. Returns ok=false when
// the entry is disallowed (pyramiding limits or higher-high gate).
func (r *run) entryQty(bar domain.Bar, mult float64) (float64, bool) {
	cfg := r.e.cfg
	if r.pos.Open() {
		if !cfg.AllowPyramiding || len(r.pos.Lots) >= cfg.MaxPyramidLots {
			return 0, false
		}
		if bar.Close <= r.pos.LastEntryPrice() {
			return 0, false
		}
	}
	if mult == 0 {
		mult = 1
	}
	equity := r.cash + r.pos.Qty()*bar.Close
	qty := math.Floor(cfg.QtyPctOfEquity * equity / bar.Close * mult)
	if qty < 1 {
		qty = 1
	}
	return qty, true
}

func (r *run) recordEquity(bar domain.Bar) {
	r.syncState(bar)
	eq := r.state.Equity
	if eq > r.peak {
		r.peak = eq
	}
	dd := eq - r.peak
	var ddPct float64
	if r.peak > 0 {
		ddPct = dd / r.peak * 100
	}
	r.equity = append(r.equity, domain.EquityPoint{
		Timestamp:      bar.Timestamp,
		Cash:           r.cash,
		PositionsValue: r.pos.Qty() * bar.Close,
		TotalEquity:    eq,
		DrawdownAbs:    dd,
		DrawdownPct:    ddPct,
	})
}

// syncState refreshes the view handed to strategy callbacks.
func (r *run) syncState(bar domain.Bar) {
	r.state.InPosition = r.pos.Open()
	r.state.Lots = len(r.pos.Lots)
	r.state.Qty = r.pos.Qty()
	r.state.AvgEntryPrice = r.pos.AvgEntryPrice()
	r.state.Cash = r.cash
	r.state.Equity = r.cash + r.pos.Qty()*bar.Close
}

// finish marks any open position to market, consolidates trades and
// assembles the result.
func (r *run) finish(warmup int) *Result {
	lastIdx := r.series.Len() - 1
	var lastClose float64
	if lastIdx >= 0 {
		lastClose = r.series.Close[lastIdx]
	}

	var unrealized float64
	for _, l := range r.pos.Lots {
		unrealized += (lastClose-l.EntryPrice)*l.Qty - l.Commission
	}

	closeReason := ""
	if r.pos.Open() {
		closeReason = r.strat.CloseReason(r.state)
	}
	trades := consolidate(r.series, r.closed, r.pos.Lots, lastIdx, lastClose, closeReason, r.snap)

	stats := Stats{
		Bars:            r.series.Len(),
		WarmupEnd:       warmup,
		Events:          len(r.events),
		ClosedTrades:    len(r.closed),
		OpenTrades:      len(r.pos.Lots),
		DroppedOrders:   r.dropped,
		RealizedPnL:     r.realized,
		UnrealizedPnL:   unrealized,
		TotalCommission: r.commission,
		FinalCash:       r.cash,
		FinalEquity:     r.cash + r.pos.Qty()*lastClose,
	}
	for _, c := range r.closed {
		pnl := (c.exitPrice-c.lot.EntryPrice)*c.lot.Qty - c.lot.Commission - c.exitCommission
		if pnl > 0 {
			stats.Wins++
			stats.GrossProfit += pnl
		} else {
			stats.Losses++
			stats.GrossLoss += -pnl
		}
	}

	return &Result{
		Symbol:       r.symbol,
		Interval:     r.series.Interval,
		StrategyName: r.strat.Name(),
		Trades:       r.events,
		Consolidated: trades,
		Equity:       r.equity,
		Signals:      r.signals,
		Stats:        stats,
		Series:       r.series,
		Fingerprint:  validation.Fingerprint(r.series),
		Warnings:     r.warnings,
	}
}

func (r *run) safePrepare(s *domain.Series) (out *domain.Series, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.NewStrategyError(s.Symbol, "panic in Prepare: %v", p)
		}
	}()
	out = r.strat.Prepare(s)
	return out, nil
}

func (r *run) safeInitialize() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.NewStrategyError(r.symbol, "panic in Initialize: %v", p)
		}
	}()
	if ierr := r.strat.Initialize(r.binder); ierr != nil {
		return domain.NewStrategyError(r.symbol, "initialize: %s", ierr)
	}
	if berr := r.binder.Err(); berr != nil {
		return domain.NewStrategyError(r.symbol, "binder: %s", berr)
	}
	return nil
}

func (r *run) safeOnBar(i int, bar domain.Bar) (d strategy.Directive, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.NewStrategyError(r.symbol, "panic in OnBar at bar %d: %v", i, p)
		}
	}()
	r.binder.SetCursor(i)
	r.syncState(bar)
	d = r.strat.OnBar(i, bar, r.state)
	return d, nil
}

func (r *run) safeOnEntry(i int, bar domain.Bar) (d strategy.EntryDirective, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.NewStrategyError(r.symbol, "panic in OnEntry at bar %d: %v", i, p)
		}
	}()
	r.syncState(bar)
	d = r.strat.OnEntry(i, bar, r.state)
	return d, nil
}
