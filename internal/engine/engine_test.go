package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/strategy"
)

// scripted is a deterministic test strategy driven by bar index.
type scripted struct {
	enterAt     map[int]bool
	exitAt      map[int]bool
	alwaysEnter bool
	stopOnEntry float64
	panicAt     int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Prepare(sr *domain.Series) *domain.Series { return sr }

func (s *scripted) Initialize(*strategy.Binder) error { return nil }

func (s *scripted) CloseReason(*strategy.BarState) string { return "end_of_data" }

func (s *scripted) OnEntry(int, domain.Bar, *strategy.BarState) strategy.EntryDirective {
	return strategy.EntryDirective{Stop: s.stopOnEntry, Tag: "SCRIPT"}
}

func (s *scripted) OnBar(i int, _ domain.Bar, _ *strategy.BarState) strategy.Directive {
	if s.panicAt > 0 && i == s.panicAt {
		panic("scripted failure")
	}
	return strategy.Directive{
		EnterLong: s.alwaysEnter || s.enterAt[i],
		ExitLong:  s.exitAt[i],
	}
}

func buildSeries(symbol string, bars []domain.Bar) *domain.Series {
	s := domain.NewSeries(symbol, domain.Interval1d, len(bars))
	base := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for i, b := range bars {
		b.Timestamp = base.AddDate(0, 0, i)
		s.Append(b)
	}
	return s
}

func flatBars(n int, price float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}
	return bars
}

// trendingSeries reproduces the canonical test shape: rising drift
// with sinusoid dips deep enough to generate crosses both ways.
func trendingSeries(n int) *domain.Series {
	s := domain.NewSeries("TREND", domain.Interval1d, n)
	base := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	prev := 100.0
	for i := 0; i < n; i++ {
		c := 100 + 0.5*float64(i) + 10*math.Sin(float64(i)/10)
		s.Append(domain.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      prev,
			High:      math.Max(prev, c) + 1,
			Low:       math.Min(prev, c) - 1,
			Close:     c,
			Volume:    1000,
		})
		prev = c
	}
	return s
}

func testConfig() domain.BrokerConfig {
	cfg := domain.DefaultBrokerConfig()
	cfg.InitialCapital = 100_000
	return cfg
}

func TestRun_EMACrossOnTrendingSeries(t *testing.T) {
	s := trendingSeries(300)
	reg := strategy.NewPopulatedRegistry(zerolog.Nop())
	st, err := reg.New(strategy.KeyEMACross, nil)
	require.NoError(t, err)

	e := New(testConfig(), zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Stats.ClosedTrades, 1, "expected at least one round-trip")
	net := res.Stats.RealizedPnL + res.Stats.UnrealizedPnL
	assert.Greater(t, net, 0.0, "uptrend should be profitable")
	assert.Len(t, res.Fingerprint, 8)

	// Deterministic: a second run reproduces the result exactly.
	st2, err := reg.New(strategy.KeyEMACross, nil)
	require.NoError(t, err)
	res2, err := e.Run(context.Background(), trendingSeries(300), st2, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Fingerprint, res2.Fingerprint)
	assert.Equal(t, res.Stats, res2.Stats)
}

func TestRun_IchimokuFlatSixtyBarsNoTrades(t *testing.T) {
	s := buildSeries("FLAT", flatBars(60, 100))
	reg := strategy.NewPopulatedRegistry(zerolog.Nop())
	st, err := reg.New(strategy.KeyIchimoku, nil)
	require.NoError(t, err)

	e := New(testConfig(), zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Consolidated)
	assert.Equal(t, 0, res.Stats.ClosedTrades)
	assert.Equal(t, 100_000.0, res.Stats.FinalEquity)
}

func TestRun_StopFillsAtStopPrice(t *testing.T) {
	bars := []domain.Bar{
		{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
		{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}, // buy fills here
		{Open: 99, High: 100, Low: 95, Close: 97, Volume: 1000},   // trades through 96
	}
	s := buildSeries("STOP", bars)
	st := &scripted{enterAt: map[int]bool{0: true}, stopOnEntry: 96}

	cfg := testConfig()
	cfg.CommissionPct = 0
	e := New(cfg, zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	entry, exit := res.Trades[0], res.Trades[1]
	assert.Equal(t, domain.EventEntryLong, entry.Kind)
	assert.Equal(t, 100.0, entry.Price)
	assert.Equal(t, domain.EventStopHit, exit.Kind)
	assert.Equal(t, 96.0, exit.Price, "stop fills at the stop price, no slippage")
	assert.Equal(t, "stop_hit", exit.Reason)
	assert.InDelta(t, (96.0-100.0)*entry.Qty, exit.RealizedPnL, 1e-9)
}

func TestRun_StopGapFillsAtOpen(t *testing.T) {
	bars := []domain.Bar{
		{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
		{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
		{Open: 94, High: 95, Low: 92, Close: 93, Volume: 1000}, // gaps below 96
	}
	s := buildSeries("GAP", bars)
	st := &scripted{enterAt: map[int]bool{0: true}, stopOnEntry: 96}

	cfg := testConfig()
	cfg.CommissionPct = 0
	e := New(cfg, zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	exit := res.Trades[1]
	assert.Equal(t, domain.EventStopHit, exit.Kind)
	assert.Equal(t, 94.0, exit.Price, "gap below the stop fills at the open")
	assert.Equal(t, "stop_gap_open", exit.Reason)
}

func TestRun_PyramidingBounds(t *testing.T) {
	// Rising closes keep the higher-high gate open.
	bars := make([]domain.Bar, 20)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = domain.Bar{Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	s := buildSeries("PYR", bars)
	st := &scripted{alwaysEnter: true}

	cfg := testConfig()
	cfg.AllowPyramiding = true
	cfg.MaxPyramidLots = 3
	e := New(cfg, zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	entries := 0
	for _, ev := range res.Trades {
		if ev.Kind == domain.EventEntryLong {
			entries++
		}
	}
	assert.Equal(t, 3, entries, "entries bounded by max_pyramid_lots")
	assert.Equal(t, 3, res.Stats.OpenTrades)
}

func TestRun_PyramidingRequiresHigherHigh(t *testing.T) {
	s := buildSeries("FLATPYR", flatBars(20, 100))
	st := &scripted{alwaysEnter: true}

	cfg := testConfig()
	cfg.AllowPyramiding = true
	cfg.MaxPyramidLots = 5
	e := New(cfg, zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	entries := 0
	for _, ev := range res.Trades {
		if ev.Kind == domain.EventEntryLong {
			entries++
		}
	}
	assert.Equal(t, 1, entries, "flat closes never satisfy the higher-high gate")
}

func TestRun_CashConservation(t *testing.T) {
	s := trendingSeries(250)
	st := &scripted{
		enterAt: map[int]bool{10: true, 80: true, 150: true},
		exitAt:  map[int]bool{50: true, 120: true, 200: true},
	}

	e := New(testConfig(), zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	var cashDelta, realized float64
	for _, ev := range res.Trades {
		cashDelta += ev.CashDelta
		realized += ev.RealizedPnL
	}
	assert.InDelta(t, res.Stats.FinalCash-100_000, cashDelta, 1e-6,
		"event cash deltas must reconcile with final cash")
	assert.InDelta(t, res.Stats.RealizedPnL, realized, 1e-6)

	for _, p := range res.Equity {
		assert.GreaterOrEqual(t, p.Cash, 0.0, "cash can never go negative")
	}
}

func TestRun_InsufficientCashDropsOrder(t *testing.T) {
	s := buildSeries("POOR", flatBars(10, 100))
	st := &scripted{enterAt: map[int]bool{1: true}}

	cfg := testConfig()
	cfg.InitialCapital = 50 // cannot afford a single share at 100
	e := New(cfg, zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Stats.DroppedOrders)
	assert.NotEmpty(t, res.Warnings)
}

func TestRun_NaNBarIsSkipped(t *testing.T) {
	bars := flatBars(10, 100)
	bars[2] = domain.Bar{Open: math.NaN(), High: math.NaN(), Low: math.NaN(), Close: math.NaN(), Volume: 0}
	s := buildSeries("NAN", bars)
	st := &scripted{enterAt: map[int]bool{1: true}}

	e := New(testConfig(), zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	// Order queued on bar 1 fills on the first non-NaN bar after it.
	assert.Equal(t, s.TS[3], res.Trades[0].Timestamp)
	assert.Len(t, res.Equity, 9)
}

func TestRun_StrategyPanicIsTaggedFailure(t *testing.T) {
	s := buildSeries("BOOM", flatBars(10, 100))
	st := &scripted{panicAt: 4}

	e := New(testConfig(), zerolog.Nop())
	_, err := e.Run(context.Background(), s, st, nil)
	require.Error(t, err)

	var re *domain.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.KindStrategyError, re.Kind)
	assert.Equal(t, "BOOM", re.Symbol)
}

func TestRun_ContextCancellation(t *testing.T) {
	s := trendingSeries(300)
	st := &scripted{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(testConfig(), zerolog.Nop())
	_, err := e.Run(ctx, s, st, nil)
	assert.Error(t, err)
}

func TestRun_TerminalOpenTradeMarkedToMarket(t *testing.T) {
	bars := flatBars(10, 100)
	for i := 5; i < 10; i++ {
		c := 100 + 2*float64(i-4)
		bars[i] = domain.Bar{Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000}
	}
	s := buildSeries("OPEN", bars)
	st := &scripted{enterAt: map[int]bool{4: true}}

	cfg := testConfig()
	cfg.CommissionPct = 0
	e := New(cfg, zerolog.Nop())
	res, err := e.Run(context.Background(), s, st, nil)
	require.NoError(t, err)

	require.Len(t, res.Consolidated, 1)
	trade := res.Consolidated[0]
	assert.True(t, trade.IsOpen())
	assert.Nil(t, trade.ExitTime)
	assert.Equal(t, "end_of_data", trade.ExitReason)
	assert.Greater(t, trade.NetPnLAbs, 0.0)
	assert.GreaterOrEqual(t, trade.RunUpAbs, 0.0)
	assert.LessOrEqual(t, trade.DrawdownAbs, 0.0)
	assert.Equal(t, res.Stats.UnrealizedPnL, trade.NetPnLAbs)
}
