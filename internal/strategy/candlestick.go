package strategy

import (
	"math"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyCandlestick is the registry key of the candlestick pattern
// strategy.
const KeyCandlestick = "candlestick"

// candlestick buys bullish reversal patterns (engulfing, hammer) that
// print below the trend SMA and sells bearish ones (engulfing,
// shooting star) or lets the pattern-low stop take it out. Patterns
// are read from raw candles at indices the engine has already
// processed.
type candlestick struct {
	base
	trendN, atrN int
	atrMult      float64

	trend, atr *Handle
	series     *domain.Series
}

// NewCandlestick constructs the candlestick pattern strategy.
// Parameters: trend_n (50), atr_n (14), atr_mult (1.5).
func NewCandlestick(p Params) (Strategy, error) {
	if err := p.Validate("trend_n", "atr_n", "atr_mult"); err != nil {
		return nil, err
	}
	s := &candlestick{
		trendN:  p.Int("trend_n", 50),
		atrN:    p.Int("atr_n", 14),
		atrMult: p.Float("atr_mult", 1.5),
	}
	return s, nil
}

func (s *candlestick) Name() string { return KeyCandlestick }

func (s *candlestick) Initialize(b *Binder) error {
	s.series = b.Series()
	s.trend = b.Bind("sma_trend", indicators.SMA(s.series.Close, s.trendN))
	s.atr = b.Bind("atr", indicators.ATR(s.series.High, s.series.Low, s.series.Close, s.atrN))
	return b.Err()
}

func (s *candlestick) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "CANDLE"}
	if atr := s.atr.At(i); indicators.IsValid(atr) {
		d.Stop = bar.Low - s.atrMult*atr
	}
	return d
}

func (s *candlestick) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	if i < 1 {
		return Directive{}
	}
	prev := s.series.At(i - 1)

	if state.InPosition {
		if bearishEngulfing(prev, bar) || shootingStar(bar) {
			return Directive{ExitLong: true, Reason: "bearish_pattern"}
		}
		return Directive{}
	}
	t := s.trend.At(i)
	if !indicators.IsValid(t) || bar.Close >= t {
		return Directive{}
	}
	if bullishEngulfing(prev, bar) || hammer(bar) {
		return Directive{EnterLong: true}
	}
	return Directive{}
}

// bullishEngulfing: a down candle followed by an up candle whose body
// engulfs the prior body.
func bullishEngulfing(prev, cur domain.Bar) bool {
	return prev.Close < prev.Open &&
		cur.Close > cur.Open &&
		cur.Open <= prev.Close &&
		cur.Close >= prev.Open
}

func bearishEngulfing(prev, cur domain.Bar) bool {
	return prev.Close > prev.Open &&
		cur.Close < cur.Open &&
		cur.Open >= prev.Close &&
		cur.Close <= prev.Open
}

// hammer: small body in the top third of the range with a lower shadow
// at least twice the body.
func hammer(b domain.Bar) bool {
	body := math.Abs(b.Close - b.Open)
	rng := b.High - b.Low
	if rng <= 0 || body <= 0 {
		return false
	}
	lowerShadow := math.Min(b.Open, b.Close) - b.Low
	upperShadow := b.High - math.Max(b.Open, b.Close)
	return lowerShadow >= 2*body && upperShadow <= body && body/rng <= 1.0/3
}

// shootingStar is the hammer mirrored: small body at the bottom, long
// upper shadow.
func shootingStar(b domain.Bar) bool {
	body := math.Abs(b.Close - b.Open)
	rng := b.High - b.Low
	if rng <= 0 || body <= 0 {
		return false
	}
	lowerShadow := math.Min(b.Open, b.Close) - b.Low
	upperShadow := b.High - math.Max(b.Open, b.Close)
	return upperShadow >= 2*body && lowerShadow <= body && body/rng <= 1.0/3
}
