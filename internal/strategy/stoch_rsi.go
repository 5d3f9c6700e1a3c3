package strategy

import (
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyStochRSI is the registry key of the long-only stochastic RSI
// strategy.
const KeyStochRSI = "stoch_rsi"

// stochRSILong buys %K/%D crosses up out of the oversold band and
// exits on crosses down in the overbought band. ATR stop at entry,
// tightened under the highest high while the position runs.
type stochRSILong struct {
	base
	rsiN, stochN, kSmooth, dSmooth, atrN int
	oversold, overbought, atrMult        float64

	k, d, atr *Handle
}

// NewStochRSILong constructs the stochastic RSI long strategy.
// Parameters: rsi_n (14), stoch_n (14), k (3), d (3), oversold (20),
// overbought (80), atr_n (14), atr_mult (2.0).
func NewStochRSILong(p Params) (Strategy, error) {
	if err := p.Validate("rsi_n", "stoch_n", "k", "d", "oversold", "overbought", "atr_n", "atr_mult"); err != nil {
		return nil, err
	}
	s := &stochRSILong{
		rsiN:       p.Int("rsi_n", 14),
		stochN:     p.Int("stoch_n", 14),
		kSmooth:    p.Int("k", 3),
		dSmooth:    p.Int("d", 3),
		atrN:       p.Int("atr_n", 14),
		oversold:   p.Float("oversold", 20),
		overbought: p.Float("overbought", 80),
		atrMult:    p.Float("atr_mult", 2.0),
	}
	return s, nil
}

func (s *stochRSILong) Name() string { return KeyStochRSI }

func (s *stochRSILong) Initialize(b *Binder) error {
	sr := b.Series()
	sk := indicators.StochRSI(sr.Close, s.rsiN, s.stochN, s.kSmooth, s.dSmooth)
	s.k = b.Bind("stochrsi_k", sk.K)
	s.d = b.Bind("stochrsi_d", sk.D)
	s.atr = b.Bind("atr", indicators.ATR(sr.High, sr.Low, sr.Close, s.atrN))
	return b.Err()
}

func (s *stochRSILong) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "STOCH_RSI"}
	if atr := s.atr.At(i); indicators.IsValid(atr) {
		d.Stop = bar.Close - s.atrMult*atr
	}
	return d
}

func (s *stochRSILong) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	if state.InPosition {
		if kv := s.k.At(i); indicators.IsValid(kv) && kv > s.overbought && crossBelow(s.k, s.d, i) {
			return Directive{ExitLong: true, Reason: "stochrsi_cross_down"}
		}
		if atr := s.atr.At(i); indicators.IsValid(atr) && state.HighestHighSinceEntry > 0 {
			return Directive{Stop: state.HighestHighSinceEntry - s.atrMult*atr}
		}
		return Directive{}
	}
	if kv := s.k.At(i); indicators.IsValid(kv) && kv < s.oversold+30 && crossAbove(s.k, s.d, i) {
		// Require the cross to start from the oversold band.
		if pk := s.k.At(i - 1); indicators.IsValid(pk) && pk < s.oversold {
			return Directive{EnterLong: true}
		}
	}
	return Directive{}
}
