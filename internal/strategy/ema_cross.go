package strategy

import (
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyEMACross is the registry key of the EMA crossover strategy.
const KeyEMACross = "ema_cross"

// emaCross goes long when the fast EMA crosses above the slow EMA and
// exits on the reverse cross. The initial stop sits atrMult ATRs below
// the entry close.
type emaCross struct {
	base
	fast, slow, atrN int
	atrMult          float64

	emaFast, emaSlow, atr *Handle
}

// NewEMACross constructs the EMA crossover strategy. Parameters: fast
// (12), slow (26), atr_n (14), atr_mult (2.0).
func NewEMACross(p Params) (Strategy, error) {
	if err := p.Validate("fast", "slow", "atr_n", "atr_mult"); err != nil {
		return nil, err
	}
	s := &emaCross{
		fast:    p.Int("fast", 12),
		slow:    p.Int("slow", 26),
		atrN:    p.Int("atr_n", 14),
		atrMult: p.Float("atr_mult", 2.0),
	}
	return s, nil
}

func (s *emaCross) Name() string { return KeyEMACross }

func (s *emaCross) Initialize(b *Binder) error {
	closes := b.Series().Close
	s.emaFast = b.Bind("ema_fast", indicators.EMA(closes, s.fast))
	s.emaSlow = b.Bind("ema_slow", indicators.EMA(closes, s.slow))
	s.atr = b.Bind("atr", indicators.ATR(b.Series().High, b.Series().Low, closes, s.atrN))
	return b.Err()
}

func (s *emaCross) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "EMA_CROSS"}
	if atr := s.atr.At(i); indicators.IsValid(atr) {
		d.Stop = bar.Close - s.atrMult*atr
	}
	return d
}

func (s *emaCross) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	if state.InPosition {
		if crossBelow(s.emaFast, s.emaSlow, i) {
			return Directive{ExitLong: true, Reason: "ema_cross_down"}
		}
		return Directive{}
	}
	if crossAbove(s.emaFast, s.emaSlow, i) {
		return Directive{EnterLong: true}
	}
	return Directive{}
}
