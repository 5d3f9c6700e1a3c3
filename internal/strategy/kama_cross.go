package strategy

import (
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyKAMACross is the registry key of the KAMA crossover strategy.
const KeyKAMACross = "kama_cross"

// kamaCross goes long when the close crosses above the Kaufman
// adaptive moving average and exits when it crosses back below. The
// adaptive smoothing keeps the line flat in chop, which filters most
// whipsaw crosses a plain SMA would take.
type kamaCross struct {
	base
	n, fastSC, slowSC, atrN int
	atrMult                 float64

	close, kama, atr *Handle
}

// NewKAMACross constructs the KAMA crossover strategy. Parameters:
// n (10), fast (2), slow (30), atr_n (14), atr_mult (2.5).
func NewKAMACross(p Params) (Strategy, error) {
	if err := p.Validate("n", "fast", "slow", "atr_n", "atr_mult"); err != nil {
		return nil, err
	}
	s := &kamaCross{
		n:       p.Int("n", 10),
		fastSC:  p.Int("fast", 2),
		slowSC:  p.Int("slow", 30),
		atrN:    p.Int("atr_n", 14),
		atrMult: p.Float("atr_mult", 2.5),
	}
	return s, nil
}

func (s *kamaCross) Name() string { return KeyKAMACross }

func (s *kamaCross) Initialize(b *Binder) error {
	closes := b.Series().Close
	s.close = b.Bind("close", closes)
	s.kama = b.Bind("kama", indicators.KAMA(closes, s.n, s.fastSC, s.slowSC))
	s.atr = b.Bind("atr", indicators.ATR(b.Series().High, b.Series().Low, closes, s.atrN))
	return b.Err()
}

func (s *kamaCross) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "KAMA_CROSS"}
	if atr := s.atr.At(i); indicators.IsValid(atr) {
		d.Stop = bar.Close - s.atrMult*atr
	}
	return d
}

func (s *kamaCross) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	if state.InPosition {
		if crossBelow(s.close, s.kama, i) {
			return Directive{ExitLong: true, Reason: "close_below_kama"}
		}
		// Trail the stop under the KAMA line once in profit.
		if k := s.kama.At(i); indicators.IsValid(k) && bar.Close > state.FirstEntryPrice {
			atr := s.atr.At(i)
			if indicators.IsValid(atr) {
				return Directive{Stop: k - atr}
			}
		}
		return Directive{}
	}
	if crossAbove(s.close, s.kama, i) {
		return Directive{EnterLong: true}
	}
	return Directive{}
}
