package strategy

import (
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyBollingerRSI is the registry key of the Bollinger + RSI strategy.
const KeyBollingerRSI = "bollinger_rsi"

// bollingerRSI buys the re-entry after a close below the lower band
// while RSI is washed out, and exits at the upper band or on an
// overbought RSI. The band re-entry filter avoids catching the knife
// on the first close outside the band.
type bollingerRSI struct {
	base
	n, rsiN           int
	stdK              float64
	rsiEntry, rsiExit float64

	close, upper, lower, mid, rsi *Handle
}

// NewBollingerRSI constructs the Bollinger + RSI strategy. Parameters:
// n (20), std_k (2.0), rsi_n (14), rsi_entry (35), rsi_exit (70).
func NewBollingerRSI(p Params) (Strategy, error) {
	if err := p.Validate("n", "std_k", "rsi_n", "rsi_entry", "rsi_exit"); err != nil {
		return nil, err
	}
	s := &bollingerRSI{
		n:        p.Int("n", 20),
		stdK:     p.Float("std_k", 2.0),
		rsiN:     p.Int("rsi_n", 14),
		rsiEntry: p.Float("rsi_entry", 35),
		rsiExit:  p.Float("rsi_exit", 70),
	}
	return s, nil
}

func (s *bollingerRSI) Name() string { return KeyBollingerRSI }

func (s *bollingerRSI) Initialize(b *Binder) error {
	closes := b.Series().Close
	bb := indicators.Bollinger(closes, s.n, s.stdK)
	s.close = b.Bind("close", closes)
	s.upper = b.Bind("bb_upper", bb.Upper)
	s.mid = b.Bind("bb_mid", bb.Middle)
	s.lower = b.Bind("bb_lower", bb.Lower)
	s.rsi = b.Bind("rsi", indicators.RSI(closes, s.rsiN))
	return b.Err()
}

func (s *bollingerRSI) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "BB_RSI"}
	if lo := s.lower.At(i); indicators.IsValid(lo) {
		width := s.mid.At(i) - lo
		if indicators.IsValid(width) && width > 0 {
			d.Stop = lo - width/2
		}
	}
	return d
}

func (s *bollingerRSI) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	if state.InPosition {
		if up := s.upper.At(i); indicators.IsValid(up) && bar.Close >= up {
			return Directive{ExitLong: true, Reason: "upper_band"}
		}
		if rv := s.rsi.At(i); indicators.IsValid(rv) && rv > s.rsiExit {
			return Directive{ExitLong: true, Reason: "rsi_overbought"}
		}
		return Directive{}
	}
	// Re-entry: previous close below the lower band, current close back
	// above it, RSI still washed out.
	if crossAbove(s.close, s.lower, i) {
		if rv := s.rsi.At(i); indicators.IsValid(rv) && rv < s.rsiEntry {
			return Directive{EnterLong: true}
		}
	}
	return Directive{}
}
