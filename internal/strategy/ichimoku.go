package strategy

import (
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyIchimoku is the registry key of the Ichimoku strategy.
const KeyIchimoku = "ichimoku"

// ichimoku goes long on a tenkan/kijun cross above the cloud and exits
// on the reverse cross or a close back inside the cloud. The chikou
// span is deliberately not bound: its value at i is the close of a
// future bar, so no signal may depend on it.
type ichimoku struct {
	base
	conv, baseN, lead int

	tenkan, kijun, senkouA, senkouB *Handle
}

// NewIchimoku constructs the Ichimoku strategy. Parameters: conv (9),
// base (26), lead (52).
func NewIchimoku(p Params) (Strategy, error) {
	if err := p.Validate("conv", "base", "lead"); err != nil {
		return nil, err
	}
	s := &ichimoku{
		conv:  p.Int("conv", 9),
		baseN: p.Int("base", 26),
		lead:  p.Int("lead", 52),
	}
	return s, nil
}

func (s *ichimoku) Name() string { return KeyIchimoku }

func (s *ichimoku) Initialize(b *Binder) error {
	sr := b.Series()
	ich := indicators.Ichimoku(sr.High, sr.Low, sr.Close, s.conv, s.baseN, s.lead)
	s.tenkan = b.Bind("tenkan", ich.Tenkan)
	s.kijun = b.Bind("kijun", ich.Kijun)
	s.senkouA = b.Bind("senkou_a", ich.SenkouA)
	s.senkouB = b.Bind("senkou_b", ich.SenkouB)
	return b.Err()
}

func (s *ichimoku) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "ICHIMOKU"}
	// Initial stop under the cloud floor.
	if lo := s.cloudFloor(i); indicators.IsValid(lo) && lo < bar.Close {
		d.Stop = lo
	}
	return d
}

func (s *ichimoku) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	if state.InPosition {
		if crossBelow(s.tenkan, s.kijun, i) {
			return Directive{ExitLong: true, Reason: "tk_cross_down"}
		}
		if ceil := s.cloudCeil(i); indicators.IsValid(ceil) && bar.Close < ceil {
			return Directive{ExitLong: true, Reason: "close_inside_cloud"}
		}
		return Directive{}
	}
	if crossAbove(s.tenkan, s.kijun, i) && s.aboveCloud(i, bar.Close) {
		return Directive{EnterLong: true}
	}
	return Directive{}
}

// aboveCloud requires both spans valid and the close above both.
func (s *ichimoku) aboveCloud(i int, close float64) bool {
	a, bv := s.senkouA.At(i), s.senkouB.At(i)
	if !indicators.IsValid(a) || !indicators.IsValid(bv) {
		return false
	}
	return close > a && close > bv
}

func (s *ichimoku) cloudCeil(i int) float64 {
	a, bv := s.senkouA.At(i), s.senkouB.At(i)
	if !indicators.IsValid(a) || !indicators.IsValid(bv) {
		return indicators.NotYetValid
	}
	if a > bv {
		return a
	}
	return bv
}

func (s *ichimoku) cloudFloor(i int) float64 {
	a, bv := s.senkouA.At(i), s.senkouB.At(i)
	if !indicators.IsValid(a) || !indicators.IsValid(bv) {
		return indicators.NotYetValid
	}
	if a < bv {
		return a
	}
	return bv
}
