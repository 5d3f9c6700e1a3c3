package strategy

import (
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// KeyEnvelopeKD is the registry key of the envelope + stochastic K/D
// strategy.
const KeyEnvelopeKD = "envelope_kd"

// envelopeKD is a mean-reversion long: price tagging the lower SMA
// envelope plus an oversold %K/%D cross up buys the bounce; the upper
// envelope or an overbought cross down exits.
type envelopeKD struct {
	base
	n, kN, dSmooth       int
	envPct               float64
	oversold, overbought float64

	mid, k, d *Handle
}

// NewEnvelopeKD constructs the envelope + KD strategy. Parameters:
// n (20), env_pct (0.025), k (14), d (3), oversold (30),
// overbought (70).
func NewEnvelopeKD(p Params) (Strategy, error) {
	if err := p.Validate("n", "env_pct", "k", "d", "oversold", "overbought"); err != nil {
		return nil, err
	}
	s := &envelopeKD{
		n:          p.Int("n", 20),
		envPct:     p.Float("env_pct", 0.025),
		kN:         p.Int("k", 14),
		dSmooth:    p.Int("d", 3),
		oversold:   p.Float("oversold", 30),
		overbought: p.Float("overbought", 70),
	}
	return s, nil
}

func (s *envelopeKD) Name() string { return KeyEnvelopeKD }

func (s *envelopeKD) Initialize(b *Binder) error {
	sr := b.Series()
	s.mid = b.Bind("sma_mid", indicators.SMA(sr.Close, s.n))
	stoch := indicators.Stochastic(sr.High, sr.Low, sr.Close, s.kN, s.dSmooth)
	s.k = b.Bind("stoch_k", stoch.K)
	s.d = b.Bind("stoch_d", stoch.D)
	return b.Err()
}

func (s *envelopeKD) OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective {
	d := EntryDirective{Tag: "ENV_KD"}
	// Stop below the envelope band that triggered the entry.
	if m := s.mid.At(i); indicators.IsValid(m) {
		d.Stop = m * (1 - 2*s.envPct)
	}
	return d
}

func (s *envelopeKD) OnBar(i int, bar domain.Bar, state *BarState) Directive {
	m := s.mid.At(i)
	if !indicators.IsValid(m) {
		return Directive{}
	}
	lower := m * (1 - s.envPct)
	upper := m * (1 + s.envPct)

	if state.InPosition {
		if bar.Close >= upper {
			return Directive{ExitLong: true, Reason: "upper_envelope"}
		}
		if kv := s.k.At(i); indicators.IsValid(kv) && kv > s.overbought && crossBelow(s.k, s.d, i) {
			return Directive{ExitLong: true, Reason: "kd_cross_down"}
		}
		return Directive{}
	}
	if bar.Close <= lower {
		if kv := s.k.At(i); indicators.IsValid(kv) && kv < s.oversold && crossAbove(s.k, s.d, i) {
			return Directive{EnterLong: true}
		}
	}
	return Directive{}
}
