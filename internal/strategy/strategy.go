// Package strategy defines the trading strategy contract, the
// indicator binder that enforces the one-bar-look-back rule, the
// strategy registry, and the bundled long-only strategies.
package strategy

import (
	"fmt"
	"math"

	"github.com/rupeelab/backtest/internal/domain"
)

// BarState is the engine-owned per-symbol state visible to a strategy
// during callbacks. It survives across bars while a position is open
// and is cleared on full close.
type BarState struct {
	InPosition            bool
	Lots                  int
	Qty                   float64
	AvgEntryPrice         float64
	Cash                  float64
	Equity                float64
	HighestHighSinceEntry float64
	FirstEntryPrice       float64
	BarsSinceFirstEntry   int

	// Scratch holds strategy-owned per-symbol values. Cleared with the
	// rest of the state on full close.
	Scratch map[string]float64
}

// SetScratch stores a strategy-owned value.
func (s *BarState) SetScratch(key string, v float64) {
	if s.Scratch == nil {
		s.Scratch = make(map[string]float64)
	}
	s.Scratch[key] = v
}

// GetScratch returns a strategy-owned value, or the fallback when the
// key was never set.
func (s *BarState) GetScratch(key string, fallback float64) float64 {
	if v, ok := s.Scratch[key]; ok {
		return v
	}
	return fallback
}

// Directive is what OnBar returns: desired actions for the next bar.
// Zero values mean "no change": Stop == 0 leaves the stop alone and
// QtyMultiplier == 0 uses the default lot size.
type Directive struct {
	EnterLong     bool
	ExitLong      bool
	Stop          float64
	QtyMultiplier float64
	Reason        string
}

// EntryDirective is returned by OnEntry right after a fill opens a new
// lot. Stop == 0 means no initial stop.
type EntryDirective struct {
	Stop float64
	Tag  string
}

// Strategy is the per-symbol trading logic contract. Instances are
// created per (symbol, run) and never shared across symbols.
type Strategy interface {
	// Name returns the registry key of this strategy.
	Name() string

	// Prepare optionally transforms the series before the run.
	Prepare(s *domain.Series) *domain.Series

	// Initialize declares indicator bindings. Called once, after
	// Prepare, with a binder wrapping the prepared series.
	Initialize(b *Binder) error

	// OnEntry is called immediately after a fill that opens a new lot.
	OnEntry(i int, bar domain.Bar, state *BarState) EntryDirective

	// OnBar is called once per completed bar i and returns actions for
	// the next bar.
	OnBar(i int, bar domain.Bar, state *BarState) Directive

	// CloseReason tags the engine-forced terminal exit.
	CloseReason(state *BarState) string
}

// base provides the no-op defaults shared by the bundled strategies.
type base struct{}

func (base) Prepare(s *domain.Series) *domain.Series { return s }

func (base) OnEntry(int, domain.Bar, *BarState) EntryDirective { return EntryDirective{} }

func (base) CloseReason(*BarState) string { return "end_of_data" }

// Params carries strategy parameter overrides decoded from the CLI
// --params JSON.
type Params map[string]any

// Int returns an integer parameter or the fallback. JSON numbers
// decode as float64, so both forms are accepted.
func (p Params) Int(key string, fallback int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// Float returns a float parameter or the fallback.
func (p Params) Float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// Validate rejects keys outside the allowed set, so a typo in --params
// fails at startup instead of being silently ignored.
func (p Params) Validate(allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	for k := range p {
		if !ok[k] {
			return fmt.Errorf("unknown parameter %q", k)
		}
	}
	return nil
}

// crossAbove reports whether sequence a moved above sequence b at
// index i: above now, at or below on a prior valid bar. The prior
// observation must be valid, so the first valid bar of an
// already-above pair is not a cross and warm-up bars never signal.
func crossAbove(a, b *Handle, i int) bool {
	prevA, prevB := a.At(i-1), b.At(i-1)
	if math.IsNaN(prevA) || math.IsNaN(prevB) {
		return false
	}
	return a.At(i) > b.At(i) && prevA <= prevB
}

// crossBelow is the mirror of crossAbove.
func crossBelow(a, b *Handle, i int) bool {
	prevA, prevB := a.At(i-1), b.At(i-1)
	if math.IsNaN(prevA) || math.IsNaN(prevB) {
		return false
	}
	return a.At(i) < b.At(i) && prevA >= prevB
}

