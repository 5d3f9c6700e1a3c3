package engine

import "time"

// Lot is one filled buy. A position holds one lot normally and up to
// MaxPyramidLots when pyramiding is enabled.
type Lot struct {
	BarIndex   int
	EntryTime  time.Time
	EntryPrice float64
	Qty        float64
	Commission float64
	Tag        string
}

// Position is the open long position of one engine. The stop is
// position-level: directive updates only tighten it, initial stops
// from OnEntry may set it freely for the first lot and tighten it for
// pyramid lots.
type Position struct {
	Lots []Lot
	Stop float64
}

// Open reports whether any quantity is held.
func (p *Position) Open() bool { return len(p.Lots) > 0 }

// Qty returns the total held quantity.
func (p *Position) Qty() float64 {
	var q float64
	for _, l := range p.Lots {
		q += l.Qty
	}
	return q
}

// AvgEntryPrice returns the quantity-weighted average entry price.
func (p *Position) AvgEntryPrice() float64 {
	var notional, qty float64
	for _, l := range p.Lots {
		notional += l.EntryPrice * l.Qty
		qty += l.Qty
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// EntryCommission returns the summed buy-side commissions.
func (p *Position) EntryCommission() float64 {
	var c float64
	for _, l := range p.Lots {
		c += l.Commission
	}
	return c
}

// LastEntryPrice returns the most recent lot's entry price, used for
// the higher-high pyramiding gate.
func (p *Position) LastEntryPrice() float64 {
	if len(p.Lots) == 0 {
		return 0
	}
	return p.Lots[len(p.Lots)-1].EntryPrice
}

// TightenStop raises the stop, never lowers it. A zero current stop
// accepts any positive value.
func (p *Position) TightenStop(stop float64) {
	if stop <= 0 {
		return
	}
	if p.Stop == 0 || stop > p.Stop {
		p.Stop = stop
	}
}

// pendingOrder is a queued market order to be filled at the next bar
// open. The engine holds at most one buy and one sell at a time.
type pendingOrder struct {
	qty    float64
	reason string
}
