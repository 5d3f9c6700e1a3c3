package strategy

import (
	"fmt"
	"math"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/indicators"
)

// Binder hands strategies index-aligned, cursor-gated views over
// precomputed indicator sequences. The engine advances the cursor to
// the current bar before each OnBar call, so a handle read at any
// index beyond the cursor yields the not-yet-valid sentinel. This is
// what makes look-ahead structurally impossible rather than a matter
// of strategy discipline.
type Binder struct {
	series  *domain.Series
	cursor  int
	handles map[string]*Handle
	err     error
}

// NewBinder wraps a prepared series. The cursor starts before the
// first bar, so every read is not-yet-valid until the engine advances
// it.
func NewBinder(s *domain.Series) *Binder {
	return &Binder{
		series:  s,
		cursor:  -1,
		handles: make(map[string]*Handle),
	}
}

// Series exposes the underlying bars for strategies that inspect raw
// candles. Reads must stay at or below the current cursor; the engine
// only hands strategies bars it has already processed.
func (b *Binder) Series() *domain.Series { return b.series }

// Bind registers a named indicator sequence and returns its handle.
// The sequence must be index-aligned with the series. Binding the same
// name twice is an error, recorded and reported by Err; the duplicate
// bind returns a handle that never yields a valid value.
func (b *Binder) Bind(name string, values []float64) *Handle {
	if _, dup := b.handles[name]; dup {
		if b.err == nil {
			b.err = fmt.Errorf("indicator %q bound twice", name)
		}
		return &Handle{binder: b, name: name}
	}
	if len(values) != b.series.Len() {
		if b.err == nil {
			b.err = fmt.Errorf("indicator %q has %d values for %d bars", name, len(values), b.series.Len())
		}
		return &Handle{binder: b, name: name}
	}
	h := &Handle{binder: b, name: name, values: values}
	b.handles[name] = h
	return h
}

// Err returns the first binding error, if any. The engine checks this
// once after Initialize.
func (b *Binder) Err() error { return b.err }

// SetCursor marks bar i as the latest completed bar. Handles refuse
// reads beyond it.
func (b *Binder) SetCursor(i int) { b.cursor = i }

// WarmupEnd returns the first index at which every bound sequence is
// valid, or the series length when some sequence never becomes valid.
func (b *Binder) WarmupEnd() int {
	end := 0
	for _, h := range b.handles {
		first := len(h.values)
		for i, v := range h.values {
			if indicators.IsValid(v) {
				first = i
				break
			}
		}
		if first > end {
			end = first
		}
	}
	return end
}

// Handle is a read-only, cursor-gated view over one indicator
// sequence.
type Handle struct {
	binder *Binder
	name   string
	values []float64
}

// At returns the sequence value at index i, or the not-yet-valid
// sentinel when i is negative, beyond the cursor, or out of range.
// The sentinel compares false against any threshold.
func (h *Handle) At(i int) float64 {
	if i < 0 || i > h.binder.cursor || i >= len(h.values) {
		return math.NaN()
	}
	return h.values[i]
}

// Last returns the value at the cursor.
func (h *Handle) Last() float64 { return h.At(h.binder.cursor) }
