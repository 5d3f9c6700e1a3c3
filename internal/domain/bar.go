// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Interval represents a bar interval label
type Interval string

const (
	Interval1m   Interval = "1m"
	Interval5m   Interval = "5m"
	Interval15m  Interval = "15m"
	Interval25m  Interval = "25m"
	Interval75m  Interval = "75m"
	Interval125m Interval = "125m"
	Interval1h   Interval = "1h"
	Interval4h   Interval = "4h"
	Interval1d   Interval = "1d"
	Interval1w   Interval = "1w"
	Interval1M   Interval = "1M"
)

// Duration returns the nominal duration of one bar. Calendar intervals
// (1w, 1M) return their minimum span; callers that bucket by calendar
// boundaries must not rely on this for grouping.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1m:
		return time.Minute, nil
	case Interval5m:
		return 5 * time.Minute, nil
	case Interval15m:
		return 15 * time.Minute, nil
	case Interval25m:
		return 25 * time.Minute, nil
	case Interval75m:
		return 75 * time.Minute, nil
	case Interval125m:
		return 125 * time.Minute, nil
	case Interval1h:
		return time.Hour, nil
	case Interval4h:
		return 4 * time.Hour, nil
	case Interval1d:
		return 24 * time.Hour, nil
	case Interval1w:
		return 7 * 24 * time.Hour, nil
	case Interval1M:
		return 28 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown interval: %s", i)
}

// IsIntraday reports whether the interval is finer than one day.
func (i Interval) IsIntraday() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval25m, Interval75m, Interval125m, Interval1h, Interval4h:
		return true
	}
	return false
}

// ParseInterval validates an interval label.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, err := iv.Duration(); err != nil {
		return "", err
	}
	return iv, nil
}

// Bar is one OHLCV observation at the series' native interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IsNaN reports whether any price field of the bar is not a number.
// NaN bars are skipped by the engine: no fills, no signals.
func (b Bar) IsNaN() bool {
	return math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close)
}

// Series holds an ordered OHLCV sequence for one symbol in columnar
// form. The parallel slices always have equal length and strictly
// increasing timestamps. Indicator functions consume the typed slices
// directly; no per-row attribute access.
type Series struct {
	Symbol   string      `msgpack:"symbol"`
	Interval Interval    `msgpack:"interval"`
	TS       []time.Time `msgpack:"ts"`
	Open     []float64   `msgpack:"open"`
	High     []float64   `msgpack:"high"`
	Low      []float64   `msgpack:"low"`
	Close    []float64   `msgpack:"close"`
	Volume   []float64   `msgpack:"volume"`
}

// NewSeries allocates an empty series with the given capacity.
func NewSeries(symbol string, interval Interval, capacity int) *Series {
	return &Series{
		Symbol:   symbol,
		Interval: interval,
		TS:       make([]time.Time, 0, capacity),
		Open:     make([]float64, 0, capacity),
		High:     make([]float64, 0, capacity),
		Low:      make([]float64, 0, capacity),
		Close:    make([]float64, 0, capacity),
		Volume:   make([]float64, 0, capacity),
	}
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.TS) }

// At returns the bar at index i as a value (immutable view).
func (s *Series) At(i int) Bar {
	return Bar{
		Timestamp: s.TS[i],
		Open:      s.Open[i],
		High:      s.High[i],
		Low:       s.Low[i],
		Close:     s.Close[i],
		Volume:    s.Volume[i],
	}
}

// Append adds a bar to the end of the series. The caller is responsible
// for maintaining timestamp order.
func (s *Series) Append(b Bar) {
	s.TS = append(s.TS, b.Timestamp)
	s.Open = append(s.Open, b.Open)
	s.High = append(s.High, b.High)
	s.Low = append(s.Low, b.Low)
	s.Close = append(s.Close, b.Close)
	s.Volume = append(s.Volume, b.Volume)
}

// Slice returns a shallow sub-series covering [from, to).
func (s *Series) Slice(from, to int) *Series {
	return &Series{
		Symbol:   s.Symbol,
		Interval: s.Interval,
		TS:       s.TS[from:to],
		Open:     s.Open[from:to],
		High:     s.High[from:to],
		Low:      s.Low[from:to],
		Close:    s.Close[from:to],
		Volume:   s.Volume[from:to],
	}
}

// IndexAtOrAfter returns the index of the first bar whose timestamp is
// not before ts, or Len() if no such bar exists.
func (s *Series) IndexAtOrAfter(ts time.Time) int {
	lo, hi := 0, s.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if s.TS[mid].Before(ts) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ISTLocation is the exchange timezone for Indian instruments.
// Fixed offset avoids a tzdata dependency on stripped-down hosts.
var ISTLocation = time.FixedZone("IST", 5*3600+1800)

// MarketOpenMinute and MarketCloseMinute bound the NSE trading session
// (09:15-15:30 IST), expressed as minutes since midnight IST.
const (
	MarketOpenMinute  = 9*60 + 15
	MarketCloseMinute = 15*60 + 30
)
