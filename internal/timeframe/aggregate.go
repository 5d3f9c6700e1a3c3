// Package timeframe resamples OHLCV series to coarser intervals using
// the standard rules: open=first, high=max, low=min, close=last,
// volume=sum. Buckets with no input bars are dropped; no synthetic
// fill. Market-session boundaries are not enforced here.
package timeframe

import (
	"fmt"
	"time"

	"github.com/rupeelab/backtest/internal/domain"
)

// Aggregate groups the input series into target-interval buckets.
// The input must be finer than the target. Intraday buckets are aligned
// to the IST session-open grid (09:15 + k*interval) so that a session's
// bars land on exchange-style boundaries; 1d/1w/1M buckets follow IST
// calendar boundaries. All listed intervals divide each other where
// nested, which keeps aggregation associative: 1m->5m->75m equals
// 1m->75m bar for bar.
func Aggregate(s *domain.Series, target domain.Interval) (*domain.Series, error) {
	srcDur, err := s.Interval.Duration()
	if err != nil {
		return nil, fmt.Errorf("source interval: %w", err)
	}
	dstDur, err := target.Duration()
	if err != nil {
		return nil, fmt.Errorf("target interval: %w", err)
	}
	if dstDur < srcDur {
		return nil, fmt.Errorf("target interval %s finer than source %s", target, s.Interval)
	}
	if target == s.Interval {
		return s, nil
	}

	out := domain.NewSeries(s.Symbol, target, s.Len()/int(dstDur/srcDur)+1)
	var cur domain.Bar
	var curStart time.Time
	open := false

	flush := func() {
		if open {
			out.Append(cur)
			open = false
		}
	}

	for i := 0; i < s.Len(); i++ {
		start := bucketStart(s.TS[i], target)
		if !open || !start.Equal(curStart) {
			flush()
			curStart = start
			cur = domain.Bar{
				Timestamp: start,
				Open:      s.Open[i],
				High:      s.High[i],
				Low:       s.Low[i],
				Close:     s.Close[i],
				Volume:    s.Volume[i],
			}
			open = true
			continue
		}
		if s.High[i] > cur.High {
			cur.High = s.High[i]
		}
		if s.Low[i] < cur.Low {
			cur.Low = s.Low[i]
		}
		cur.Close = s.Close[i]
		cur.Volume += s.Volume[i]
	}
	flush()
	return out, nil
}

// bucketStart maps a timestamp to its bucket's start time.
func bucketStart(ts time.Time, target domain.Interval) time.Time {
	switch target {
	case domain.Interval1d:
		t := ts.In(domain.ISTLocation)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.ISTLocation)
	case domain.Interval1w:
		t := ts.In(domain.ISTLocation)
		// Weeks start on Monday.
		offset := (int(t.Weekday()) + 6) % 7
		t = t.AddDate(0, 0, -offset)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.ISTLocation)
	case domain.Interval1M:
		t := ts.In(domain.ISTLocation)
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, domain.ISTLocation)
	default:
		d, _ := target.Duration()
		t := ts.In(domain.ISTLocation)
		anchor := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.ISTLocation).
			Add(time.Duration(domain.MarketOpenMinute) * time.Minute)
		idx := floorDiv(t.Sub(anchor), d)
		return anchor.Add(time.Duration(idx) * d)
	}
}

func floorDiv(a, b time.Duration) int64 {
	q := int64(a / b)
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
