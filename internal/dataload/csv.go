// Package dataload reads OHLCV series from cached CSV files, resolves
// basket files to symbol lists, and keeps msgpack snapshots of parsed
// series so repeated runs skip CSV parsing.
package dataload

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rupeelab/backtest/internal/domain"
)

// dateLayouts are tried in order when parsing the date column. Naive
// timestamps are interpreted as IST.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
}

// LoadCSV parses one OHLCV file. Headers are matched
// case-insensitively; the date column may be named date, datetime or
// timestamp. Rows must be in ascending time order.
func LoadCSV(path, symbol string, interval domain.Interval) (*domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewDataError(symbol, "open %s: %s", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, domain.NewDataError(symbol, "read header of %s: %s", path, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, domain.NewDataError(symbol, "%s: %s", path, err)
	}

	series := domain.NewSeries(symbol, interval, 1024)
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.NewDataError(symbol, "read %s line %d: %s", path, line+1, err)
		}
		line++

		ts, err := parseDate(rec[cols.date])
		if err != nil {
			return nil, domain.NewDataError(symbol, "%s line %d: %s", path, line, err)
		}
		bar := domain.Bar{
			Timestamp: ts,
			Open:      parseFloat(rec[cols.open]),
			High:      parseFloat(rec[cols.high]),
			Low:       parseFloat(rec[cols.low]),
			Close:     parseFloat(rec[cols.close]),
		}
		if cols.volume >= 0 {
			bar.Volume = parseFloat(rec[cols.volume])
		}
		series.Append(bar)
	}
	if series.Len() == 0 {
		return nil, domain.NewDataError(symbol, "%s contains no rows", path)
	}
	return series, nil
}

type columnIndex struct {
	date, open, high, low, close, volume int
}

func mapColumns(header []string) (columnIndex, error) {
	idx := columnIndex{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "datetime", "timestamp":
			idx.date = i
		case "open":
			idx.open = i
		case "high":
			idx.high = i
		case "low":
			idx.low = i
		case "close":
			idx.close = i
		case "volume", "vol":
			idx.volume = i
		}
	}
	if idx.date < 0 || idx.open < 0 || idx.high < 0 || idx.low < 0 || idx.close < 0 {
		return idx, fmt.Errorf("missing required columns in header %v", header)
	}
	return idx, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, s, domain.ISTLocation); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// parseFloat returns NaN for empty or malformed cells; the validation
// layer decides whether the NaN budget is acceptable.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
