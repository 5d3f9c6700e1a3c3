package dataload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rupeelab/backtest/internal/domain"
)

// FindSeriesFile locates the cached CSV for a symbol and interval
// under dir. Files follow `<prefix>_<SYMBOL>_<interval>.csv`; a bare
// `<SYMBOL>_<interval>.csv` is accepted too. With multiple matches the
// lexicographically last (typically the freshest dated prefix) wins.
func FindSeriesFile(dir, symbol string, interval domain.Interval) (string, error) {
	patterns := []string{
		filepath.Join(dir, fmt.Sprintf("*_%s_%s.csv", symbol, interval)),
		filepath.Join(dir, fmt.Sprintf("%s_%s.csv", symbol, interval)),
	}
	var matches []string
	for _, p := range patterns {
		m, err := filepath.Glob(p)
		if err != nil {
			return "", domain.NewDataError(symbol, "bad glob %s: %s", p, err)
		}
		matches = append(matches, m...)
	}
	if len(matches) == 0 {
		return "", domain.NewDataError(symbol, "no data file for %s %s under %s", symbol, interval, dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// ListSymbols enumerates the symbols that have a data file for the
// given interval under dir.
func ListSymbols(dir string, interval domain.Interval) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", dir, err)
	}
	suffix := fmt.Sprintf("_%s.csv", interval)
	seen := make(map[string]bool)
	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		trimmed := strings.TrimSuffix(name, suffix)
		if i := strings.LastIndexByte(trimmed, '_'); i >= 0 {
			trimmed = trimmed[i+1:]
		}
		if trimmed != "" && !seen[trimmed] {
			seen[trimmed] = true
			symbols = append(symbols, trimmed)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
