package dataload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/validation"
)

// Loader reads series with a msgpack snapshot cache in front of the
// CSV files. A snapshot is reused only while it is at least as new as
// its source CSV.
type Loader struct {
	dataDir  string
	cacheDir string
	check    *validation.Validator
	log      zerolog.Logger
}

// NewLoader creates a loader. cacheDir may be empty to disable
// snapshots.
func NewLoader(dataDir, cacheDir string, log zerolog.Logger) *Loader {
	return &Loader{
		dataDir:  dataDir,
		cacheDir: cacheDir,
		check:    validation.New(log),
		log:      log.With().Str("component", "dataload").Logger(),
	}
}

// Load returns the series for a symbol, preferring the msgpack
// snapshot when fresh.
func (l *Loader) Load(symbol string, interval domain.Interval) (*domain.Series, error) {
	csvPath, err := FindSeriesFile(l.dataDir, symbol, interval)
	if err != nil {
		return nil, err
	}

	snapPath := l.snapshotPath(symbol, interval)
	if s, ok := l.loadSnapshot(snapPath, csvPath); ok {
		l.log.Debug().Str("symbol", symbol).Str("path", snapPath).Msg("Loaded series snapshot")
		return s, nil
	}

	s, err := LoadCSV(csvPath, symbol, interval)
	if err != nil {
		return nil, err
	}
	l.writeSnapshot(snapPath, s)
	return s, nil
}

func (l *Loader) snapshotPath(symbol string, interval domain.Interval) string {
	if l.cacheDir == "" {
		return ""
	}
	return filepath.Join(l.cacheDir, fmt.Sprintf("%s_%s.msgpack", symbol, interval))
}

func (l *Loader) loadSnapshot(snapPath, csvPath string) (*domain.Series, bool) {
	if snapPath == "" {
		return nil, false
	}
	// A missing or truncated snapshot falls back to the CSV.
	if c := l.check.CheckCacheFile(snapPath); !c.Passed {
		return nil, false
	}
	snapInfo, err := os.Stat(snapPath)
	if err != nil {
		return nil, false
	}
	csvInfo, err := os.Stat(csvPath)
	if err == nil && csvInfo.ModTime().After(snapInfo.ModTime()) {
		return nil, false
	}

	raw, err := os.ReadFile(snapPath)
	if err != nil {
		return nil, false
	}
	var s domain.Series
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		l.log.Warn().Err(err).Str("path", snapPath).Msg("Corrupt series snapshot, reparsing CSV")
		return nil, false
	}
	return &s, true
}

func (l *Loader) writeSnapshot(snapPath string, s *domain.Series) {
	if snapPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(snapPath), 0o755); err != nil {
		l.log.Warn().Err(err).Msg("Failed to create snapshot dir")
		return
	}
	raw, err := msgpack.Marshal(s)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to encode series snapshot")
		return
	}
	if err := os.WriteFile(snapPath, raw, 0o644); err != nil {
		l.log.Warn().Err(err).Str("path", snapPath).Msg("Failed to write series snapshot")
	}
}
