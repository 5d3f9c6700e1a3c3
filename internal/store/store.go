// Package store persists imported OHLCV history in a local SQLite
// archive so backtests can run without the CSV exports present.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rupeelab/backtest/internal/database"
	"github.com/rupeelab/backtest/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol   TEXT    NOT NULL,
	interval TEXT    NOT NULL,
	ts       INTEGER NOT NULL,
	open     REAL,
	high     REAL,
	low      REAL,
	close    REAL,
	volume   REAL,
	PRIMARY KEY (symbol, interval, ts)
);
CREATE INDEX IF NOT EXISTS idx_bars_interval_ts ON bars(interval, ts);
`

// BarStore reads and writes price history in the archive database.
type BarStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewBarStore creates the store and ensures the schema exists.
func NewBarStore(db *database.DB, log zerolog.Logger) (*BarStore, error) {
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create bars schema: %w", err)
	}
	return &BarStore{
		db:  db,
		log: log.With().Str("component", "bar_store").Logger(),
	}, nil
}

// UpsertSeries writes all bars of a series in one transaction,
// replacing rows that share the same timestamp. Returns the number of
// bars written.
func (s *BarStore) UpsertSeries(ctx context.Context, series *domain.Series) (int, error) {
	if series.Len() == 0 {
		return 0, nil
	}

	const upsert = `
		INSERT INTO bars (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`

	n := 0
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsert)
		if err != nil {
			return fmt.Errorf("failed to prepare bar upsert: %w", err)
		}
		defer stmt.Close()

		for i := 0; i < series.Len(); i++ {
			_, err := stmt.ExecContext(ctx,
				series.Symbol,
				string(series.Interval),
				series.TS[i].Unix(),
				nullable(series.Open[i]),
				nullable(series.High[i]),
				nullable(series.Low[i]),
				nullable(series.Close[i]),
				nullable(series.Volume[i]),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert bar %s@%s: %w",
					series.Symbol, series.TS[i].Format(time.RFC3339), err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("symbol", series.Symbol).
		Str("interval", string(series.Interval)).
		Int("bars", n).
		Msg("Imported series into archive")
	return n, nil
}

// LoadSeries reads a full series ordered by timestamp. The zero times
// disable the corresponding bound.
func (s *BarStore) LoadSeries(ctx context.Context, symbol string, interval domain.Interval, from, to time.Time) (*domain.Series, error) {
	query := `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ?
	`
	args := []interface{}{symbol, string(interval)}
	if !from.IsZero() {
		query += " AND ts >= ?"
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += " AND ts <= ?"
		args = append(args, to.Unix())
	}
	query += " ORDER BY ts ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := domain.NewSeries(symbol, interval, 1024)
	for rows.Next() {
		var tsUnix int64
		var open, high, low, closePx, volume sql.NullFloat64
		if err := rows.Scan(&tsUnix, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", symbol, err)
		}
		series.Append(domain.Bar{
			Timestamp: time.Unix(tsUnix, 0).In(domain.ISTLocation),
			Open:      floatOrNaN(open),
			High:      floatOrNaN(high),
			Low:       floatOrNaN(low),
			Close:     floatOrNaN(closePx),
			Volume:    floatOrNaN(volume),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars for %s: %w", symbol, err)
	}
	if series.Len() == 0 {
		return nil, domain.NewDataError(symbol, "no archived bars for %s %s", symbol, interval)
	}
	return series, nil
}

// Symbols lists the symbols archived at the given interval.
func (s *BarStore) Symbols(ctx context.Context, interval domain.Interval) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT symbol FROM bars WHERE interval = ? ORDER BY symbol", string(interval))
	if err != nil {
		return nil, fmt.Errorf("failed to query archived symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}

// Count returns the number of archived bars for a symbol and interval.
func (s *BarStore) Count(ctx context.Context, symbol string, interval domain.Interval) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bars WHERE symbol = ? AND interval = ?",
		symbol, string(interval)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", symbol, err)
	}
	return n, nil
}

// Missing cells are stored as NULL so SQL aggregates skip them.
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
