// Package report serializes run artifacts: the summary JSON and the
// per-window CSV files. All numeric output is rounded to two decimals
// at serialization time only; files are written once and never
// mutated afterwards.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/engine"
	"github.com/rupeelab/backtest/internal/metrics"
	"github.com/rupeelab/backtest/internal/portfolio"
)

// Failure records a symbol that did not complete.
type Failure struct {
	Symbol  string           `json:"symbol"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Input carries everything the writer serializes for one run.
type Input struct {
	RunID        string
	StrategyName string
	BasketName   string
	Interval     domain.Interval
	StartedAt    time.Time
	EndedAt      time.Time
	Workers      int

	Windows  []domain.WindowSlice
	Results  []*engine.Result
	Failures []Failure

	Portfolio        *portfolio.Result
	PortfolioMetrics []metrics.WindowMetrics
	SymbolMetrics    map[string][]metrics.WindowMetrics
}

// Writer emits run artifacts under a root report directory.
type Writer struct {
	root string
	log  zerolog.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(root string, log zerolog.Logger) *Writer {
	return &Writer{
		root: root,
		log:  log.With().Str("component", "report").Logger(),
	}
}

// DirName builds the run directory name from the start time and run
// identity: MMDD-HHMM-strategy-basket-interval.
func DirName(startedAt time.Time, strategy, basket string, interval domain.Interval) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		startedAt.In(domain.ISTLocation).Format("0102-1504"), strategy, basket, interval)
}

// WriteAll writes every artifact for the run and returns the run
// directory path.
func (w *Writer) WriteAll(in Input) (string, error) {
	dir := filepath.Join(w.root, DirName(in.StartedAt, in.StrategyName, in.BasketName, in.Interval))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir %s: %w", dir, err)
	}

	if err := w.writeSummary(dir, in); err != nil {
		return "", err
	}
	for _, win := range in.Windows {
		if err := w.writeConsolidatedTrades(dir, win, in); err != nil {
			return "", err
		}
		if err := w.writeEquityCurves(dir, win, in); err != nil {
			return "", err
		}
		if err := w.writeKeyMetrics(dir, win, in); err != nil {
			return "", err
		}
	}
	if err := w.writeBacktestsSummary(dir, in); err != nil {
		return "", err
	}

	w.log.Info().Str("dir", dir).Int("symbols", len(in.Results)).Msg("Wrote run artifacts")
	return dir, nil
}

// summaryDoc is the schema of summary.json.
type summaryDoc struct {
	RunID            string                  `json:"run_id"`
	StrategyName     string                  `json:"strategy_name"`
	BasketName       string                  `json:"basket_name"`
	Interval         domain.Interval         `json:"interval"`
	Windows          []domain.WindowSlice    `json:"windows"`
	StartedAt        time.Time               `json:"started_at"`
	EndedAt          time.Time               `json:"ended_at"`
	Workers          int                     `json:"workers"`
	SymbolCount      int                     `json:"symbol_count"`
	SuccessCount     int                     `json:"success_count"`
	FailureCount     int                     `json:"failure_count"`
	DataFingerprints map[string]string       `json:"data_fingerprints"`
	ValidationIssues []string                `json:"validation_issues"`
	Failures         []Failure               `json:"failures,omitempty"`
	WindowSummaries  []metrics.WindowMetrics `json:"window_summaries"`
}

func (w *Writer) writeSummary(dir string, in Input) error {
	doc := summaryDoc{
		RunID:            in.RunID,
		StrategyName:     in.StrategyName,
		BasketName:       in.BasketName,
		Interval:         in.Interval,
		Windows:          in.Windows,
		StartedAt:        in.StartedAt,
		EndedAt:          in.EndedAt,
		Workers:          in.Workers,
		SymbolCount:      len(in.Results) + len(in.Failures),
		SuccessCount:     len(in.Results),
		FailureCount:     len(in.Failures),
		DataFingerprints: make(map[string]string, len(in.Results)),
		Failures:         in.Failures,
		WindowSummaries:  in.PortfolioMetrics,
	}
	for _, r := range in.Results {
		doc.DataFingerprints[r.Symbol] = r.Fingerprint
		if r.Validation != nil {
			for _, msg := range r.Validation.Errors {
				doc.ValidationIssues = append(doc.ValidationIssues, fmt.Sprintf("%s: %s", r.Symbol, msg))
			}
			for _, msg := range r.Validation.Warnings {
				doc.ValidationIssues = append(doc.ValidationIssues, fmt.Sprintf("%s: %s", r.Symbol, msg))
			}
		}
	}
	sort.Strings(doc.ValidationIssues)

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	raw = append(raw, '\n')
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
