// Package orchestrator fans out per-symbol backtests, aggregates the
// portfolio, computes window metrics and writes the run artifacts.
package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/rupeelab/backtest/internal/config"
	"github.com/rupeelab/backtest/internal/dataload"
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/engine"
	"github.com/rupeelab/backtest/internal/metrics"
	"github.com/rupeelab/backtest/internal/portfolio"
	"github.com/rupeelab/backtest/internal/report"
	"github.com/rupeelab/backtest/internal/store"
	"github.com/rupeelab/backtest/internal/strategy"
	"github.com/rupeelab/backtest/internal/timeframe"
	"github.com/rupeelab/backtest/internal/utils"
	"github.com/rupeelab/backtest/internal/validation"
)

// Options selects what one run executes.
type Options struct {
	BasketFile   string
	Symbols      []string // ad-hoc symbol list, overrides BasketFile
	StrategyKey  string
	Params       strategy.Params
	Interval     domain.Interval
	Period       domain.WindowLabel
	Workers      int
	CapitalMode  domain.CapitalMode
	NoValidate   bool
	UseCacheOnly bool
}

// Outcome summarizes a finished run for the caller.
type Outcome struct {
	RunID        string
	ReportDir    string
	SymbolCount  int
	SuccessCount int
	FailureCount int
	ExitCode     int
}

// Orchestrator wires the data layer, engines, aggregator, metrics and
// report writer into one run.
type Orchestrator struct {
	cfg      *config.Config
	registry *strategy.Registry
	loader   *dataload.Loader
	bars     *store.BarStore // optional archive fallback, may be nil
	log      zerolog.Logger
}

// New creates an orchestrator. bars may be nil when no archive is
// configured.
func New(cfg *config.Config, registry *strategy.Registry, loader *dataload.Loader, bars *store.BarStore, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		loader:   loader,
		bars:     bars,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes the full backtest for one basket. Per-symbol failures
// are collected, not fatal; a summary is always written. The returned
// error covers run-level problems only (bad config, write failures).
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Outcome, error) {
	startedAt := time.Now()
	runID := uuid.NewString()

	basket, err := resolveBasket(opts)
	if err != nil {
		return nil, err
	}
	// Construct once up front so an unknown key or bad params fail the
	// run before any engine starts.
	if _, err := o.registry.New(opts.StrategyKey, opts.Params); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers()
	}
	o.logHostTelemetry(runID, basket.Name, workers)

	results, failures := o.runSymbols(ctx, basket.Symbols, workers, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := report.Input{
		RunID:        runID,
		StrategyName: opts.StrategyKey,
		BasketName:   basket.Name,
		Interval:     opts.Interval,
		StartedAt:    startedAt,
		Workers:      workers,
		Results:      results,
		Failures:     failures,
	}

	if len(results) > 0 {
		agg := portfolio.New(o.cfg.Broker, opts.CapitalMode, o.log)
		port, err := agg.Aggregate(portfolioInputs(results))
		if err != nil {
			return nil, err
		}
		in.Portfolio = port

		windows := windowsFromCurve(port.Daily, opts.Period)
		in.Windows = windows

		benchmark := o.loadBenchmark(opts)
		in.PortfolioMetrics = metrics.ComputeAll(windows, port.Daily, port.Trades, benchmark)
		in.SymbolMetrics = make(map[string][]metrics.WindowMetrics, len(results))
		for _, r := range results {
			in.SymbolMetrics[r.Symbol] = metrics.ComputeAll(windows, r.Equity, r.Consolidated, benchmark)
		}
	}

	in.EndedAt = time.Now()
	dir, err := report.NewWriter(o.cfg.ReportDir, o.log).WriteAll(in)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:        runID,
		ReportDir:    dir,
		SymbolCount:  len(basket.Symbols),
		SuccessCount: len(results),
		FailureCount: len(failures),
	}
	if len(results) == 0 {
		out.ExitCode = 2
	}
	o.log.Info().
		Str("run_id", runID).
		Str("dir", dir).
		Int("ok", out.SuccessCount).
		Int("failed", out.FailureCount).
		Dur("elapsed", time.Since(startedAt)).
		Msg("Run finished")
	return out, nil
}

// runSymbols executes engines with bounded parallelism. Output order
// is independent of scheduling: slots are indexed by symbol position.
func (o *Orchestrator) runSymbols(ctx context.Context, symbols []string, workers int, opts Options) ([]*engine.Result, []report.Failure) {
	type slot struct {
		result  *engine.Result
		failure *report.Failure
	}
	slots := make([]slot, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			res, err := o.runSymbol(gctx, sym, opts)
			if err != nil {
				kind, msg := classify(err)
				o.log.Warn().Str("symbol", sym).Str("kind", string(kind)).Msg(msg)
				slots[i].failure = &report.Failure{Symbol: sym, Kind: kind, Message: msg}
				return nil
			}
			slots[i].result = res
			return nil
		})
	}
	_ = g.Wait()

	var results []*engine.Result
	var failures []report.Failure
	for _, s := range slots {
		if s.result != nil {
			results = append(results, s.result)
		}
		if s.failure != nil {
			failures = append(failures, *s.failure)
		}
	}
	return results, failures
}

func (o *Orchestrator) runSymbol(ctx context.Context, symbol string, opts Options) (*engine.Result, error) {
	defer utils.OperationTimer("backtest_"+symbol, o.log)()

	series, err := o.loadSeries(symbol, opts)
	if err != nil {
		return nil, err
	}

	// A failed validation does not abort the symbol: the engine still
	// runs and the check failures ride along as data warnings. Only
	// unloadable data stops a symbol.
	v := validation.New(o.log)
	var valRes *validation.Result
	if !opts.NoValidate {
		res := v.Validate(series)
		valRes = &res
	}

	strat, err := o.registry.New(opts.StrategyKey, opts.Params)
	if err != nil {
		return nil, err
	}

	eng := engine.New(o.cfg.Broker, o.log)
	result, err := eng.Run(ctx, series, strat, metrics.NewSnapshotSeries(series))
	if err != nil {
		return nil, err
	}
	result.Validation = valRes
	if valRes != nil {
		for _, msg := range valRes.Errors {
			result.Warnings = append(result.Warnings, domain.NewDataWarning(symbol, "%s", msg))
		}
		if viols := v.ValidateTradePrices(series, fillPrices(result.Trades)); len(viols) > 0 {
			valRes.Passed = false
			valRes.Errors = append(valRes.Errors, viols...)
			for _, msg := range viols {
				result.Warnings = append(result.Warnings, domain.NewDataWarning(symbol, "%s", msg))
			}
		}
	}
	return result, nil
}

// fillPrices extracts every fill price for post-hoc range validation.
func fillPrices(events []domain.TradeEvent) []float64 {
	prices := make([]float64, 0, len(events))
	for _, ev := range events {
		prices = append(prices, ev.Price)
	}
	return prices
}

// loadSeries resolves a series for the requested interval: the exact
// CSV first, then resampling from a finer cached interval, then the
// SQLite archive.
func (o *Orchestrator) loadSeries(symbol string, opts Options) (*domain.Series, error) {
	series, err := o.loader.Load(symbol, opts.Interval)
	if err == nil {
		return series, nil
	}

	if base, ok := resampleSource(opts.Interval); ok {
		if src, srcErr := o.loader.Load(symbol, base); srcErr == nil {
			return timeframe.Aggregate(src, opts.Interval)
		}
	}

	if o.bars != nil && !opts.UseCacheOnly {
		if archived, archErr := o.bars.LoadSeries(context.Background(), symbol, opts.Interval, time.Time{}, time.Time{}); archErr == nil {
			return archived, nil
		}
	}
	return nil, err
}

// resampleSource names the finer interval a target can be built from.
func resampleSource(target domain.Interval) (domain.Interval, bool) {
	switch {
	case target == domain.Interval1w, target == domain.Interval1M:
		return domain.Interval1d, true
	case target.IsIntraday() && target != domain.Interval1m:
		return domain.Interval1m, true
	}
	return "", false
}

// loadBenchmark fetches the benchmark closes as an equity curve for
// alpha/beta. Absent data only drops those metrics.
func (o *Orchestrator) loadBenchmark(opts Options) []domain.EquityPoint {
	if o.cfg.Benchmark == "" {
		return nil
	}
	series, err := o.loader.Load(o.cfg.Benchmark, opts.Interval)
	if err != nil {
		o.log.Warn().Err(err).Str("symbol", o.cfg.Benchmark).Msg("Benchmark unavailable, skipping alpha/beta")
		return nil
	}
	points := make([]domain.EquityPoint, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		points = append(points, domain.EquityPoint{
			Timestamp:   series.TS[i],
			TotalEquity: series.Close[i],
		})
	}
	return points
}

func portfolioInputs(results []*engine.Result) []portfolio.Input {
	inputs := make([]portfolio.Input, 0, len(results))
	for _, r := range results {
		inputs = append(inputs, portfolio.Input{
			Symbol: r.Symbol,
			Events: r.Trades,
			Equity: r.Equity,
			Trades: r.Consolidated,
			Series: r.Series,
		})
	}
	return inputs
}

// windowsFromCurve derives the reporting windows from the aggregated
// data range, never from the wall clock.
func windowsFromCurve(daily []domain.EquityPoint, period domain.WindowLabel) []domain.WindowSlice {
	if len(daily) == 0 {
		return nil
	}
	if period == "" {
		period = domain.WindowMax
	}
	return domain.WindowsFor(daily[0].Timestamp, daily[len(daily)-1].Timestamp, period)
}

// resolveBasket prefers an explicit symbol list over the basket file.
func resolveBasket(opts Options) (*dataload.Basket, error) {
	if len(opts.Symbols) > 0 {
		symbols := make([]string, 0, len(opts.Symbols))
		for _, s := range opts.Symbols {
			symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
		return &dataload.Basket{Name: "adhoc", Symbols: symbols}, nil
	}
	if opts.BasketFile == "" {
		return nil, domain.NewConfigError("either a basket file or a symbol list is required")
	}
	return dataload.LoadBasket(opts.BasketFile)
}

func classify(err error) (domain.ErrorKind, string) {
	var re *domain.RunError
	if errors.As(err, &re) {
		return re.Kind, re.Msg
	}
	return domain.KindEngineError, err.Error()
}

func defaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

var telemetryOnce sync.Once

// logHostTelemetry records the host shape once per process.
func (o *Orchestrator) logHostTelemetry(runID, basket string, workers int) {
	telemetryOnce.Do(func() {
		ev := o.log.Info()
		if n, err := cpu.Counts(true); err == nil {
			ev = ev.Int("logical_cpus", n)
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			ev = ev.Uint64("mem_total_mb", vm.Total/1024/1024)
		}
		ev.Msg("Host telemetry")
	})
	o.log.Info().
		Str("run_id", runID).
		Str("basket", basket).
		Int("workers", workers).
		Msg("Starting run")
}
