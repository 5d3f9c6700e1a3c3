// Package main is the entry point for the backtest CLI. It loads
// configuration, wires the data layer and orchestrator, and maps run
// outcomes to exit codes: 0 success, 1 config error, 2 all symbols
// failed, 3 internal error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rupeelab/backtest/internal/config"
	"github.com/rupeelab/backtest/internal/database"
	"github.com/rupeelab/backtest/internal/dataload"
	"github.com/rupeelab/backtest/internal/domain"
	"github.com/rupeelab/backtest/internal/orchestrator"
	"github.com/rupeelab/backtest/internal/reliability"
	"github.com/rupeelab/backtest/internal/store"
	"github.com/rupeelab/backtest/internal/strategy"
	"github.com/rupeelab/backtest/internal/utils"
	"github.com/rupeelab/backtest/pkg/logger"
)

type cliFlags struct {
	basketFile   string
	symbols      string
	strategyKey  string
	interval     string
	period       string
	paramsJSON   string
	workers      int
	useCacheOnly bool
	noValidate   bool
	capitalMode  string
	brokerFile   string
	schedule     string
	backup       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:           "backtest",
		Short:         "Run equity backtests over a basket of symbols",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBacktest(cmd.Context(), flags)
		},
	}
	rootCmd.Flags().StringVar(&flags.basketFile, "basket_file", "", "basket file listing symbols")
	rootCmd.Flags().StringVar(&flags.symbols, "symbols", "", "comma-separated symbol list, overrides --basket_file")
	rootCmd.Flags().StringVar(&flags.strategyKey, "strategy", "", "strategy key (required)")
	rootCmd.Flags().StringVar(&flags.interval, "interval", "1d", "bar interval label")
	rootCmd.Flags().StringVar(&flags.period, "period", "MAX", "reporting period: MAX, 5Y, 3Y or 1Y")
	rootCmd.Flags().StringVar(&flags.paramsJSON, "params", "", "strategy parameter overrides as JSON")
	rootCmd.Flags().IntVar(&flags.workers, "workers", 0, "parallel engines (default: logical CPUs)")
	rootCmd.Flags().BoolVar(&flags.useCacheOnly, "use_cache_only", false, "use cached CSVs only, skip archive fallback")
	rootCmd.Flags().BoolVar(&flags.noValidate, "no_validate", false, "skip series validation")
	rootCmd.Flags().StringVar(&flags.capitalMode, "capital_mode", string(domain.CapitalModeIsolated), "capital mode: isolated or shared")
	rootCmd.Flags().StringVar(&flags.brokerFile, "broker_config", "", "broker YAML override file")
	rootCmd.Flags().StringVar(&flags.schedule, "schedule", "", "cron spec for recurring runs")
	rootCmd.Flags().BoolVar(&flags.backup, "backup", false, "upload the report dir to S3 after the run")
	_ = rootCmd.MarkFlagRequired("strategy")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import cached CSV series into the SQLite history archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd.Context(), flags)
		},
	}
	importCmd.Flags().StringVar(&flags.basketFile, "basket_file", "", "basket file listing symbols (required)")
	importCmd.Flags().StringVar(&flags.interval, "interval", "1d", "bar interval label")
	_ = importCmd.MarkFlagRequired("basket_file")
	rootCmd.AddCommand(importCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var re *domain.RunError
		if errors.As(err, &re) && re.Kind == domain.KindConfigError {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 3
	}
	return 0
}

// exitError carries a non-zero code out of a completed run.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("run finished with exit code %d", e.code)
}

func runBacktest(ctx context.Context, flags *cliFlags) error {
	cfg, log, err := setup(flags)
	if err != nil {
		return err
	}
	opts, err := buildOptions(flags)
	if err != nil {
		return err
	}

	o, bars, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	if bars != nil {
		defer bars.Close()
	}

	backupSvc, err := newBackupService(cfg, log)
	if err != nil {
		return err
	}
	if flags.backup && backupSvc == nil {
		return domain.NewConfigError("backup requested but BACKUP_S3_BUCKET is not set")
	}

	runOnce := func() error {
		out, err := o.Run(ctx, *opts)
		if err != nil {
			return err
		}
		if flags.backup {
			if err := backupSvc.BackupReportDir(ctx, out.ReportDir); err != nil {
				log.Error().Err(err).Msg("Report backup failed")
			}
		}
		if out.ExitCode != 0 {
			return &exitError{code: out.ExitCode}
		}
		return nil
	}

	if flags.schedule == "" {
		return runOnce()
	}

	var historyDB *database.DB
	if bars != nil {
		historyDB = bars.db
	}
	maint := reliability.NewMaintenanceJob(
		historyDB, backupSvc, cfg.Backup.RetentionDays,
		cfg.ReportDir, cfg.KeepRuns, log,
	)
	return runScheduled(ctx, flags.schedule, runOnce, maint, log)
}

// runScheduled executes the run immediately, then on the cron spec
// until the context is cancelled. Maintenance runs after every pass to
// keep the local footprint bounded between runs.
func runScheduled(ctx context.Context, spec string, runOnce func() error, maint *reliability.MaintenanceJob, log zerolog.Logger) error {
	pass := func() error {
		err := runOnce()
		if merr := maint.Run(ctx); merr != nil {
			log.Error().Err(merr).Str("job", maint.Name()).Msg("Maintenance failed")
		}
		return err
	}

	if err := pass(); err != nil {
		var exitErr *exitError
		if !errors.As(err, &exitErr) {
			return err
		}
		log.Warn().Int("exit_code", exitErr.code).Msg("Initial scheduled run failed")
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := pass(); err != nil {
			log.Error().Err(err).Msg("Scheduled run failed")
		}
	})
	if err != nil {
		return domain.NewConfigError("invalid cron spec %q: %s", spec, err)
	}

	log.Info().Str("spec", spec).Msg("Entering scheduled mode")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func runImport(ctx context.Context, flags *cliFlags) error {
	cfg, log, err := setup(flags)
	if err != nil {
		return err
	}
	interval, err := domain.ParseInterval(flags.interval)
	if err != nil {
		return domain.NewConfigError("invalid interval: %s", err)
	}
	basket, err := dataload.LoadBasket(flags.basketFile)
	if err != nil {
		return err
	}

	bars, err := openBarStore(cfg, log)
	if err != nil {
		return err
	}
	defer bars.Close()

	loader := dataload.NewLoader(cfg.DataDir, cfg.DataCacheDir, log)
	imported := 0
	for _, sym := range basket.Symbols {
		series, err := loader.Load(sym, interval)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("Skipping symbol")
			continue
		}
		n, err := bars.store.UpsertSeries(ctx, series)
		if err != nil {
			return err
		}
		imported += n
	}
	if imported == 0 {
		return domain.NewDataError("", "no bars imported for basket %s", basket.Name)
	}
	log.Info().Int("bars", imported).Msg("Import finished")
	return nil
}

func setup(flags *cliFlags) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(flags.brokerFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	if err := cfg.EnsureDirs(); err != nil {
		return nil, log, err
	}
	return cfg, log, nil
}

func buildOptions(flags *cliFlags) (*orchestrator.Options, error) {
	interval, err := domain.ParseInterval(flags.interval)
	if err != nil {
		return nil, domain.NewConfigError("invalid interval: %s", err)
	}

	period := domain.WindowLabel(flags.period)
	switch period {
	case domain.Window1Y, domain.Window3Y, domain.Window5Y, domain.WindowMax:
	default:
		return nil, domain.NewConfigError("invalid period %q, want MAX, 5Y, 3Y or 1Y", flags.period)
	}

	mode := domain.CapitalMode(flags.capitalMode)
	switch mode {
	case domain.CapitalModeIsolated, domain.CapitalModeShared:
	default:
		return nil, domain.NewConfigError("invalid capital_mode %q, want isolated or shared", flags.capitalMode)
	}

	params := strategy.Params{}
	if flags.paramsJSON != "" {
		if err := json.Unmarshal([]byte(flags.paramsJSON), &params); err != nil {
			return nil, domain.NewConfigError("malformed --params JSON: %s", err)
		}
	}

	return &orchestrator.Options{
		BasketFile:   flags.basketFile,
		Symbols:      utils.ParseCSV(flags.symbols),
		StrategyKey:  flags.strategyKey,
		Params:       params,
		Interval:     interval,
		Period:       period,
		Workers:      flags.workers,
		CapitalMode:  mode,
		NoValidate:   flags.noValidate,
		UseCacheOnly: flags.useCacheOnly,
	}, nil
}

func buildOrchestrator(cfg *config.Config, log zerolog.Logger) (*orchestrator.Orchestrator, *barStoreHandle, error) {
	loader := dataload.NewLoader(cfg.DataDir, cfg.DataCacheDir, log)
	registry := strategy.NewPopulatedRegistry(log)

	var bars *store.BarStore
	var handle *barStoreHandle
	if cfg.HistoryDB != "" {
		if h, err := openBarStore(cfg, log); err != nil {
			log.Warn().Err(err).Msg("History archive unavailable")
		} else {
			bars = h.store
			handle = h
		}
	}
	return orchestrator.New(cfg, registry, loader, bars, log), handle, nil
}

// barStoreHandle pairs the store with its database for cleanup.
type barStoreHandle struct {
	store *store.BarStore
	db    *database.DB
}

func (h *barStoreHandle) Close() {
	_ = h.db.Close()
}

func openBarStore(cfg *config.Config, log zerolog.Logger) (*barStoreHandle, error) {
	db, err := database.New(database.Config{
		Path:    cfg.HistoryDB,
		Profile: database.ProfileArchive,
		Name:    "history",
	})
	if err != nil {
		return nil, err
	}
	bars, err := store.NewBarStore(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &barStoreHandle{store: bars, db: db}, nil
}

// newBackupService builds the report backup service, or nil when
// backup is not configured.
func newBackupService(cfg *config.Config, log zerolog.Logger) (*reliability.ReportBackupService, error) {
	if !cfg.Backup.Enabled() {
		return nil, nil
	}
	client, err := reliability.NewS3Client(
		cfg.Backup.Endpoint, cfg.Backup.Region,
		cfg.Backup.AccessKey, cfg.Backup.SecretKey,
		cfg.Backup.Bucket, log,
	)
	if err != nil {
		return nil, err
	}
	return reliability.NewReportBackupService(client, log), nil
}
