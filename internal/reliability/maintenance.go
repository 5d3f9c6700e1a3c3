package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/rupeelab/backtest/internal/database"
)

// MaintenanceJob keeps the footprint bounded between runs: disk space
// checks, WAL checkpointing of the history archive, pruning of old
// report directories and rotation of remote backup archives.
type MaintenanceJob struct {
	historyDB     *database.DB         // may be nil when the archive is unused
	backups       *ReportBackupService // may be nil when backup is unconfigured
	retentionDays int
	reportRoot    string
	keepRuns      int
	log           zerolog.Logger
}

// NewMaintenanceJob creates the job. keepRuns bounds how many report
// directories survive a prune; 0 disables pruning. retentionDays
// bounds the age of remote backup archives; 0 keeps all.
func NewMaintenanceJob(historyDB *database.DB, backups *ReportBackupService, retentionDays int, reportRoot string, keepRuns int, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		historyDB:     historyDB,
		backups:       backups,
		retentionDays: retentionDays,
		reportRoot:    reportRoot,
		keepRuns:      keepRuns,
		log:           log.With().Str("component", "maintenance").Logger(),
	}
}

// Run executes all maintenance steps. Individual step failures are
// logged; only a critically full disk aborts.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	if err := j.checkDiskSpace(); err != nil {
		return err
	}
	if j.historyDB != nil {
		if err := j.historyDB.WALCheckpoint(""); err != nil {
			j.log.Error().Err(err).Msg("WAL checkpoint failed")
		}
	}
	if err := j.pruneReportDirs(); err != nil {
		j.log.Error().Err(err).Msg("Report pruning failed")
	}
	if j.backups != nil {
		if err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
			j.log.Error().Err(err).Msg("Backup rotation failed")
		}
	}
	return nil
}

// Name identifies the job in scheduler logs.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.reportRoot)
	if err != nil {
		// A missing report root is created later; not a disk problem.
		j.log.Debug().Err(err).Msg("Disk usage unavailable")
		return nil
	}

	freeGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space check")

	if freeGB < 0.5 {
		return fmt.Errorf("only %.2f GB free on %s", freeGB, j.reportRoot)
	}
	if freeGB < 5.0 {
		j.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	}
	return nil
}

// pruneReportDirs removes the oldest run directories beyond keepRuns.
// Directory names start with MMDD-HHMM, so lexicographic order within
// a year matches age.
func (j *MaintenanceJob) pruneReportDirs() error {
	if j.keepRuns <= 0 {
		return nil
	}
	entries, err := os.ReadDir(j.reportRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read report root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) <= j.keepRuns {
		return nil
	}
	sort.Strings(dirs)

	for _, name := range dirs[:len(dirs)-j.keepRuns] {
		path := filepath.Join(j.reportRoot, name)
		if err := os.RemoveAll(path); err != nil {
			j.log.Error().Err(err).Str("dir", name).Msg("Failed to remove old report dir")
			continue
		}
		j.log.Info().Str("dir", name).Msg("Pruned old report dir")
	}
	return nil
}
