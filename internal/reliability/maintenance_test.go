package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceJob_PrunesOldReportDirs(t *testing.T) {
	root := t.TempDir()
	dirs := []string{
		"0101-0900-ema_cross-nifty-1d",
		"0201-0900-ema_cross-nifty-1d",
		"0301-0900-ema_cross-nifty-1d",
		"0401-0900-ema_cross-nifty-1d",
	}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	j := NewMaintenanceJob(nil, nil, 0, root, 2, zerolog.Nop())
	require.NoError(t, j.Run(context.Background()))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, dirs[2], entries[0].Name(), "oldest dirs pruned first")
	assert.Equal(t, dirs[3], entries[1].Name())
}

func TestMaintenanceJob_PruningDisabled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0101-0900-x-y-1d"), 0o755))

	j := NewMaintenanceJob(nil, nil, 0, root, 0, zerolog.Nop())
	require.NoError(t, j.Run(context.Background()))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMaintenanceJob_MissingReportRoot(t *testing.T) {
	j := NewMaintenanceJob(nil, nil, 0, filepath.Join(t.TempDir(), "nope"), 5, zerolog.Nop())
	assert.NoError(t, j.Run(context.Background()))
}

func TestMaintenanceJob_RotatesRemoteBackups(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	for i := 0; i < 6; i++ {
		ts := now.AddDate(0, 0, -i*10).Format("2006-01-02-150405")
		store.uploads[fmt.Sprintf("%srun-%s.tar.gz", archivePrefix, ts)] = []byte("x")
	}
	svc := NewReportBackupService(store, zerolog.Nop())

	j := NewMaintenanceJob(nil, svc, 25, t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, j.Run(context.Background()))

	assert.Len(t, store.deleted, 3, "archives beyond retention rotated out")
}

func TestMaintenanceJob_NoBackupServiceSkipsRotation(t *testing.T) {
	j := NewMaintenanceJob(nil, nil, 25, t.TempDir(), 0, zerolog.Nop())
	assert.NoError(t, j.Run(context.Background()))
}
