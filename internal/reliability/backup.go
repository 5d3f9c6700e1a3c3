package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const archivePrefix = "backtest-report-"

// objectStore is the slice of S3Client the backup service needs.
type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Delete(ctx context.Context, key string) error
}

// ReportBackupService archives finished report directories and ships
// them to the object store.
type ReportBackupService struct {
	store objectStore
	log   zerolog.Logger
}

// BackupMetadata describes the contents of one archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	ReportDir string             `json:"report_dir"`
	Artifacts []ArtifactMetadata `json:"artifacts"`
}

// ArtifactMetadata describes a single artifact inside an archive.
type ArtifactMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo summarizes an archive stored remotely.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewReportBackupService creates the service.
func NewReportBackupService(store objectStore, log zerolog.Logger) *ReportBackupService {
	return &ReportBackupService{
		store: store,
		log:   log.With().Str("component", "report_backup").Logger(),
	}
}

// BackupReportDir archives every file in the finished run directory
// plus a metadata manifest, then uploads the tar.gz.
func (s *ReportBackupService) BackupReportDir(ctx context.Context, reportDir string) error {
	start := time.Now()
	s.log.Info().Str("dir", reportDir).Msg("Starting report backup")

	entries, err := os.ReadDir(reportDir)
	if err != nil {
		return fmt.Errorf("failed to read report dir %s: %w", reportDir, err)
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		ReportDir: filepath.Base(reportDir),
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(reportDir, e.Name())
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		checksum, err := fileChecksum(path)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", path, err)
		}
		metadata.Artifacts = append(metadata.Artifacts, ArtifactMetadata{
			Filename:  e.Name(),
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, path)
	}
	if len(files) == 0 {
		return fmt.Errorf("report dir %s has no artifacts", reportDir)
	}

	archivePath, err := s.createArchive(reportDir, files, metadata)
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	key := fmt.Sprintf("%s%s-%s.tar.gz",
		archivePrefix, filepath.Base(reportDir), metadata.Timestamp.Format("2006-01-02-150405"))

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if err := s.store.Upload(ctx, key, f); err != nil {
		return fmt.Errorf("failed to upload report archive: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Int("artifacts", len(files)).
		Dur("duration", time.Since(start)).
		Msg("Report backup completed")
	return nil
}

// ListBackups lists the report archives in the store, newest first.
func (s *ReportBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list report backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		ts, ok := parseArchiveTimestamp(filename)
		if !ok {
			s.log.Warn().Str("filename", filename).Msg("Skipping object with unparseable name")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than the retention period,
// always keeping the newest three. retentionDays 0 keeps everything.
func (s *ReportBackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	const minBackupsToKeep = 3
	if len(backups) <= minBackupsToKeep || retentionDays == 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return nil
}

// parseArchiveTimestamp recovers the upload time from an archive name:
// backtest-report-<dir>-<2006-01-02-150405>.tar.gz
func parseArchiveTimestamp(filename string) (time.Time, bool) {
	if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
		return time.Time{}, false
	}
	trimmed := strings.TrimSuffix(filename, ".tar.gz")
	// The timestamp is the last four dash-separated fields.
	parts := strings.Split(trimmed, "-")
	if len(parts) < 4 {
		return time.Time{}, false
	}
	tsStr := strings.Join(parts[len(parts)-4:], "-")
	ts, err := time.Parse("2006-01-02-150405", tsStr)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (s *ReportBackupService) createArchive(reportDir string, files []string, metadata BackupMetadata) (string, error) {
	tmp, err := os.CreateTemp("", "report-backup-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer tmp.Close()

	gzw := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gzw)

	manifest, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode backup metadata: %w", err)
	}
	hdr := &tar.Header{
		Name:    "backup-metadata.json",
		Size:    int64(len(manifest)),
		Mode:    0o644,
		ModTime: metadata.Timestamp,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return "", fmt.Errorf("failed to write metadata header: %w", err)
	}
	if _, err := tw.Write(manifest); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	for _, path := range files {
		if err := addFileToArchive(tw, path); err != nil {
			return "", fmt.Errorf("failed to add %s to archive: %w", filepath.Base(path), err)
		}
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize gzip: %w", err)
	}
	return tmp.Name(), nil
}

func addFileToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
