// Package reliability keeps the databases healthy and backed up.
package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/rs/zerolog"
)

const (
	backupFilePrefix = "history-backup-"
	backupFileSuffix = ".db.gz"
	backupTimestamp  = "2006-01-02-150405"
	minBackupsToKeep = 3
	stagingDirName   = "backup-staging"
)

// Snapshotter writes a consistent copy of a database to a new file
type Snapshotter interface {
	VacuumInto(ctx context.Context, destPath string) error
	Name() string
}

// BackupInfo represents information about a stored backup
type BackupInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService uploads compressed copies of the history database to a bucket
type BackupService struct {
	source  Snapshotter
	store   ObjectStore
	clock   domain.Clock
	dataDir string
	prefix  string
	log     zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(
	source Snapshotter,
	store ObjectStore,
	dataDir string,
	prefix string,
	clock domain.Clock,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		source:  source,
		store:   store,
		clock:   clock,
		dataDir: dataDir,
		prefix:  prefix,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// BackupHistory copies the history database, compresses it and uploads it
func (s *BackupService) BackupHistory(ctx context.Context) error {
	s.log.Info().Str("database", s.source.Name()).Msg("Starting history backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	timestamp := s.clock.Now().UTC().Format(backupTimestamp)
	dbPath := filepath.Join(stagingDir, s.source.Name()+"-"+timestamp+".db")
	if err := s.source.VacuumInto(ctx, dbPath); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	archiveName := backupFilePrefix + timestamp + backupFileSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	checksum, err := compressFile(dbPath, archivePath)
	if err != nil {
		return fmt.Errorf("failed to compress backup: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, s.prefix+archiveName, archiveFile); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Str("checksum", checksum).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("History backup completed successfully")

	return nil
}

// ListBackups lists stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.prefix+backupFilePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.clock.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		filename := strings.TrimPrefix(obj.Key, s.prefix)
		if !strings.HasPrefix(filename, backupFilePrefix) || !strings.HasSuffix(filename, backupFileSuffix) {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(filename, backupFilePrefix), backupFileSuffix)
		timestamp, err := time.Parse(backupTimestamp, stamp)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than the retention period.
// The newest three are always kept; a retention of 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minBackupsToKeep || retentionDays <= 0 {
		s.log.Debug().Int("count", len(backups)).Msg("Nothing to rotate")
		return nil
	}

	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	deletedCount := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		deletedCount++
	}

	s.log.Info().
		Int("deleted", deletedCount).
		Int("remaining", len(backups)-deletedCount).
		Msg("Backup rotation completed")

	return nil
}

// compressFile gzips src into dst and returns the sha256 of the compressed bytes
func compressFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))
	if _, err := io.Copy(gz, in); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
