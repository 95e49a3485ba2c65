package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// BackupTimeout bounds one backup run including rotation
const BackupTimeout = 30 * time.Minute

// HistoryBackuper uploads and rotates history database backups
type HistoryBackuper interface {
	BackupHistory(ctx context.Context) error
	RotateOldBackups(ctx context.Context, retentionDays int) error
}

// HistoryBackupJob uploads the history database and prunes old backups
type HistoryBackupJob struct {
	backup        HistoryBackuper
	retentionDays int
	log           zerolog.Logger
}

// NewHistoryBackupJob creates a new HistoryBackupJob
func NewHistoryBackupJob(backup HistoryBackuper, retentionDays int, log zerolog.Logger) *HistoryBackupJob {
	return &HistoryBackupJob{
		backup:        backup,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "history_backup").Logger(),
	}
}

// Name returns the job name
func (j *HistoryBackupJob) Name() string {
	return "history_backup"
}

// Run uploads a backup, then rotates. A rotation failure is logged only.
func (j *HistoryBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), BackupTimeout)
	defer cancel()

	if err := j.backup.BackupHistory(ctx); err != nil {
		return fmt.Errorf("history backup failed: %w", err)
	}

	if j.retentionDays > 0 {
		if err := j.backup.RotateOldBackups(ctx, j.retentionDays); err != nil {
			j.log.Warn().Err(err).Msg("Failed to rotate old backups")
		}
	}

	return nil
}
