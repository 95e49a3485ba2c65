package di

import (
	"fmt"

	"github.com/aristath/tracker/internal/config"
	"github.com/aristath/tracker/internal/reliability"
	"github.com/aristath/tracker/internal/scheduler"
	"github.com/rs/zerolog"
)

// Maintenance schedules, evaluated in the configured time zone
const (
	walCheckpointSchedule     = "15 * * * *"
	dailyMaintenanceSchedule  = "30 2 * * *"
	weeklyMaintenanceSchedule = "0 4 * * 0"
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is returned stopped.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log, location(cfg))
	container.Scheduler = sched
	instances := &JobInstances{}

	// One sweep job per cadence; cadences never share a cron entry
	for _, cadence := range cfg.SnapshotCadences {
		job := scheduler.NewSnapshotSweepJob(cadence.Name, container.PositionRepo, container.SnapshotWriter, container.Clock, log)
		if err := sched.AddJob(cadence.Spec, job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}
		instances.SnapshotSweeps = append(instances.SnapshotSweeps, job)
	}
	instances.ManualSweep = scheduler.NewSnapshotSweepJob("manual", container.PositionRepo, container.SnapshotWriter, container.Clock, log)

	dbs := container.Databases()

	instances.WALCheckpoints = scheduler.NewCheckWALCheckpointsJob(log, dbs...)
	if err := sched.AddJob(walCheckpointSchedule, instances.WALCheckpoints); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", instances.WALCheckpoints.Name(), err)
	}

	instances.DailyMaintenance = reliability.NewDailyMaintenanceJob(cfg.DataDir, log, dbs...)
	if err := sched.AddJob(dailyMaintenanceSchedule, instances.DailyMaintenance); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", instances.DailyMaintenance.Name(), err)
	}

	instances.WeeklyMaintenance = reliability.NewWeeklyMaintenanceJob(log, dbs...)
	if err := sched.AddJob(weeklyMaintenanceSchedule, instances.WeeklyMaintenance); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", instances.WeeklyMaintenance.Name(), err)
	}

	if container.BackupService != nil {
		instances.HistoryBackup = scheduler.NewHistoryBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, instances.HistoryBackup); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", instances.HistoryBackup.Name(), err)
		}
	}

	container.Jobs = instances
	log.Info().
		Int("cadences", len(instances.SnapshotSweeps)).
		Int("entries", len(sched.Entries())).
		Msg("Background jobs registered")

	return instances, nil
}
