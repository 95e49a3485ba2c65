// Package di wires the application's databases, repositories, services and jobs.
package di

import (
	"github.com/aristath/tracker/internal/clients/pricefeed"
	"github.com/aristath/tracker/internal/database"
	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/history"
	"github.com/aristath/tracker/internal/modules/portfolio"
	"github.com/aristath/tracker/internal/modules/prices"
	"github.com/aristath/tracker/internal/modules/snapshots"
	"github.com/aristath/tracker/internal/reliability"
	"github.com/aristath/tracker/internal/scheduler"
)

// Container holds every long-lived dependency of the process.
// It is built by Wire and handed to the HTTP server.
type Container struct {
	// Databases
	PortfolioDB *database.DB // Current positions, mutable
	HistoryDB   *database.DB // Snapshot records, append-only

	Clock domain.Clock

	// Repositories
	PositionRepo *portfolio.PositionRepository
	SnapshotRepo *snapshots.SnapshotRepository

	// Services
	SnapshotWriter   *snapshots.Writer
	Propagator       *prices.Propagator
	PortfolioService *portfolio.PortfolioService
	HistoryService   *history.Service
	BackupService    *reliability.BackupService // nil when no backup bucket is configured

	// Clients
	PriceFeed *pricefeed.Client

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances keeps the registered jobs for manual triggering
type JobInstances struct {
	SnapshotSweeps    []*scheduler.SnapshotSweepJob // One per configured cadence
	ManualSweep       *scheduler.SnapshotSweepJob   // Used by POST /api/snapshots/run
	WALCheckpoints    *scheduler.CheckWALCheckpointsJob
	DailyMaintenance  *reliability.DailyMaintenanceJob
	WeeklyMaintenance *reliability.WeeklyMaintenanceJob
	HistoryBackup     *scheduler.HistoryBackupJob // nil when backups are disabled
}

// Databases returns the open databases in a stable order
func (c *Container) Databases() []*database.DB {
	dbs := make([]*database.DB, 0, 2)
	for _, db := range []*database.DB{c.PortfolioDB, c.HistoryDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops background work and closes the databases
func (c *Container) Close() error {
	if c.PriceFeed != nil {
		c.PriceFeed.Stop()
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}

	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
