package reliability

import (
	"errors"
	"testing"

	"github.com/aristath/tracker/internal/database"
	testingpkg "github.com/aristath/tracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeBytes(n uint64) DiskUsageFunc {
	return func(path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: n}, nil
	}
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	portfolioDB, cleanupPortfolio := testingpkg.NewTestDB(t, database.NamePortfolio)
	defer cleanupPortfolio()
	historyDB, cleanupHistory := testingpkg.NewTestDB(t, database.NameHistory)
	defer cleanupHistory()

	job := NewDailyMaintenanceJob(t.TempDir(), zerolog.Nop(), portfolioDB, historyDB, nil)
	job.SetDiskUsage(freeBytes(50 * 1024 * 1024 * 1024))

	assert.Equal(t, "daily_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestDailyMaintenanceJob_DiskSpace(t *testing.T) {
	job := NewDailyMaintenanceJob(t.TempDir(), zerolog.Nop())

	job.SetDiskUsage(freeBytes(100 * 1024 * 1024))
	assert.Error(t, job.Run())

	job.SetDiskUsage(freeBytes(1024 * 1024 * 1024))
	assert.NoError(t, job.Run())

	job.SetDiskUsage(func(string) (*disk.UsageStat, error) { return nil, errors.New("no such device") })
	assert.ErrorContains(t, job.Run(), "no such device")
}

func TestWeeklyMaintenanceJob_SkipsLedger(t *testing.T) {
	portfolioDB, cleanupPortfolio := testingpkg.NewTestDB(t, database.NamePortfolio)
	defer cleanupPortfolio()
	historyDB, cleanupHistory := testingpkg.NewTestDB(t, database.NameHistory)
	defer cleanupHistory()

	job := NewWeeklyMaintenanceJob(zerolog.Nop(), portfolioDB, historyDB)
	assert.Equal(t, "weekly_maintenance", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, database.ProfileLedger, historyDB.Profile())
}
