package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/tracker/internal/config"
	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/portfolio"
	testingpkg "github.com/aristath/tracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:               t.TempDir(),
		Location:              time.UTC,
		TimeZone:              "UTC",
		Port:                  8001,
		SnapshotWriteAttempts: 1,
		SnapshotCadences: []config.Cadence{
			{Name: "daily", Spec: "0 1 * * *"},
			{Name: "hourly", Spec: "0 * * * *"},
		},
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.PortfolioDB)
	assert.NotNil(t, container.HistoryDB)
	assert.Len(t, container.Databases(), 2)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "portfolio.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "history.db"))

	_, err = container.PortfolioDB.Conn().Exec("SELECT COUNT(*) FROM positions")
	assert.NoError(t, err)
	_, err = container.HistoryDB.Conn().Exec("SELECT COUNT(*) FROM position_snapshots")
	assert.NoError(t, err)
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(file, "data")

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}

func TestWire(t *testing.T) {
	container, err := Wire(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.PositionRepo)
	assert.NotNil(t, container.SnapshotRepo)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.HistoryService)
	assert.NotNil(t, container.Propagator)
	assert.NotNil(t, container.PriceFeed)
	assert.False(t, container.PriceFeed.Enabled())
	assert.Nil(t, container.BackupService)

	require.NotNil(t, container.Jobs)
	assert.Len(t, container.Jobs.SnapshotSweeps, 2)
	assert.NotNil(t, container.Jobs.ManualSweep)
	assert.Nil(t, container.Jobs.HistoryBackup)

	// two cadences, WAL checkpoints, daily and weekly maintenance
	assert.Len(t, container.Scheduler.Entries(), 5)
}

func TestRegisterJobs_InvalidCadence(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotCadences = []config.Cadence{{Name: "broken", Spec: "not a cron"}}

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}

func TestWire_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	clock := testingpkg.NewFakeClock(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	container.Clock = clock
	require.NoError(t, InitializeRepositories(container, zerolog.Nop()))
	require.NoError(t, InitializeServices(context.Background(), container, cfg, zerolog.Nop()))
	_, err = RegisterJobs(container, cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	btc, err := container.PortfolioService.CreatePosition(ctx, portfolio.NewPosition{
		OwnerID: 1, Name: "Bitcoin", Category: domain.CategoryCrypto, Symbol: "BTC",
		Quantity: testingpkg.Dec("1"), UnitPrice: testingpkg.Dec("40000"), CostBasis: testingpkg.Dec("40000"),
	})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	result := container.Propagator.Propagate(ctx, "btc", testingpkg.Dec("41000"))
	require.True(t, result.OK())
	require.Len(t, result.Updated, 1)
	assert.Equal(t, "41000", result.Updated[0].CurrentValue.String())
	assert.Equal(t, "2.5", result.Updated[0].ProfitRate.Decimal.String())

	report, err := container.Jobs.ManualSweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)

	rows, err := container.HistoryService.QueryHistory(ctx, 1, clock.Now().Add(-48*time.Hour), clock.Now())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-10-18", rows[0].Date)
	assert.Equal(t, "2026-10-19", rows[1].Date)
	assert.Equal(t, "40", rows[1].Allocations["BTC"].String())

	// Snapshots outlive their position
	require.NoError(t, container.PortfolioService.DeletePosition(ctx, btc.ID))
	records, err := container.SnapshotRepo.QueryRange(ctx, []int64{btc.ID}, clock.Now().Add(-48*time.Hour), clock.Now())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
