package scheduler

import (
	"testing"

	"github.com/aristath/tracker/internal/database"
	testingpkg "github.com/aristath/tracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.Nop())
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.Nop(), nil, nil)
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	portfolioDB, cleanupPortfolio := testingpkg.NewTestDB(t, database.NamePortfolio)
	defer cleanupPortfolio()
	historyDB, cleanupHistory := testingpkg.NewTestDB(t, database.NameHistory)
	defer cleanupHistory()

	job := NewCheckWALCheckpointsJob(zerolog.Nop(), portfolioDB, historyDB)
	assert.NoError(t, job.Run())
}
