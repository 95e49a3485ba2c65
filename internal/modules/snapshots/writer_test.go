package snapshots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/valuation"
	testingpkg "github.com/aristath/tracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, cfg WriterConfig) (*Writer, *testingpkg.MockSnapshotStore, *testingpkg.FakeClock) {
	t.Helper()
	store := testingpkg.NewMockSnapshotStore()
	clock := testingpkg.NewFakeClock(time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC))
	return NewWriter(store, clock, cfg, zerolog.Nop()), store, clock
}

func btcPosition() domain.Position {
	pos := valuation.Recalculate(testingpkg.NewCryptoPosition(1, "BTC", "2", "10000", "8000"))
	pos.ID = 7
	return pos
}

func TestWriteSnapshot_CopiesPosition(t *testing.T) {
	writer, store, clock := newTestWriter(t, WriterConfig{})
	at := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)

	record, err := writer.WriteSnapshot(context.Background(), btcPosition(), at)
	require.NoError(t, err)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", record.ID.String())
	assert.Equal(t, int64(7), record.PositionID)
	assert.Equal(t, "BTC", record.Symbol)
	assert.Equal(t, "10000", record.Price.String())
	assert.Equal(t, "2", record.Quantity.String())
	assert.Equal(t, "20000", record.CurrentValue.String())
	assert.Equal(t, "8000", record.CostBasis.String())
	require.True(t, record.ProfitRate.Valid)
	assert.Equal(t, "25", record.ProfitRate.Decimal.String())
	assert.Equal(t, "40", record.AllocationPercentage.String())
	assert.Equal(t, "2026-10-19", record.Date)
	assert.True(t, record.SnapshotTime.Equal(at))
	assert.True(t, record.CreatedAt.Equal(clock.Now()))
	assert.Len(t, store.Records(), 1)
}

func TestWriteSnapshot_TwoWritesProduceDistinctRecords(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})
	at := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)

	first, err := writer.WriteSnapshot(context.Background(), btcPosition(), at)
	require.NoError(t, err)
	second, err := writer.WriteSnapshot(context.Background(), btcPosition(), at)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, store.Records(), 2)
}

func TestWriteSnapshot_UnknownSymbolWeighsZero(t *testing.T) {
	writer, _, _ := newTestWriter(t, WriterConfig{})
	pos := btcPosition()
	pos.Symbol = "DOGE"

	record, err := writer.WriteSnapshot(context.Background(), pos, time.Now())
	require.NoError(t, err)
	assert.True(t, record.AllocationPercentage.IsZero())
}

func TestWriteSnapshot_ProfitRateUnsetIsCopied(t *testing.T) {
	writer, _, _ := newTestWriter(t, WriterConfig{})
	pos := valuation.Recalculate(testingpkg.NewCryptoPosition(1, "ETH", "1", "2000", "0"))

	record, err := writer.WriteSnapshot(context.Background(), pos, time.Now())
	require.NoError(t, err)
	assert.False(t, record.ProfitRate.Valid)
}

func TestWriteSnapshot_DateUsesConfiguredZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	writer, _, _ := newTestWriter(t, WriterConfig{Location: tokyo})

	// 20:00 UTC is 05:00 the next day in Tokyo
	record, err := writer.WriteSnapshot(context.Background(), btcPosition(), time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20", record.Date)
}

func TestWriteSnapshot_PersistenceFailure(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})
	store.SetError(errors.New("disk I/O error"))

	_, err := writer.WriteSnapshot(context.Background(), btcPosition(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.CodePersistenceFailure, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestWriteSnapshot_RetriesSameRecord(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{Attempts: 3})
	store.FailNextInserts(2)

	record, err := writer.WriteSnapshot(context.Background(), btcPosition(), time.Now())
	require.NoError(t, err)

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
}

func TestWriteSnapshot_SingleAttemptByDefault(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})
	store.FailNextInserts(1)

	_, err := writer.WriteSnapshot(context.Background(), btcPosition(), time.Now())
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, store.Records())
}

func TestWriteAll_IsolatesFailures(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})
	positions := []domain.Position{btcPosition(), btcPosition(), btcPosition()}
	positions[0].ID = 1
	positions[1].ID = 2
	positions[2].ID = 3
	store.FailInsertFor(2, errors.New("constraint failed"))

	at := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)
	report := writer.WriteAll(context.Background(), positions, at)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Written)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), report.Failures[0].PositionID)
	assert.True(t, report.At.Equal(at))

	records := store.Records()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.SnapshotTime.Equal(at))
	}
}

func TestWriteAll_NoPositions(t *testing.T) {
	writer, _, _ := newTestWriter(t, WriterConfig{})

	report := writer.WriteAll(context.Background(), nil, time.Now())
	assert.Zero(t, report.Total)
	assert.NotNil(t, report.Failures)
}
