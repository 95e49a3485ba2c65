package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/tracker/internal/database"
	"github.com/aristath/tracker/internal/domain"
	testingpkg "github.com/aristath/tracker/internal/testing"
	"github.com/aristath/tracker/internal/modules/valuation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*PositionRepository, *testingpkg.FakeClock) {
	t.Helper()
	db := testingpkg.NewMemoryDB(t, database.NamePortfolio)
	clock := testingpkg.NewFakeClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	return NewPositionRepository(db, clock, zerolog.Nop()), clock
}

func createPosition(t *testing.T, repo *PositionRepository, ownerID int64, symbol, quantity, price, cost string) domain.Position {
	t.Helper()
	pos := valuation.Recalculate(testingpkg.NewCryptoPosition(ownerID, symbol, quantity, price, cost))
	created, err := repo.Create(context.Background(), pos)
	require.NoError(t, err)
	return created
}

func TestPositionRepository_CreateAndGetByID(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	created := createPosition(t, repo, 1, " btc ", "2", "10000", "8000")
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, "BTC", created.Symbol)
	assert.True(t, created.CreatedAt.Equal(clock.Now()))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, domain.CategoryCrypto, got.Category)
	assert.Equal(t, "20000", got.CurrentValue.String())
	require.True(t, got.ProfitRate.Valid)
	assert.Equal(t, "25", got.ProfitRate.Decimal.String())
	assert.True(t, got.CreatedAt.Equal(clock.Now()))
}

func TestPositionRepository_NullProfitRateAndSymbolRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created := createPosition(t, repo, 1, "", "1000", "1", "0")

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Symbol)
	assert.False(t, got.ProfitRate.Valid)
}

func TestPositionRepository_ExactDecimalsSurvive(t *testing.T) {
	repo, _ := newTestRepository(t)

	created := createPosition(t, repo, 1, "ETH", "0.1", "0.2", "0.15")

	got, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.02", got.CurrentValue.String())
}

func TestPositionRepository_GetByID_NotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetByID(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestPositionRepository_GetBySymbolAndOwner(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a := createPosition(t, repo, 1, "BTC", "1", "40000", "30000")
	createPosition(t, repo, 1, "ETH", "10", "2000", "1500")
	c := createPosition(t, repo, 2, "BTC", "0.5", "40000", "35000")

	btc, err := repo.GetBySymbol(ctx, "btc")
	require.NoError(t, err)
	require.Len(t, btc, 2)
	assert.Equal(t, a.ID, btc[0].ID)
	assert.Equal(t, c.ID, btc[1].ID)

	none, err := repo.GetBySymbol(ctx, "DOGE")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	owned, err := repo.GetByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPositionRepository_Save_BumpsVersion(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	created := createPosition(t, repo, 1, "BTC", "2", "10000", "8000")
	clock.Advance(time.Minute)

	saved, err := repo.Save(ctx, valuation.Reprice(created, testingpkg.Dec("12000")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.True(t, saved.UpdatedAt.Equal(clock.Now()))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "24000", got.CurrentValue.String())
	assert.Equal(t, "50", got.ProfitRate.Decimal.String())
}

func TestPositionRepository_Save_StaleVersionConflicts(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created := createPosition(t, repo, 1, "BTC", "2", "10000", "8000")

	_, err := repo.Save(ctx, valuation.Reprice(created, testingpkg.Dec("11000")))
	require.NoError(t, err)

	// created still carries version 1
	_, err = repo.Save(ctx, valuation.Reprice(created, testingpkg.Dec("9000")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrentConflict)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "11000", got.UnitPrice.String())
}

func TestPositionRepository_Save_MissingRow(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Save(context.Background(), domain.Position{ID: 99, Version: 1, Name: "gone", Category: domain.CategoryOther})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionRepository_Delete(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created := createPosition(t, repo, 1, "SOL", "3", "150", "100")

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err := repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionRepository_ClosedDatabaseIsPersistenceFailure(t *testing.T) {
	db := testingpkg.NewMemoryDB(t, database.NamePortfolio)
	repo := NewPositionRepository(db, nil, zerolog.Nop())
	require.NoError(t, db.Close())

	_, err := repo.GetAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}
