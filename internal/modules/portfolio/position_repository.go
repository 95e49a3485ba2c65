// Package portfolio owns the current position records and manual edits to them.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const positionColumns = `id, owner_id, name, category, symbol, quantity, unit_price,
		current_value, cost_basis, profit_rate, version, created_at, updated_at`

// PositionRepository is the SQLite implementation of domain.PositionStore.
// Writes are guarded by the version column: a save only lands when the caller
// holds the version currently stored.
type PositionRepository struct {
	db    *sql.DB // portfolio.db
	clock domain.Clock
	log   zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *PositionRepository {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &PositionRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "position").Logger(),
	}
}

// GetBySymbol returns every position holding the symbol
func (r *PositionRepository) GetBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return []domain.Position{}, nil
	}
	return r.query(ctx, "SELECT "+positionColumns+" FROM positions WHERE symbol = ? ORDER BY id", symbol)
}

// GetByOwner returns every position owned by the holder
func (r *PositionRepository) GetByOwner(ctx context.Context, ownerID int64) ([]domain.Position, error) {
	return r.query(ctx, "SELECT "+positionColumns+" FROM positions WHERE owner_id = ? ORDER BY id", ownerID)
}

// GetAll returns all positions
func (r *PositionRepository) GetAll(ctx context.Context) ([]domain.Position, error) {
	return r.query(ctx, "SELECT "+positionColumns+" FROM positions ORDER BY id")
}

// GetByID returns a position by ID
func (r *PositionRepository) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM positions WHERE id = ?", id)

	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.CodeNotFound, fmt.Sprintf("position %d", id), domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("failed to get position", err)
	}
	return &pos, nil
}

// Create inserts a new position
func (r *PositionRepository) Create(ctx context.Context, position domain.Position) (domain.Position, error) {
	now := r.clock.Now()
	position.Symbol = domain.NormalizeSymbol(position.Symbol)
	position.Version = 1
	position.CreatedAt = now
	position.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO positions
		(owner_id, name, category, symbol, quantity, unit_price, current_value,
		 cost_basis, profit_rate, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		position.OwnerID,
		position.Name,
		string(position.Category),
		nullString(position.Symbol),
		position.Quantity.String(),
		position.UnitPrice.String(),
		position.CurrentValue.String(),
		position.CostBasis.String(),
		nullDecimal(position.ProfitRate),
		position.Version,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return domain.Position{}, persistenceError("failed to insert position", err)
	}

	position.ID, err = result.LastInsertId()
	if err != nil {
		return domain.Position{}, persistenceError("failed to read position id", err)
	}

	r.log.Info().
		Int64("id", position.ID).
		Int64("owner_id", position.OwnerID).
		Str("symbol", position.Symbol).
		Msg("Position created")
	return position, nil
}

// Save persists an existing position if its version is still current.
// Returns the stored position with the bumped version.
func (r *PositionRepository) Save(ctx context.Context, position domain.Position) (domain.Position, error) {
	now := r.clock.Now()
	position.Symbol = domain.NormalizeSymbol(position.Symbol)

	result, err := r.db.ExecContext(ctx, `
		UPDATE positions SET
			name = ?, category = ?, symbol = ?, quantity = ?, unit_price = ?,
			current_value = ?, cost_basis = ?, profit_rate = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		position.Name,
		string(position.Category),
		nullString(position.Symbol),
		position.Quantity.String(),
		position.UnitPrice.String(),
		position.CurrentValue.String(),
		position.CostBasis.String(),
		nullDecimal(position.ProfitRate),
		now.UnixNano(),
		position.ID,
		position.Version,
	)
	if err != nil {
		return domain.Position{}, persistenceError("failed to save position", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Position{}, persistenceError("failed to save position", err)
	}
	if affected == 0 {
		return domain.Position{}, r.missOrConflict(ctx, position)
	}

	position.Version++
	position.UpdatedAt = now
	return position, nil
}

// missOrConflict tells apart a vanished row from a stale version
func (r *PositionRepository) missOrConflict(ctx context.Context, position domain.Position) error {
	var stored int64
	err := r.db.QueryRowContext(ctx, "SELECT version FROM positions WHERE id = ?", position.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.CodeNotFound, fmt.Sprintf("position %d", position.ID), domain.ErrNotFound)
	}
	if err != nil {
		return persistenceError("failed to read position version", err)
	}

	r.log.Debug().
		Int64("id", position.ID).
		Int64("expected_version", position.Version).
		Int64("stored_version", stored).
		Msg("Version conflict on save")
	return domain.WrapError(domain.CodeConcurrentConflict,
		fmt.Sprintf("position %d changed since version %d", position.ID, position.Version),
		domain.ErrConcurrentConflict)
}

// Delete removes a position. Snapshot history is untouched.
func (r *PositionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM positions WHERE id = ?", id)
	if err != nil {
		return persistenceError("failed to delete position", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.WrapError(domain.CodeNotFound, fmt.Sprintf("position %d", id), domain.ErrNotFound)
	}

	r.log.Info().Int64("id", id).Msg("Position deleted")
	return nil
}

// Count returns the number of positions
func (r *PositionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, persistenceError("failed to count positions", err)
	}
	return count, nil
}

func (r *PositionRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("failed to query positions", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, persistenceError("failed to scan position", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("error iterating positions", err)
	}

	return positions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var pos domain.Position
	var category string
	var symbol sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&pos.ID,
		&pos.OwnerID,
		&pos.Name,
		&category,
		&symbol,
		&pos.Quantity,
		&pos.UnitPrice,
		&pos.CurrentValue,
		&pos.CostBasis,
		&pos.ProfitRate,
		&pos.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return pos, err
	}

	pos.Category = domain.Category(category)
	if symbol.Valid {
		pos.Symbol = symbol.String
	}
	pos.CreatedAt = time.Unix(0, createdAt)
	pos.UpdatedAt = time.Unix(0, updatedAt)
	return pos, nil
}

func persistenceError(message string, err error) error {
	return domain.WrapError(domain.CodePersistenceFailure, message, err)
}

func nullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

func nullDecimal(val decimal.NullDecimal) sql.NullString {
	if !val.Valid {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val.Decimal.String(), Valid: true}
}
