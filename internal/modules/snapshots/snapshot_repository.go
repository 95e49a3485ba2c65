package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SnapshotRepository is the append-only SQLite implementation of domain.SnapshotStore.
// It has no update or delete path.
type SnapshotRepository struct {
	db  *sql.DB // history.db
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Insert appends one record
func (r *SnapshotRepository) Insert(ctx context.Context, record domain.SnapshotRecord) (domain.SnapshotRecord, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_snapshots
		(id, position_id, symbol, price, quantity, current_value, cost_basis,
		 profit_rate, snapshot_time, date, allocation_percentage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID.String(),
		record.PositionID,
		nullString(record.Symbol),
		record.Price.String(),
		record.Quantity.String(),
		record.CurrentValue.String(),
		record.CostBasis.String(),
		nullDecimalString(record),
		record.SnapshotTime.UnixNano(),
		record.Date,
		record.AllocationPercentage.String(),
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.SnapshotRecord{}, domain.WrapError(domain.CodePersistenceFailure, "failed to insert snapshot", err)
	}
	return record, nil
}

// queryChunkSize bounds the position ids bound into one IN list, below SQLite's
// host parameter limit
var queryChunkSize = 500

// QueryRange returns the records of the given positions whose snapshot time lies
// in [start, end], oldest first
func (r *SnapshotRepository) QueryRange(ctx context.Context, positionIDs []int64, start, end time.Time) ([]domain.SnapshotRecord, error) {
	records := make([]domain.SnapshotRecord, 0)
	if len(positionIDs) == 0 || end.Before(start) {
		return records, nil
	}

	for offset := 0; offset < len(positionIDs); offset += queryChunkSize {
		limit := offset + queryChunkSize
		if limit > len(positionIDs) {
			limit = len(positionIDs)
		}
		chunk, err := r.queryChunk(ctx, positionIDs[offset:limit], start, end)
		if err != nil {
			return nil, err
		}
		records = append(records, chunk...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].SnapshotTime.Equal(records[j].SnapshotTime) {
			return records[i].SnapshotTime.Before(records[j].SnapshotTime)
		}
		return records[i].ID.String() < records[j].ID.String()
	})
	return records, nil
}

func (r *SnapshotRepository) queryChunk(ctx context.Context, positionIDs []int64, start, end time.Time) ([]domain.SnapshotRecord, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(positionIDs)), ",")
	args := make([]interface{}, 0, len(positionIDs)+2)
	for _, id := range positionIDs {
		args = append(args, id)
	}
	args = append(args, start.UnixNano(), end.UnixNano())

	query := fmt.Sprintf(`SELECT id, position_id, symbol, price, quantity, current_value, cost_basis,
		profit_rate, snapshot_time, date, allocation_percentage, created_at
		FROM position_snapshots
		WHERE position_id IN (%s) AND snapshot_time >= ? AND snapshot_time <= ?
		ORDER BY snapshot_time, id`, placeholders)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.CodePersistenceFailure, "failed to query snapshots", err)
	}
	defer rows.Close()

	records := make([]domain.SnapshotRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, domain.WrapError(domain.CodePersistenceFailure, "failed to scan snapshot", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.CodePersistenceFailure, "error iterating snapshots", err)
	}
	return records, nil
}

// Count returns the number of stored records
func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM position_snapshots").Scan(&count); err != nil {
		return 0, domain.WrapError(domain.CodePersistenceFailure, "failed to count snapshots", err)
	}
	return count, nil
}

func scanRecord(rows *sql.Rows) (domain.SnapshotRecord, error) {
	var record domain.SnapshotRecord
	var id string
	var symbol sql.NullString
	var snapshotTime, createdAt int64

	err := rows.Scan(
		&id,
		&record.PositionID,
		&symbol,
		&record.Price,
		&record.Quantity,
		&record.CurrentValue,
		&record.CostBasis,
		&record.ProfitRate,
		&snapshotTime,
		&record.Date,
		&record.AllocationPercentage,
		&createdAt,
	)
	if err != nil {
		return record, err
	}

	record.ID, err = uuid.Parse(id)
	if err != nil {
		return record, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}
	if symbol.Valid {
		record.Symbol = symbol.String
	}
	record.SnapshotTime = time.Unix(0, snapshotTime)
	record.CreatedAt = time.Unix(0, createdAt)
	return record, nil
}

func nullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

func nullDecimalString(record domain.SnapshotRecord) sql.NullString {
	if !record.ProfitRate.Valid {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: record.ProfitRate.Decimal.String(), Valid: true}
}
