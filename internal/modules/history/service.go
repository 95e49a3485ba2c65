// Package history reconstructs per-date allocation rows from the snapshot history.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Named ranges accepted by QueryHistoryRange
const (
	Range7Days  = "7days"
	Range30Days = "30days"
)

var namedRanges = map[string]time.Duration{
	Range7Days:  7 * 24 * time.Hour,
	Range30Days: 30 * 24 * time.Hour,
}

// Service answers history queries for one holder
type Service struct {
	positions domain.PositionStore
	snapshots domain.SnapshotStore
	clock     domain.Clock
	log       zerolog.Logger
}

// NewService creates a new history service
func NewService(positions domain.PositionStore, snapshots domain.SnapshotStore, clock domain.Clock, log zerolog.Logger) *Service {
	return &Service{
		positions: positions,
		snapshots: snapshots,
		clock:     clock,
		log:       log.With().Str("service", "history").Logger(),
	}
}

// QueryHistory returns one row per calendar date with snapshots of the holder's
// positions in [start, end], ascending by date.
//
// Each row maps symbol to the allocation percentage of that symbol's winning
// record on the date. When several records share a date and symbol, the one with
// the latest SnapshotTime wins, then the later CreatedAt, then the greater ID.
// Records without a symbol contribute nothing.
func (s *Service) QueryHistory(ctx context.Context, ownerID int64, start, end time.Time) ([]domain.DateRow, error) {
	positions, err := s.positions.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions of owner %d: %w", ownerID, err)
	}
	if len(positions) == 0 {
		return []domain.DateRow{}, nil
	}

	ids := make([]int64, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, p.ID)
	}

	records, err := s.snapshots.QueryRange(ctx, ids, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots of owner %d: %w", ownerID, err)
	}

	rows := Collapse(records)
	s.log.Debug().
		Int64("owner_id", ownerID).
		Int("positions", len(ids)).
		Int("records", len(records)).
		Int("rows", len(rows)).
		Msg("History queried")
	return rows, nil
}

// QueryHistoryRange resolves a named range ending now and queries it.
// An empty label means the last 7 days.
func (s *Service) QueryHistoryRange(ctx context.Context, ownerID int64, label string) ([]domain.DateRow, error) {
	start, end, err := s.Window(label)
	if err != nil {
		return nil, err
	}
	return s.QueryHistory(ctx, ownerID, start, end)
}

// Window returns the [start, end] interval of a named range
func (s *Service) Window(label string) (time.Time, time.Time, error) {
	if label == "" {
		label = Range7Days
	}
	span, ok := namedRanges[label]
	if !ok {
		return time.Time{}, time.Time{}, domain.WrapError(domain.CodeInvalidInput,
			fmt.Sprintf("unknown range %q", label), domain.ErrInvalidInput)
	}
	end := s.clock.Now()
	return end.Add(-span), end, nil
}

// Collapse groups records by date and keeps one allocation per symbol and date.
// The result is sorted ascending by date and is never nil.
func Collapse(records []domain.SnapshotRecord) []domain.DateRow {
	type key struct {
		date   string
		symbol string
	}

	winners := make(map[key]domain.SnapshotRecord)
	for _, record := range records {
		if record.Symbol == "" {
			continue
		}
		k := key{date: record.Date, symbol: record.Symbol}
		if current, ok := winners[k]; !ok || newer(record, current) {
			winners[k] = record
		}
	}

	byDate := make(map[string]map[string]decimal.Decimal)
	for k, record := range winners {
		row, ok := byDate[k.date]
		if !ok {
			row = make(map[string]decimal.Decimal)
			byDate[k.date] = row
		}
		row[k.symbol] = record.AllocationPercentage
	}

	rows := make([]domain.DateRow, 0, len(byDate))
	for date, allocations := range byDate {
		rows = append(rows, domain.DateRow{Date: date, Allocations: allocations})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}

// newer reports whether a supersedes b for the same date and symbol
func newer(a, b domain.SnapshotRecord) bool {
	if !a.SnapshotTime.Equal(b.SnapshotTime) {
		return a.SnapshotTime.After(b.SnapshotTime)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}
