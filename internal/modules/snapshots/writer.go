// Package snapshots freezes position state into the append-only history.
package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DateLayout is the calendar date format of SnapshotRecord.Date
const DateLayout = "2006-01-02"

// WriterConfig configures a Writer
type WriterConfig struct {
	Location *time.Location // Zone the snapshot date is computed in, UTC when nil
	Attempts int            // Insert attempts per record, at least 1
}

// Writer builds snapshot records from positions and appends them to the store
type Writer struct {
	store    domain.SnapshotStore
	clock    domain.Clock
	location *time.Location
	attempts int
	log      zerolog.Logger
}

// NewWriter creates a new snapshot writer
func NewWriter(store domain.SnapshotStore, clock domain.Clock, cfg WriterConfig, log zerolog.Logger) *Writer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Writer{
		store:    store,
		clock:    clock,
		location: cfg.Location,
		attempts: cfg.Attempts,
		log:      log.With().Str("component", "snapshot_writer").Logger(),
	}
}

// Build creates the record for a position at a given instant without storing it
func (w *Writer) Build(position domain.Position, at time.Time) domain.SnapshotRecord {
	return domain.SnapshotRecord{
		ID:                   uuid.New(),
		PositionID:           position.ID,
		Symbol:               position.Symbol,
		Price:                position.UnitPrice,
		Quantity:             position.Quantity,
		CurrentValue:         position.CurrentValue,
		CostBasis:            position.CostBasis,
		ProfitRate:           position.ProfitRate,
		SnapshotTime:         at,
		Date:                 at.In(w.location).Format(DateLayout),
		AllocationPercentage: AllocationWeight(position.Symbol),
		CreatedAt:            w.clock.Now(),
	}
}

// WriteSnapshot freezes the position as of at and appends it.
// Each call produces a new record with a fresh ID. The same record is retried
// on insert failure; the final failure is a PersistenceFailure.
func (w *Writer) WriteSnapshot(ctx context.Context, position domain.Position, at time.Time) (domain.SnapshotRecord, error) {
	record := w.Build(position, at)

	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		var stored domain.SnapshotRecord
		stored, err = w.store.Insert(ctx, record)
		if err == nil {
			return stored, nil
		}
		if ctx.Err() != nil {
			break
		}
		w.log.Debug().Err(err).Int64("position_id", position.ID).Int("attempt", attempt).Msg("Snapshot insert failed")
	}

	return domain.SnapshotRecord{}, domain.WrapError(domain.CodePersistenceFailure,
		fmt.Sprintf("failed to write snapshot of position %d", position.ID), err)
}

// SnapshotFailure is one position a sweep could not snapshot
type SnapshotFailure struct {
	Err        error  `json:"-"`
	Message    string `json:"error"`
	PositionID int64  `json:"position_id"`
}

// SweepReport summarizes one pass over many positions
type SweepReport struct {
	At       time.Time         `json:"at"`
	Failures []SnapshotFailure `json:"failures"`
	Total    int               `json:"total"`
	Written  int               `json:"written"`
}

// WriteAll snapshots every position at the same instant.
// A failing position is recorded in the report and never stops the pass.
func (w *Writer) WriteAll(ctx context.Context, positions []domain.Position, at time.Time) SweepReport {
	report := SweepReport{
		At:       at,
		Total:    len(positions),
		Failures: make([]SnapshotFailure, 0),
	}

	for _, position := range positions {
		if _, err := w.WriteSnapshot(ctx, position, at); err != nil {
			w.log.Error().Err(err).Int64("position_id", position.ID).Msg("Failed to snapshot position")
			report.Failures = append(report.Failures, SnapshotFailure{
				PositionID: position.ID,
				Err:        err,
				Message:    err.Error(),
			})
			continue
		}
		report.Written++
	}

	return report
}
