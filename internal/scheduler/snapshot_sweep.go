package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// SweepTimeout bounds one full snapshot sweep
const SweepTimeout = 10 * time.Minute

// SweepWriter snapshots many positions at one instant
type SweepWriter interface {
	WriteAll(ctx context.Context, positions []domain.Position, at time.Time) snapshots.SweepReport
}

// SnapshotSweepJob freezes every position into the history on one cadence.
// Failing positions are logged and skipped; only a failed position listing fails the run.
type SnapshotSweepJob struct {
	positions domain.PositionStore
	writer    SweepWriter
	clock     domain.Clock
	cadence   string
	log       zerolog.Logger
}

// NewSnapshotSweepJob creates the sweep job of one cadence
func NewSnapshotSweepJob(
	cadence string,
	positions domain.PositionStore,
	writer SweepWriter,
	clock domain.Clock,
	log zerolog.Logger,
) *SnapshotSweepJob {
	return &SnapshotSweepJob{
		positions: positions,
		writer:    writer,
		clock:     clock,
		cadence:   cadence,
		log:       log.With().Str("job", "snapshot_sweep").Str("cadence", cadence).Logger(),
	}
}

// Name returns the job name
func (j *SnapshotSweepJob) Name() string {
	return "snapshot_sweep_" + j.cadence
}

// Run executes one sweep
func (j *SnapshotSweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), SweepTimeout)
	defer cancel()

	_, err := j.Sweep(ctx)
	return err
}

// Sweep snapshots every position at the clock's current time
func (j *SnapshotSweepJob) Sweep(ctx context.Context) (snapshots.SweepReport, error) {
	at := j.clock.Now()

	positions, err := j.positions.GetAll(ctx)
	if err != nil {
		return snapshots.SweepReport{}, fmt.Errorf("failed to list positions: %w", err)
	}

	report := j.writer.WriteAll(ctx, positions, at)

	event := j.log.Info()
	if len(report.Failures) > 0 {
		event = j.log.Warn()
	}
	event.
		Time("at", at).
		Int("total", report.Total).
		Int("written", report.Written).
		Int("failed", len(report.Failures)).
		Msg("Snapshot sweep completed")

	return report, nil
}
