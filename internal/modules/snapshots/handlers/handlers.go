// Package handlers provides HTTP handlers for on-demand snapshot sweeps.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/tracker/internal/httpapi"
	"github.com/aristath/tracker/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// Sweeper snapshots every position now
type Sweeper interface {
	Sweep(ctx context.Context) (snapshots.SweepReport, error)
}

// Handler handles snapshot HTTP requests
type Handler struct {
	sweeper Sweeper
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(sweeper Sweeper, log zerolog.Logger) *Handler {
	return &Handler{
		sweeper: sweeper,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleRunSweep handles POST /api/snapshots/run.
// Answers 207 when some positions could not be snapshotted.
func (h *Handler) HandleRunSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		httpapi.WriteError(w, err, h.log)
		return
	}

	status := http.StatusOK
	if len(report.Failures) > 0 {
		status = http.StatusMultiStatus
	}

	h.log.Info().
		Int("total", report.Total).
		Int("written", report.Written).
		Msg("Manual snapshot sweep finished")
	httpapi.WriteData(w, status, report, h.log)
}
