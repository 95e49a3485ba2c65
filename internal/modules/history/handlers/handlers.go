// Package handlers provides HTTP handlers for allocation history queries.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/httpapi"
	"github.com/rs/zerolog"
)

// HistoryService answers history queries
type HistoryService interface {
	QueryHistory(ctx context.Context, ownerID int64, start, end time.Time) ([]domain.DateRow, error)
	Window(label string) (time.Time, time.Time, error)
}

// Handler handles history HTTP requests
type Handler struct {
	service  HistoryService
	location *time.Location
	log      zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(service HistoryService, location *time.Location, log zerolog.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		service:  service,
		location: location,
		log:      log.With().Str("handler", "history").Logger(),
	}
}

// HandleGetHistory handles GET /api/history?owner_id=&range=7days|30days.
// Explicit start and end take precedence over range.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, err := httpapi.QueryID(r, "owner_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	start, end, ok, err := httpapi.TimeBounds(r, h.location)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		start, end, err = h.service.Window(r.URL.Query().Get("range"))
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	rows, err := h.service.QueryHistory(r.Context(), ownerID, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpapi.WriteData(w, http.StatusOK, map[string]interface{}{
		"owner_id": ownerID,
		"start":    start.Format(time.RFC3339),
		"end":      end.Format(time.RFC3339),
		"rows":     rows,
	}, h.log)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	httpapi.WriteError(w, err, h.log)
}
