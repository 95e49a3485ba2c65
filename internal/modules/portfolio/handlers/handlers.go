// Package handlers provides HTTP handlers for position management.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/httpapi"
	"github.com/aristath/tracker/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// defaultSnapshotWindow is used when GET /positions/{id}/snapshots has no bounds
const defaultSnapshotWindow = 30 * 24 * time.Hour

// PositionService is the subset of portfolio.PortfolioService the handlers use
type PositionService interface {
	ListPositions(ctx context.Context, ownerID int64) ([]domain.Position, error)
	ListPositionsByCategory(ctx context.Context, ownerID int64, category domain.Category) ([]domain.Position, error)
	GetPosition(ctx context.Context, id int64) (*domain.Position, error)
	CreatePosition(ctx context.Context, input portfolio.NewPosition) (domain.Position, error)
	UpdatePosition(ctx context.Context, id int64, patch portfolio.PositionPatch) (domain.Position, error)
	DeletePosition(ctx context.Context, id int64) error
}

// Handler handles position HTTP requests
type Handler struct {
	service   PositionService
	snapshots domain.SnapshotStore
	clock     domain.Clock
	location  *time.Location
	log       zerolog.Logger
}

// NewHandler creates a new position handler
func NewHandler(
	service PositionService,
	snapshots domain.SnapshotStore,
	clock domain.Clock,
	location *time.Location,
	log zerolog.Logger,
) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		service:   service,
		snapshots: snapshots,
		clock:     clock,
		location:  location,
		log:       log.With().Str("handler", "positions").Logger(),
	}
}

// HandleListPositions handles GET /api/positions?owner_id=&category=
func (h *Handler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := httpapi.QueryID(r, "owner_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var positions []domain.Position
	if category := r.URL.Query().Get("category"); category != "" {
		positions, err = h.service.ListPositionsByCategory(r.Context(), ownerID, domain.Category(category))
	} else {
		positions, err = h.service.ListPositions(r.Context(), ownerID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"owner_id":  ownerID,
		"positions": positions,
		"count":     len(positions),
	})
}

// HandleCreatePosition handles POST /api/positions
func (h *Handler) HandleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var input portfolio.NewPosition
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	created, err := h.service.CreatePosition(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().
		Int64("id", created.ID).
		Int64("owner_id", created.OwnerID).
		Str("symbol", created.Symbol).
		Msg("Position created")
	h.writeData(w, http.StatusCreated, created)
}

// HandleGetPosition handles GET /api/positions/{id}
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	position, err := h.service.GetPosition(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, position)
}

// HandleUpdatePosition handles PATCH /api/positions/{id}
func (h *Handler) HandleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var patch portfolio.PositionPatch
	if err := decodeBody(r, &patch); err != nil {
		h.writeError(w, err)
		return
	}

	updated, err := h.service.UpdatePosition(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, updated)
}

// HandleDeletePosition handles DELETE /api/positions/{id}
func (h *Handler) HandleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.service.DeletePosition(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().Int64("id", id).Msg("Position deleted")
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetPositionSnapshots handles GET /api/positions/{id}/snapshots?start=&end=.
// Without bounds it returns the last 30 days. Snapshots of a deleted position
// are still returned.
func (h *Handler) HandleGetPositionSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
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
		end = h.clock.Now()
		start = end.Add(-defaultSnapshotWindow)
	}

	records, err := h.snapshots.QueryRange(r.Context(), []int64{id}, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"position_id": id,
		"start":       start.Format(time.RFC3339),
		"end":         end.Format(time.RFC3339),
		"snapshots":   records,
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return httpapi.Invalid("invalid request body: " + err.Error())
	}
	return nil
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	httpapi.WriteData(w, status, data, h.log)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	httpapi.WriteError(w, err, h.log)
}
