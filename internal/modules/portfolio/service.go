package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/valuation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NewPosition is the input of a manual position creation
type NewPosition struct {
	Name      string          `json:"name"`
	Category  domain.Category `json:"category"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	OwnerID   int64           `json:"owner_id"`
}

// PositionPatch is a partial manual edit; nil fields are left unchanged.
// The owner of a position can never be changed.
type PositionPatch struct {
	Name      *string          `json:"name,omitempty"`
	Category  *domain.Category `json:"category,omitempty"`
	Symbol    *string          `json:"symbol,omitempty"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	CostBasis *decimal.Decimal `json:"cost_basis,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p PositionPatch) Empty() bool {
	return p.Name == nil && p.Category == nil && p.Symbol == nil &&
		p.Quantity == nil && p.UnitPrice == nil && p.CostBasis == nil
}

func (p PositionPatch) apply(position domain.Position) domain.Position {
	if p.Name != nil {
		position.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		position.Category = *p.Category
	}
	if p.Symbol != nil {
		position.Symbol = domain.NormalizeSymbol(*p.Symbol)
	}
	if p.Quantity != nil {
		position.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		position.UnitPrice = *p.UnitPrice
	}
	if p.CostBasis != nil {
		position.CostBasis = *p.CostBasis
	}
	return valuation.Recalculate(position)
}

// PortfolioService handles manual edits of positions.
//
// Every successful create or update is followed by a snapshot of the new state.
// Snapshot failures are logged and never fail the edit itself.
type PortfolioService struct {
	store    domain.PositionStore
	snapshot domain.SnapshotWriter
	clock    domain.Clock
	log      zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(
	store domain.PositionStore,
	snapshot domain.SnapshotWriter,
	clock domain.Clock,
	log zerolog.Logger,
) *PortfolioService {
	return &PortfolioService{
		store:    store,
		snapshot: snapshot,
		clock:    clock,
		log:      log.With().Str("service", "portfolio").Logger(),
	}
}

// ListPositions returns the positions of one holder
func (s *PortfolioService) ListPositions(ctx context.Context, ownerID int64) ([]domain.Position, error) {
	positions, err := s.store.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions of owner %d: %w", ownerID, err)
	}
	return positions, nil
}

// ListPositionsByCategory returns the positions of one holder in one category
func (s *PortfolioService) ListPositionsByCategory(ctx context.Context, ownerID int64, category domain.Category) ([]domain.Position, error) {
	if !category.Valid() {
		return nil, invalid(fmt.Sprintf("unknown category %q", category))
	}
	positions, err := s.ListPositions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.Position, 0, len(positions))
	for _, position := range positions {
		if position.Category == category {
			filtered = append(filtered, position)
		}
	}
	return filtered, nil
}

// GetPosition returns one position
func (s *PortfolioService) GetPosition(ctx context.Context, id int64) (*domain.Position, error) {
	return s.store.GetByID(ctx, id)
}

// CreatePosition validates and stores a new position
func (s *PortfolioService) CreatePosition(ctx context.Context, input NewPosition) (domain.Position, error) {
	position := valuation.Recalculate(domain.Position{
		OwnerID:   input.OwnerID,
		Name:      strings.TrimSpace(input.Name),
		Category:  input.Category,
		Symbol:    domain.NormalizeSymbol(input.Symbol),
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
		CostBasis: input.CostBasis,
	})
	if position.Category == "" {
		position.Category = domain.CategoryOther
	}

	if input.OwnerID <= 0 {
		return domain.Position{}, invalid("owner_id is required")
	}
	if err := validate(position); err != nil {
		return domain.Position{}, err
	}

	created, err := s.store.Create(ctx, position)
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to create position: %w", err)
	}

	s.snapshotAfterWrite(ctx, created)
	return created, nil
}

// UpdatePosition applies a patch to a position.
// A lost version race re-reads the position and re-applies the patch.
func (s *PortfolioService) UpdatePosition(ctx context.Context, id int64, patch PositionPatch) (domain.Position, error) {
	if patch.Empty() {
		return domain.Position{}, invalid("patch changes nothing")
	}

	var lastErr error
	for attempt := 1; attempt <= domain.MaxConflictAttempts; attempt++ {
		current, err := s.store.GetByID(ctx, id)
		if err != nil {
			return domain.Position{}, err
		}

		updated := patch.apply(*current)
		if err := validate(updated); err != nil {
			return domain.Position{}, err
		}

		saved, err := s.store.Save(ctx, updated)
		if err == nil {
			s.snapshotAfterWrite(ctx, saved)
			return saved, nil
		}
		if !errors.Is(err, domain.ErrConcurrentConflict) {
			return domain.Position{}, fmt.Errorf("failed to update position %d: %w", id, err)
		}

		lastErr = err
		s.log.Debug().Int64("id", id).Int("attempt", attempt).Msg("Retrying position update after conflict")
	}

	return domain.Position{}, fmt.Errorf("failed to update position %d: %w", id, lastErr)
}

// DeletePosition removes a position. Its snapshots stay in the history.
func (s *PortfolioService) DeletePosition(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

func (s *PortfolioService) snapshotAfterWrite(ctx context.Context, position domain.Position) {
	if s.snapshot == nil {
		return
	}
	if _, err := s.snapshot.WriteSnapshot(ctx, position, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Int64("id", position.ID).Msg("Failed to snapshot position after edit")
	}
}

func validate(position domain.Position) error {
	if position.Name == "" {
		return invalid("name is required")
	}
	if !position.Category.Valid() {
		return invalid(fmt.Sprintf("unknown category %q", position.Category))
	}
	if position.Quantity.IsNegative() {
		return invalid("quantity must not be negative")
	}
	if position.UnitPrice.IsNegative() {
		return invalid("unit_price must not be negative")
	}
	if position.CostBasis.IsNegative() {
		return invalid("cost_basis must not be negative")
	}
	return nil
}

func invalid(message string) error {
	return domain.WrapError(domain.CodeInvalidInput, message, domain.ErrInvalidInput)
}
