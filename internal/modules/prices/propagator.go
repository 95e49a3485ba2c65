// Package prices applies external price updates to every position holding a symbol.
package prices

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/valuation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds how many positions of one symbol are saved at once
const DefaultWorkers = 4

// errSymbolChanged marks a position whose symbol was edited while a price was being applied
var errSymbolChanged = errors.New("position no longer holds the symbol")

// Propagator pushes a symbol's new price into every position holding it.
//
// Each position is saved on its own: one failing position never rolls back or
// blocks the others. A save that loses the version race re-reads the position
// and re-applies the price, up to domain.MaxConflictAttempts times. A position
// whose symbol changed in the meantime is left untouched.
type Propagator struct {
	store   domain.PositionStore
	workers int
	log     zerolog.Logger
}

// NewPropagator creates a new price propagator
func NewPropagator(store domain.PositionStore, workers int, log zerolog.Logger) *Propagator {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Propagator{
		store:   store,
		workers: workers,
		log:     log.With().Str("component", "price_propagator").Logger(),
	}
}

// Propagate applies one price to every position holding symbol.
// An unknown symbol yields an empty result with no failure.
func (p *Propagator) Propagate(ctx context.Context, symbol string, price decimal.Decimal) domain.PropagationResult {
	result, _ := p.propagate(ctx, domain.NewPriceUpdate(symbol, price))
	return result
}

// PropagateBatch applies each pair independently, in order.
// Symbols held by no position are reported as NotFound failures.
func (p *Propagator) PropagateBatch(ctx context.Context, updates []domain.PriceUpdate) domain.PropagationResult {
	result := domain.PropagationResult{
		Updated:  make([]domain.Position, 0),
		Failures: make([]domain.PropagationFailure, 0),
	}

	for _, update := range updates {
		update = domain.NewPriceUpdate(update.Symbol, update.Price)

		partial, matched := p.propagate(ctx, update)
		result.Updated = append(result.Updated, partial.Updated...)
		result.Failures = append(result.Failures, partial.Failures...)

		if matched == 0 && len(partial.Failures) == 0 {
			err := domain.WrapError(domain.CodeNotFound, fmt.Sprintf("no position holds symbol %q", update.Symbol), domain.ErrNotFound)
			result.Failures = append(result.Failures, failure(update.Symbol, 0, err))
		}
	}

	p.log.Info().
		Int("pairs", len(updates)).
		Int("updated", len(result.Updated)).
		Int("failed", len(result.Failures)).
		Msg("Price batch propagated")

	return result
}

// propagate returns the result and how many positions held the symbol
func (p *Propagator) propagate(ctx context.Context, update domain.PriceUpdate) (domain.PropagationResult, int) {
	result := domain.PropagationResult{
		Updated:  make([]domain.Position, 0),
		Failures: make([]domain.PropagationFailure, 0),
	}

	if update.Symbol == "" {
		err := domain.WrapError(domain.CodeInvalidInput, "symbol is required", domain.ErrInvalidInput)
		result.Failures = append(result.Failures, failure(update.Symbol, 0, err))
		return result, 0
	}

	positions, err := p.store.GetBySymbol(ctx, update.Symbol)
	if err != nil {
		p.log.Error().Err(err).Str("symbol", update.Symbol).Msg("Failed to look up positions")
		wrapped := domain.WrapError(domain.CodePersistenceFailure, "failed to look up positions", err)
		result.Failures = append(result.Failures, failure(update.Symbol, 0, wrapped))
		return result, 0
	}
	if len(positions) == 0 {
		return result, 0
	}

	saved := make([]*domain.Position, len(positions))
	errs := make([]error, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range positions {
		i := i
		g.Go(func() error {
			pos, err := p.apply(gctx, positions[i], update)
			if err != nil {
				errs[i] = err
				return nil
			}
			saved[i] = &pos
			return nil
		})
	}
	// Workers never return errors; failures are collected per position
	_ = g.Wait()

	for i, pos := range positions {
		if errors.Is(errs[i], errSymbolChanged) {
			p.log.Debug().Str("symbol", update.Symbol).Int64("position_id", pos.ID).Msg("Position symbol changed, price skipped")
			continue
		}
		if errs[i] != nil {
			p.log.Warn().Err(errs[i]).Str("symbol", update.Symbol).Int64("position_id", pos.ID).Msg("Failed to update position price")
			result.Failures = append(result.Failures, failure(update.Symbol, pos.ID, errs[i]))
			continue
		}
		result.Updated = append(result.Updated, *saved[i])
	}

	sort.Slice(result.Updated, func(i, j int) bool { return result.Updated[i].ID < result.Updated[j].ID })
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].PositionID < result.Failures[j].PositionID })

	p.log.Debug().
		Str("symbol", update.Symbol).
		Str("price", update.Price.String()).
		Int("matched", len(positions)).
		Int("updated", len(result.Updated)).
		Int("failed", len(result.Failures)).
		Msg("Price propagated")

	return result, len(positions)
}

// apply reprices and saves one position, retrying lost version races
func (p *Propagator) apply(ctx context.Context, position domain.Position, update domain.PriceUpdate) (domain.Position, error) {
	var err error
	for attempt := 1; attempt <= domain.MaxConflictAttempts; attempt++ {
		if attempt > 1 {
			current, getErr := p.store.GetByID(ctx, position.ID)
			if getErr != nil {
				return domain.Position{}, getErr
			}
			position = *current
		}
		if domain.NormalizeSymbol(position.Symbol) != update.Symbol {
			return domain.Position{}, errSymbolChanged
		}

		var saved domain.Position
		saved, err = p.store.Save(ctx, valuation.Reprice(position, update.Price))
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, domain.ErrConcurrentConflict) {
			return domain.Position{}, err
		}
	}
	return domain.Position{}, err
}

func failure(symbol string, positionID int64, err error) domain.PropagationFailure {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		code = domain.CodePersistenceFailure
	}
	return domain.PropagationFailure{
		Symbol:     symbol,
		PositionID: positionID,
		Code:       code,
		Err:        err,
		Message:    err.Error(),
	}
}
