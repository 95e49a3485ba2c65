package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStore holds the current position records.
// Shared by price propagation, manual edits and snapshot sweeps; every method may block
// on the persistence layer.
type PositionStore interface {
	// GetBySymbol returns every position holding the symbol (empty slice when none)
	GetBySymbol(ctx context.Context, symbol string) ([]Position, error)

	// GetByOwner returns every position owned by the holder
	GetByOwner(ctx context.Context, ownerID int64) ([]Position, error)

	// GetByID returns one position, or an error wrapping ErrNotFound
	GetByID(ctx context.Context, id int64) (*Position, error)

	// GetAll returns every position in the store
	GetAll(ctx context.Context) ([]Position, error)

	// Create inserts a new position and returns it with ID, Version and timestamps set
	Create(ctx context.Context, position Position) (Position, error)

	// Save persists an existing position.
	// The write only succeeds when position.Version matches the stored version;
	// otherwise it returns an error wrapping ErrConcurrentConflict.
	Save(ctx context.Context, position Position) (Position, error)

	// Delete removes a position. Snapshots referencing it are kept.
	Delete(ctx context.Context, id int64) error
}

// SnapshotStore is the append-only history store
type SnapshotStore interface {
	// Insert appends one record
	Insert(ctx context.Context, record SnapshotRecord) (SnapshotRecord, error)

	// QueryRange returns the records of the given positions whose snapshot time lies in [start, end]
	QueryRange(ctx context.Context, positionIDs []int64, start, end time.Time) ([]SnapshotRecord, error)
}

// SnapshotWriter freezes a position into a SnapshotRecord
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, position Position, at time.Time) (SnapshotRecord, error)
}

// PriceUpdater applies price updates to positions
type PriceUpdater interface {
	PropagateBatch(ctx context.Context, updates []PriceUpdate) PropagationResult
}

// PropagationFailure is one failed item of a propagation
type PropagationFailure struct {
	Err        error     `json:"-"`
	Symbol     string    `json:"symbol"`
	Code       ErrorCode `json:"code"`
	Message    string    `json:"error"`
	PositionID int64     `json:"position_id,omitempty"` // Zero when the failure concerns the symbol as a whole
}

// PropagationResult is the partial-success report of a propagation
type PropagationResult struct {
	Updated  []Position           `json:"updated"`
	Failures []PropagationFailure `json:"failures"`
}

// OK reports whether the propagation had no failures
func (r PropagationResult) OK() bool {
	return len(r.Failures) == 0
}

// InvalidPair reports one (symbol, price) pair rejected before propagation
func InvalidPair(symbol, message string) PropagationFailure {
	err := WrapError(CodeInvalidInput, message, ErrInvalidInput)
	return PropagationFailure{
		Symbol:  NormalizeSymbol(symbol),
		Code:    CodeInvalidInput,
		Err:     err,
		Message: err.Error(),
	}
}

// NewPriceUpdate builds a PriceUpdate with a normalized symbol
func NewPriceUpdate(symbol string, price decimal.Decimal) PriceUpdate {
	return PriceUpdate{Symbol: NormalizeSymbol(symbol), Price: price}
}

// MaxConflictAttempts bounds read-modify-write cycles on one position that keep
// losing the version race
const MaxConflictAttempts = 3
