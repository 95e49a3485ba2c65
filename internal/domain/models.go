// Package domain provides core domain models and types.
package domain

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category represents the kind of asset a position holds
type Category string

const (
	CategoryEquity     Category = "equity"
	CategoryBond       Category = "bond"
	CategoryFund       Category = "fund"
	CategoryCash       Category = "cash"
	CategoryCrypto     Category = "crypto"
	CategoryRealEstate Category = "real_estate"
	CategoryOther      Category = "other"
)

// Valid reports whether the category is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryEquity, CategoryBond, CategoryFund, CategoryCash,
		CategoryCrypto, CategoryRealEstate, CategoryOther:
		return true
	}
	return false
}

// Position represents a single holding owned by one holder.
//
// CurrentValue and ProfitRate are derived fields: they are only ever written by the
// valuation calculator. Version is the optimistic concurrency counter used by the
// position store to serialize read-modify-write cycles on one row.
type Position struct {
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Name         string              `json:"name"`
	Category     Category            `json:"category"`
	Symbol       string              `json:"symbol,omitempty"` // Empty when the holding has no priced symbol
	Quantity     decimal.Decimal     `json:"quantity"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	CurrentValue decimal.Decimal     `json:"current_value"`
	CostBasis    decimal.Decimal     `json:"cost_basis"` // Per unit
	ProfitRate   decimal.NullDecimal `json:"profit_rate"`
	ID           int64               `json:"id"`
	OwnerID      int64               `json:"owner_id"`
	Version      int64               `json:"version"`
}

// HasCostBasis reports whether a profit rate can be derived for the position
func (p Position) HasCostBasis() bool {
	return p.CostBasis.GreaterThan(decimal.Zero)
}

// NormalizeSymbol trims and upper-cases a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// PositionLookup resolves a position by its identifier
type PositionLookup interface {
	GetByID(ctx context.Context, id int64) (*Position, error)
}

// SnapshotRecord is an immutable point-in-time copy of a position.
//
// PositionID is a weak back-reference: the record never embeds the position and
// survives the position's deletion. Use Position to resolve it on demand.
type SnapshotRecord struct {
	SnapshotTime         time.Time           `json:"snapshot_time"`
	CreatedAt            time.Time           `json:"created_at"`
	Date                 string              `json:"date"` // YYYY-MM-DD in the configured time zone
	Symbol               string              `json:"symbol,omitempty"`
	Price                decimal.Decimal     `json:"price"`
	Quantity             decimal.Decimal     `json:"quantity"`
	CurrentValue         decimal.Decimal     `json:"current_value"`
	CostBasis            decimal.Decimal     `json:"cost_basis"`
	ProfitRate           decimal.NullDecimal `json:"profit_rate"`
	AllocationPercentage decimal.Decimal     `json:"allocation_percentage"`
	PositionID           int64               `json:"position_id"`
	ID                   uuid.UUID           `json:"id"`
}

// Position resolves the originating position. Returns ErrNotFound when the
// position has been deleted since the snapshot was taken.
func (r SnapshotRecord) Position(ctx context.Context, lookup PositionLookup) (*Position, error) {
	return lookup.GetByID(ctx, r.PositionID)
}

// PriceUpdate is one (symbol, price) pair handed over by the price feed
type PriceUpdate struct {
	Symbol string          `json:"symbol" msgpack:"symbol"`
	Price  decimal.Decimal `json:"price" msgpack:"price"`
}

// DateRow is one calendar date of the allocation history: symbol -> allocation percentage
type DateRow struct {
	Date        string
	Allocations map[string]decimal.Decimal
}

// MarshalJSON flattens the row into {"date": "...", "<SYMBOL>": <percentage>, ...}
func (r DateRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Allocations)+1)
	for symbol, pct := range r.Allocations {
		f, _ := pct.Float64()
		out[symbol] = f
	}
	out["date"] = r.Date
	return json.Marshal(out)
}

// Symbols returns the row's symbols in sorted order
func (r DateRow) Symbols() []string {
	symbols := make([]string, 0, len(r.Allocations))
	for symbol := range r.Allocations {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
