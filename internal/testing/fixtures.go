package testing

import (
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Dec parses a decimal literal, panicking on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewCryptoPosition returns a crypto position with derived fields already consistent
func NewCryptoPosition(ownerID int64, symbol, quantity, price, costBasis string) domain.Position {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := domain.Position{
		OwnerID:   ownerID,
		Name:      symbol + " holding",
		Category:  domain.CategoryCrypto,
		Symbol:    symbol,
		Quantity:  Dec(quantity),
		UnitPrice: Dec(price),
		CostBasis: Dec(costBasis),
		CreatedAt: now,
		UpdatedAt: now,
	}
	pos.CurrentValue = pos.Quantity.Mul(pos.UnitPrice)
	return pos
}

// NewPositionFixtures returns a small two-owner portfolio
func NewPositionFixtures() []domain.Position {
	cash := NewCryptoPosition(1, "", "1000", "1", "1")
	cash.Name = "Savings"
	cash.Category = domain.CategoryCash

	return []domain.Position{
		NewCryptoPosition(1, "BTC", "1", "40000", "40000"),
		NewCryptoPosition(1, "ETH", "10", "2000", "1500"),
		NewCryptoPosition(2, "BTC", "0.5", "40000", "30000"),
		cash,
	}
}
