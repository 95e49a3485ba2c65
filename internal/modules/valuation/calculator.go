// Package valuation derives a position's current value and profit rate.
package valuation

import (
	"github.com/aristath/tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// ProfitRatePlaces is the number of decimal places the profit rate is rounded to
const ProfitRatePlaces = 2

var hundred = decimal.NewFromInt(100)

// Recalculate returns a copy of the position with CurrentValue and ProfitRate derived
// from Quantity, UnitPrice and CostBasis.
//
//	CurrentValue = Quantity * UnitPrice
//	ProfitRate   = round((CurrentValue - CostBasis*Quantity) * 100 / (CostBasis*Quantity), 2, half-up)
//
// ProfitRate is left unset when CostBasis <= 0 or when the total cost is zero.
// Inputs are not validated.
func Recalculate(position domain.Position) domain.Position {
	position.CurrentValue = position.Quantity.Mul(position.UnitPrice)
	position.ProfitRate = ProfitRate(position.CurrentValue, position.Quantity, position.CostBasis)
	return position
}

// ProfitRate computes the profit percentage of a holding worth currentValue that was
// bought at costBasis per unit
func ProfitRate(currentValue, quantity, costBasis decimal.Decimal) decimal.NullDecimal {
	if !costBasis.GreaterThan(decimal.Zero) {
		return decimal.NullDecimal{}
	}

	cost := costBasis.Mul(quantity)
	if cost.IsZero() {
		return decimal.NullDecimal{}
	}

	profit := currentValue.Sub(cost)
	// DivRound rounds half away from zero, which is half-up on magnitudes
	return decimal.NewNullDecimal(profit.Mul(hundred).DivRound(cost, ProfitRatePlaces))
}

// Reprice sets a new unit price and recalculates the position
func Reprice(position domain.Position, price decimal.Decimal) domain.Position {
	position.UnitPrice = price
	return Recalculate(position)
}
