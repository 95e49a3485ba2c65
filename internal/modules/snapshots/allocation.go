package snapshots

import (
	"github.com/aristath/tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// allocationTable holds the fixed allocation percentage per symbol.
// It is a placeholder weighting, not each holding's real share of the portfolio.
var allocationTable = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(40),
	"ETH":  decimal.NewFromInt(35),
	"SOL":  decimal.NewFromInt(15),
	"USDT": decimal.NewFromInt(10),
}

// AllocationWeight returns the allocation percentage recorded for a symbol.
// Unknown and empty symbols weigh 0.
func AllocationWeight(symbol string) decimal.Decimal {
	if weight, ok := allocationTable[domain.NormalizeSymbol(symbol)]; ok {
		return weight
	}
	return decimal.Zero
}
