package integration

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// extend multiplies a quantity by a unit cost, rounding half to even at the cent.
func extend(qty decimal.Decimal, unitCost money.Amount) (money.Amount, error) {
	amount, err := money.FromDecimalRound(qty.Mul(unitCost.Decimal()))
	if err != nil {
		return 0, shared.ErrAmountOutOfRange
	}
	return amount, nil
}

// totalOrSum returns total when given, otherwise the sum of parts.
func totalOrSum(total money.Amount, parts ...money.Amount) (money.Amount, error) {
	if !total.IsZero() {
		return total, nil
	}
	sum, err := money.Sum(parts...)
	if err != nil {
		return 0, shared.ErrTotalOutOfRange
	}
	return sum, nil
}
