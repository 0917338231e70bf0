package accounts

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultChart is a minimal chart covering every default integration role.
var DefaultChart = []CreateInput{
	{Code: "1000", Name: "Cash on Hand", Type: AccountTypeAsset},
	{Code: "1010", Name: "Bank", Type: AccountTypeAsset},
	{Code: "1100", Name: "Accounts Receivable", Type: AccountTypeAsset},
	{Code: "1200", Name: "VAT Receivable", Type: AccountTypeAsset},
	{Code: "1300", Name: "Inventory", Type: AccountTypeAsset},
	{Code: "2000", Name: "Accounts Payable", Type: AccountTypeLiability},
	{Code: "2100", Name: "VAT Payable", Type: AccountTypeLiability},
	{Code: "2200", Name: "Goods Received Not Invoiced", Type: AccountTypeLiability},
	{Code: "3000", Name: "Owner's Equity", Type: AccountTypeEquity},
	{Code: "4000", Name: "Sales Revenue", Type: AccountTypeRevenue},
	{Code: "4900", Name: "Inventory Gain", Type: AccountTypeRevenue},
	{Code: "5000", Name: "Cost of Goods Sold", Type: AccountTypeExpense},
	{Code: "5100", Name: "Purchases", Type: AccountTypeExpense},
	{Code: "5900", Name: "Inventory Loss", Type: AccountTypeExpense},
	{Code: "6000", Name: "Operating Expenses", Type: AccountTypeExpense},
	{Code: "6100", Name: "Rent Expense", Type: AccountTypeExpense},
}

// EnsureChart creates the accounts of chart that do not exist yet and
// returns every account of chart keyed by code.
func (s *Service) EnsureChart(ctx context.Context, chart []CreateInput) (map[string]Account, error) {
	out := make(map[string]Account, len(chart))
	for _, in := range chart {
		existing, err := s.GetByCode(ctx, in.Code)
		switch {
		case err == nil:
			out[in.Code] = existing
			continue
		case !errors.Is(err, shared.ErrNotFound):
			return nil, err
		}
		created, err := s.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		out[in.Code] = created
	}
	return out, nil
}
