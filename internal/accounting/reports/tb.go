// Package reports derives read-only views over the account ledger.
package reports

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// groupOrder is the conventional presentation order of account types.
var groupOrder = []accounts.AccountType{
	accounts.AccountTypeAsset,
	accounts.AccountTypeLiability,
	accounts.AccountTypeEquity,
	accounts.AccountTypeRevenue,
	accounts.AccountTypeExpense,
}

// TrialBalanceRow is one account with its balance split into columns.
type TrialBalanceRow struct {
	AccountID int64        `json:"account_id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Debit     money.Amount `json:"debit"`
	Credit    money.Amount `json:"credit"`
}

// TrialBalanceGroup aggregates rows of a single account type.
type TrialBalanceGroup struct {
	Type     accounts.AccountType `json:"type"`
	Accounts []TrialBalanceRow    `json:"accounts"`
	Debit    money.Amount         `json:"debit"`
	Credit   money.Amount         `json:"credit"`
}

// TrialBalance lists every account with a non-zero balance.
type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  money.Amount        `json:"total_debit"`
	TotalCredit money.Amount        `json:"total_credit"`
}

// Balanced reports whether both columns agree. A posted-only ledger always
// balances, so false means the cached balances drifted.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit == tb.TotalCredit
}

// BuildTrialBalance converts cached account balances into grouped rows. A
// debit-positive balance lands in the debit column, a negative one in the
// credit column. Zero balances are omitted. Column totals beyond the money
// range fail with ErrTotalOutOfRange.
func BuildTrialBalance(list []accounts.Account) (TrialBalance, error) {
	var err error
	groups := make(map[accounts.AccountType]*TrialBalanceGroup)
	for _, acc := range list {
		if acc.Balance.IsZero() {
			continue
		}
		grp, ok := groups[acc.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: acc.Type}
			groups[acc.Type] = grp
		}
		row := TrialBalanceRow{AccountID: acc.ID, Code: acc.Code, Name: acc.Name}
		if acc.Balance > 0 {
			row.Debit = acc.Balance
		} else {
			row.Credit = acc.Balance.Neg()
		}
		grp.Accounts = append(grp.Accounts, row)
		if grp.Debit, err = grp.Debit.Add(row.Debit); err != nil {
			return TrialBalance{}, shared.ErrTotalOutOfRange
		}
		if grp.Credit, err = grp.Credit.Add(row.Credit); err != nil {
			return TrialBalance{}, shared.ErrTotalOutOfRange
		}
	}

	result := TrialBalance{Groups: []TrialBalanceGroup{}}
	for _, typ := range groupOrder {
		grp, ok := groups[typ]
		if !ok {
			continue
		}
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		if result.TotalDebit, err = result.TotalDebit.Add(grp.Debit); err != nil {
			return TrialBalance{}, shared.ErrTotalOutOfRange
		}
		if result.TotalCredit, err = result.TotalCredit.Add(grp.Credit); err != nil {
			return TrialBalance{}, shared.ErrTotalOutOfRange
		}
	}
	return result, nil
}

// AccountLister is the slice of the account store the reports need.
type AccountLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

// Service builds reports from the live account store.
type Service struct {
	accounts AccountLister
}

func NewService(accounts AccountLister) *Service {
	return &Service{accounts: accounts}
}

// TrialBalance snapshots the current balances.
func (s *Service) TrialBalance(ctx context.Context) (TrialBalance, error) {
	list, err := s.accounts.List(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(list)
}
