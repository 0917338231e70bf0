package accounts

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known classification.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide is DEBIT for assets and expenses, CREDIT otherwise.
func (t AccountType) NormalSide() shared.Side {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return shared.SideDebit
	}
	return shared.SideCredit
}

// Account models a chart of accounts node together with its cached balance.
// Balance is debit-positive: the sum of all ledger debits minus credits.
type Account struct {
	ID         int64        `json:"id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Type       AccountType  `json:"type"`
	NormalSide shared.Side  `json:"normal_side"`
	Balance    money.Amount `json:"balance"`
	IsActive   bool         `json:"is_active"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NaturalBalance presents the balance on the account's normal side, so a
// revenue account with credits shows a positive figure.
func (a Account) NaturalBalance() money.Amount {
	if a.NormalSide == shared.SideCredit {
		return a.Balance.Neg()
	}
	return a.Balance
}

// LedgerEntry is an append-only per-account movement with the balance snapshot
// taken right after it was applied.
type LedgerEntry struct {
	ID             int64        `json:"id"`
	AccountID      int64        `json:"account_id"`
	JournalEntryID int64        `json:"journal_entry_id"`
	EntryDate      time.Time    `json:"entry_date"`
	Debit          money.Amount `json:"debit"`
	Credit         money.Amount `json:"credit"`
	RunningBalance money.Amount `json:"running_balance"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Delta is the signed effect of the entry on the debit-positive balance.
func (e LedgerEntry) Delta() money.Amount {
	return e.Debit - e.Credit
}

// AppendInput describes one ledger movement.
type AppendInput struct {
	AccountID      int64
	EntryDate      time.Time
	Debit          money.Amount
	Credit         money.Amount
	JournalEntryID int64
}

// CreateInput seeds an account. Chart maintenance itself lives outside the ledger.
type CreateInput struct {
	Code string
	Name string
	Type AccountType
}

// Verification is the outcome of replaying one account's ledger.
type Verification struct {
	AccountID int64        `json:"account_id"`
	Code      string       `json:"code"`
	Cached    money.Amount `json:"cached"`
	Replayed  money.Amount `json:"replayed"`
	Entries   int          `json:"entries"`
	// BrokenAt is the first ledger entry whose stored running balance disagrees
	// with the replay, or zero.
	BrokenAt int64 `json:"broken_at,omitempty"`
}

// OK reports whether cache, replay and snapshots agree.
func (v Verification) OK() bool {
	return v.Cached == v.Replayed && v.BrokenAt == 0
}
