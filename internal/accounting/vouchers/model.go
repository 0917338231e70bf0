package vouchers

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// Type is the closed set of voucher kinds.
type Type string

const (
	TypeSales    Type = "SALES"
	TypePurchase Type = "PURCHASE"
	TypePayment  Type = "PAYMENT"
	TypeReceipt  Type = "RECEIPT"
	TypeContra   Type = "CONTRA"
	TypeJournal  Type = "JOURNAL"
)

// Types lists every voucher kind in display order.
var Types = []Type{TypeSales, TypePurchase, TypePayment, TypeReceipt, TypeContra, TypeJournal}

// Convention holds the numbering prefix and the default mapping roles a
// voucher kind debits and credits when a line names no account.
type Convention struct {
	Prefix     string `json:"prefix"`
	Label      string `json:"label"`
	DebitRole  string `json:"debit_role,omitempty"`
	CreditRole string `json:"credit_role,omitempty"`
}

// Convention returns the conventions of t; ok is false for unknown kinds.
func (t Type) Convention() (Convention, bool) {
	switch t {
	case TypeSales:
		return Convention{Prefix: "SV", Label: "Sales", DebitRole: "accounts_receivable", CreditRole: "sales_revenue"}, true
	case TypePurchase:
		return Convention{Prefix: "PV", Label: "Purchase", DebitRole: "purchases", CreditRole: "accounts_payable"}, true
	case TypePayment:
		return Convention{Prefix: "PY", Label: "Payment", DebitRole: "accounts_payable", CreditRole: "cash"}, true
	case TypeReceipt:
		return Convention{Prefix: "RV", Label: "Receipt", DebitRole: "cash", CreditRole: "accounts_receivable"}, true
	case TypeContra:
		return Convention{Prefix: "CV", Label: "Contra", DebitRole: "bank", CreditRole: "cash"}, true
	case TypeJournal:
		return Convention{Prefix: "JV", Label: "Journal"}, true
	}
	return Convention{}, false
}

// Valid reports whether t is one of the six kinds.
func (t Type) Valid() bool {
	_, ok := t.Convention()
	return ok
}

// DefaultRole returns the convention's role for side, or "".
func (c Convention) DefaultRole(side shared.Side) string {
	if side == shared.SideDebit {
		return c.DebitRole
	}
	return c.CreditRole
}

// ParseType reads a voucher kind case-insensitively.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", shared.ErrUnknownVoucherType
	}
	return t, nil
}

// FormatNumber renders the type-prefixed voucher number, e.g. SV-000042.
func FormatNumber(t Type, seq int64) string {
	conv, _ := t.Convention()
	return fmt.Sprintf("%s-%06d", conv.Prefix, seq)
}

// Status enumerates voucher lifecycle values.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// Voucher is the user-facing envelope around a line set. It links to at most
// one journal entry, created when the voucher is posted.
type Voucher struct {
	ID                  int64      `json:"id"`
	Number              string     `json:"number"`
	Type                Type       `json:"type"`
	Date                time.Time  `json:"date"`
	CounterpartyRef     string     `json:"counterparty_ref,omitempty"`
	Narration           string     `json:"narration,omitempty"`
	Status              Status     `json:"status"`
	JournalEntryID      *int64     `json:"journal_entry_id,omitempty"`
	RecurringTemplateID *int64     `json:"recurring_template_id,omitempty"`
	ScheduledFor        *time.Time `json:"scheduled_for,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Lines               []Line     `json:"lines"`
}

// Line mirrors a journal line before posting.
type Line struct {
	ID          int64        `json:"id"`
	VoucherID   int64        `json:"voucher_id"`
	AccountID   int64        `json:"account_id"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side"`
	Description string       `json:"description,omitempty"`
}
