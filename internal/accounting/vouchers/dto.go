package vouchers

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// LineInput describes a voucher line. When AccountID is zero the account is
// resolved from Role, or from the voucher type's default role for Side.
type LineInput struct {
	AccountID   int64        `json:"account_id"`
	Role        string       `json:"role,omitempty"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side"`
	Description string       `json:"description,omitempty"`
}

// CreateInput groups fields for a new draft voucher.
type CreateInput struct {
	Type            Type
	Date            time.Time
	CounterpartyRef string
	Narration       string
	Lines           []LineInput

	RecurringTemplateID *int64
	ScheduledFor        *time.Time
}

// VoidOptions controls how far a void reaches.
type VoidOptions struct {
	// Reverse also voids the linked journal entry through a reversing entry.
	// Without it only the envelope is voided and the ledger stands.
	Reverse bool
	Reason  string
}

// PostResult is returned by Post.
type PostResult struct {
	Voucher      Voucher               `json:"voucher"`
	JournalEntry journals.JournalEntry `json:"journal_entry"`
}

// VoidResult is returned by Void.
type VoidResult struct {
	Voucher  Voucher                `json:"voucher"`
	Reversal *journals.JournalEntry `json:"reversal,omitempty"`
}

// ListFilter narrows voucher listings.
type ListFilter struct {
	Type   Type
	Status Status
	Limit  int
}

func toPostingLines(lines []Line) []journals.LineInput {
	out := make([]journals.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, journals.LineInput{
			AccountID:   line.AccountID,
			Amount:      line.Amount,
			Side:        line.Side,
			Description: line.Description,
		})
	}
	return out
}
