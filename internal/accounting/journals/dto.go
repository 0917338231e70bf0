package journals

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// LineInput is one side of a posting.
type LineInput struct {
	AccountID   int64        `json:"account_id"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side"`
	Description string       `json:"description,omitempty"`
}

// Debit returns the debit column value of the line.
func (l LineInput) Debit() money.Amount {
	if l.Side == shared.SideDebit {
		return l.Amount
	}
	return 0
}

// Credit returns the credit column value of the line.
func (l LineInput) Credit() money.Amount {
	if l.Side == shared.SideCredit {
		return l.Amount
	}
	return 0
}

// Header carries entry metadata.
type Header struct {
	Date        time.Time
	Description string
	SourceType  SourceType
	SourceRef   string
	VoucherID   *int64
	// ReversalOfID is set only by the engine when posting a reversing entry.
	ReversalOfID *int64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Header
	Lines []LineInput
}

// Validate ensures posting input meets minimum criteria: shape first, then balance.
func (in PostingInput) Validate() error {
	if err := in.validateHeader(); err != nil {
		return err
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	if err := ValidateLines(in.Lines); err != nil {
		return err
	}
	return CheckBalance(in.Lines)
}

// validateDraft accepts unbalanced line sets.
func (in PostingInput) validateDraft() error {
	if err := in.validateHeader(); err != nil {
		return err
	}
	if len(in.Lines) == 0 {
		return shared.ErrNoLines
	}
	return ValidateLines(in.Lines)
}

func (in PostingInput) validateHeader() error {
	if in.Date.IsZero() {
		return shared.ErrMissingDate
	}
	if !in.SourceType.Valid() {
		return shared.Invalid("source_type", "unknown source type %q", in.SourceType)
	}
	return nil
}

// ValidateLines checks every line's account, amount and side.
func ValidateLines(lines []LineInput) error {
	for idx, line := range lines {
		if line.AccountID <= 0 {
			return lineError(idx, shared.ErrMissingAccount)
		}
		if !line.Amount.IsPositive() {
			return lineError(idx, shared.ErrNonPositiveAmount)
		}
		if !line.Amount.InRange() {
			return lineError(idx, shared.ErrAmountOutOfRange)
		}
		if !line.Side.Valid() {
			return lineError(idx, shared.ErrInvalidSide)
		}
	}
	return nil
}

func lineError(idx int, err error) error {
	return fmt.Errorf("line %d: %w", idx, err)
}

// Totals sums debit and credit sides. A side whose total leaves the money
// range fails with ErrTotalOutOfRange rather than wrapping.
func Totals(lines []LineInput) (debit, credit money.Amount, err error) {
	for _, line := range lines {
		if debit, err = debit.Add(line.Debit()); err != nil {
			return 0, 0, shared.ErrTotalOutOfRange
		}
		if credit, err = credit.Add(line.Credit()); err != nil {
			return 0, 0, shared.ErrTotalOutOfRange
		}
	}
	return debit, credit, nil
}

// CheckBalance returns an UnbalancedEntryError unless debits equal credits exactly.
func CheckBalance(lines []LineInput) error {
	debit, credit, err := Totals(lines)
	if err != nil {
		return err
	}
	if debit != credit {
		return &shared.UnbalancedEntryError{TotalDebit: debit, TotalCredit: credit}
	}
	return nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID int64
	// Date of the reversing entry; defaults to the original entry date.
	Date   *time.Time
	Reason string
}

// VoidResult holds the voided entry and, for posted entries, its reversal.
type VoidResult struct {
	Original JournalEntry  `json:"original"`
	Reversal *JournalEntry `json:"reversal,omitempty"`
}

// ListFilter narrows journal listings.
type ListFilter struct {
	Status     Status
	SourceType SourceType
	SourceRef  string
	Limit      int
}

// NewEntry is the header row written by the repository.
type NewEntry struct {
	Header
	Status      Status
	TotalDebit  money.Amount
	TotalCredit money.Amount
	PostedAt    *time.Time
}

// StatusUpdate moves an entry along its lifecycle.
type StatusUpdate struct {
	Status       Status
	PostedAt     *time.Time
	ReversedByID *int64
}

func linesToInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		in := LineInput{AccountID: line.AccountID, Description: line.Description}
		if line.Debit > 0 {
			in.Amount, in.Side = line.Debit, shared.SideDebit
		} else {
			in.Amount, in.Side = line.Credit, shared.SideCredit
		}
		out = append(out, in)
	}
	return out
}

func reverseLines(lines []JournalLine) []LineInput {
	out := linesToInputs(lines)
	for i := range out {
		out[i].Side = out[i].Side.Opposite()
	}
	return out
}
