package journals

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// Status enumerates journal lifecycle values. Transitions only move forward:
// DRAFT->POSTED, DRAFT->VOID, POSTED->VOID (through a reversing entry).
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// SourceType records what produced an entry.
type SourceType string

const (
	SourceManual        SourceType = "MANUAL"
	SourceVoucher       SourceType = "VOUCHER"
	SourceRecurring     SourceType = "RECURRING"
	SourceExternalEvent SourceType = "EXTERNAL_EVENT"
	SourceReversal      SourceType = "REVERSAL"
)

// Valid reports whether t is a known source.
func (t SourceType) Valid() bool {
	switch t {
	case SourceManual, SourceVoucher, SourceRecurring, SourceExternalEvent, SourceReversal:
		return true
	}
	return false
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64         `json:"id"`
	Number       int64         `json:"number"`
	Date         time.Time     `json:"date"`
	Description  string        `json:"description"`
	SourceType   SourceType    `json:"source_type"`
	SourceRef    string        `json:"source_ref"`
	Status       Status        `json:"status"`
	TotalDebit   money.Amount  `json:"total_debit"`
	TotalCredit  money.Amount  `json:"total_credit"`
	VoucherID    *int64        `json:"voucher_id,omitempty"`
	ReversalOfID *int64        `json:"reversal_of_id,omitempty"`
	ReversedByID *int64        `json:"reversed_by_id,omitempty"`
	PostedAt     *time.Time    `json:"posted_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Lines        []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores debit or credit amount for an account. Exactly one of
// Debit and Credit is non-zero.
type JournalLine struct {
	ID             int64        `json:"id"`
	JournalEntryID int64        `json:"journal_entry_id"`
	AccountID      int64        `json:"account_id"`
	Debit          money.Amount `json:"debit"`
	Credit         money.Amount `json:"credit"`
	Description    string       `json:"description,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// PostedEvent is the outbound "journal entry posted" notification.
type PostedEvent struct {
	JournalEntryID int64      `json:"journal_entry_id"`
	Number         int64      `json:"number"`
	SourceType     SourceType `json:"source_type"`
	SourceRef      string     `json:"source_ref"`
	PostedAt       time.Time  `json:"posted_at"`
}
