package recurring

import (
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// Frequency enumerates template cadences.
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// ParseFrequency reads a cadence case-insensitively.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", shared.ErrUnknownFrequency
	}
	return f, nil
}

// Template is a named line set materialized into a voucher on every run.
type Template struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	VoucherType     vouchers.Type  `json:"voucher_type"`
	Frequency       Frequency      `json:"frequency"`
	DayOfMonth      *int           `json:"day_of_month,omitempty"`
	StartDate       time.Time      `json:"start_date"`
	EndDate         *time.Time     `json:"end_date,omitempty"`
	NextRunDate     time.Time      `json:"next_run_date"`
	LastRunDate     *time.Time     `json:"last_run_date,omitempty"`
	Active          bool           `json:"active"`
	AutoPost        bool           `json:"auto_post"`
	RunCount        int            `json:"run_count"`
	Narration       string         `json:"narration,omitempty"`
	CounterpartyRef string         `json:"counterparty_ref,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Lines           []TemplateLine `json:"lines"`
}

// DueOn reports whether the template should run for asOf.
func (t Template) DueOn(asOf time.Time) bool {
	if !t.Active || t.NextRunDate.After(asOf) {
		return false
	}
	return t.EndDate == nil || !t.NextRunDate.After(*t.EndDate)
}

// TemplateLine is copied verbatim into every generated voucher.
type TemplateLine struct {
	AccountID   int64        `json:"account_id"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side"`
	Description string       `json:"description,omitempty"`
}

// Outcome of a materialization attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// LogEntry is an append-only record of one materialization attempt.
type LogEntry struct {
	ID            int64     `json:"id"`
	TemplateID    int64     `json:"template_id"`
	VoucherID     *int64    `json:"voucher_id,omitempty"`
	ScheduledDate time.Time `json:"scheduled_date"`
	GeneratedDate time.Time `json:"generated_date"`
	Outcome       Outcome   `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
