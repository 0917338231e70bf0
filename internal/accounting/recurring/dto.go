package recurring

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
)

// CreateTemplateInput groups fields for a new template.
type CreateTemplateInput struct {
	Name            string
	VoucherType     vouchers.Type
	Frequency       Frequency
	DayOfMonth      *int
	StartDate       time.Time
	EndDate         *time.Time
	AutoPost        bool
	Narration       string
	CounterpartyRef string
	Lines           []TemplateLine
}

// ScheduleUpdate is written after a successful or skipped run.
type ScheduleUpdate struct {
	NextRunDate time.Time
	LastRunDate *time.Time
	RunCount    int
}

// RunResult reports one template's materialization within a tick.
type RunResult struct {
	TemplateID     int64     `json:"template_id"`
	TemplateName   string    `json:"template_name"`
	ScheduledDate  time.Time `json:"scheduled_date"`
	Outcome        Outcome   `json:"outcome"`
	VoucherID      *int64    `json:"voucher_id,omitempty"`
	JournalEntryID *int64    `json:"journal_entry_id,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// RunSummary aggregates a tick.
type RunSummary struct {
	AsOf      time.Time   `json:"as_of"`
	Due       int         `json:"due"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Results   []RunResult `json:"results"`
}

func (s *RunSummary) add(res RunResult) {
	switch res.Outcome {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Results = append(s.Results, res)
}

func templateLinesToVoucher(lines []TemplateLine) []vouchers.LineInput {
	out := make([]vouchers.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, vouchers.LineInput{
			AccountID:   line.AccountID,
			Amount:      line.Amount,
			Side:        line.Side,
			Description: line.Description,
		})
	}
	return out
}
