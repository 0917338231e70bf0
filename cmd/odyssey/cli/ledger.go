// Package cli holds the operator subcommands of the odyssey binary. Commands
// return process exit codes and write to the supplied writers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Exit codes shared by the ledger commands.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitUsage    = 2
	ExitBusy     = 3
	ExitFindings = 10
)

// LedgerServices is what the ledger commands need from the wired core.
type LedgerServices struct {
	Recurring interface {
		RunDue(ctx context.Context, asOf time.Time) (recurring.RunSummary, error)
	}
	Accounts interface {
		VerifyAll(ctx context.Context) ([]accounts.Verification, error)
	}
	Reports interface {
		TrialBalance(ctx context.Context) (reports.TrialBalance, error)
	}
}

// LedgerCLI implements `recurring run`, `ledger verify` and `ledger tb`.
type LedgerCLI struct {
	services LedgerServices
	today    func() time.Time
}

// NewLedgerCLI builds the commands. today supplies the business date used
// when --as-of is not given.
func NewLedgerCLI(services LedgerServices, today func() time.Time) *LedgerCLI {
	if today == nil {
		today = func() time.Time { return shared.TruncateDate(time.Now()) }
	}
	return &LedgerCLI{services: services, today: today}
}

// RecurringRunOptions are the flags of `recurring run`.
type RecurringRunOptions struct {
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RecurringRunCommand ticks the scheduler once. It exits with ExitFindings
// when any template failed and ExitBusy when another tick holds the lock.
func (c *LedgerCLI) RecurringRunCommand(ctx context.Context, opts RecurringRunOptions) int {
	stdout, stderr := orStd(opts.Stdout, os.Stdout), orStd(opts.Stderr, os.Stderr)
	asOf := c.today()
	if opts.AsOf != "" {
		parsed, err := shared.ParseDate(opts.AsOf)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "recurring run: invalid --as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return ExitUsage
		}
		asOf = parsed
	}
	summary, err := c.services.Recurring.RunDue(ctx, asOf)
	if errors.Is(err, locks.ErrLockNotAcquired) {
		_, _ = fmt.Fprintln(stderr, "recurring run: another tick is in progress")
		return ExitBusy
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "recurring run: %v\n", err)
		return ExitError
	}
	if opts.JSONOutput {
		if err := writeJSON(stdout, summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "recurring run: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderRunHuman(stdout, summary)
	}
	if summary.Failed > 0 {
		return ExitFindings
	}
	return ExitOK
}

func renderRunHuman(out io.Writer, summary recurring.RunSummary) {
	_, _ = printer.Fprintf(out, "Recurring run as of %s: %d due, %d succeeded, %d failed, %d skipped\n",
		summary.AsOf.Format(shared.DateLayout), summary.Due, summary.Succeeded, summary.Failed, summary.Skipped)
	for _, res := range summary.Results {
		line := printer.Sprintf(" - #%d %s for %s: %s", res.TemplateID, res.TemplateName, res.ScheduledDate.Format(shared.DateLayout), res.Outcome)
		if res.VoucherID != nil {
			line += printer.Sprintf(" (voucher %d)", *res.VoucherID)
		}
		if res.Error != "" {
			line += ": " + res.Error
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

// VerifyOptions are the flags of `ledger verify`.
type VerifyOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the JSON document of `ledger verify --json`.
type VerifySummary struct {
	OK         bool                    `json:"ok"`
	Checked    int                     `json:"checked"`
	Mismatched []accounts.Verification `json:"mismatched"`
}

// VerifyCommand replays every account ledger. Mismatches exit with ExitFindings.
func (c *LedgerCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	stdout, stderr := orStd(opts.Stdout, os.Stdout), orStd(opts.Stderr, os.Stderr)
	results, err := c.services.Accounts.VerifyAll(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledger verify: %v\n", err)
		return ExitError
	}
	summary := VerifySummary{Checked: len(results), Mismatched: []accounts.Verification{}}
	for _, v := range results {
		if !v.OK() {
			summary.Mismatched = append(summary.Mismatched, v)
		}
	}
	summary.OK = len(summary.Mismatched) == 0

	if opts.JSONOutput {
		if err := writeJSON(stdout, summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "ledger verify: encode json: %v\n", err)
			return ExitError
		}
	} else {
		_, _ = printer.Fprintf(stdout, "Checked %d accounts, %d mismatched\n", summary.Checked, len(summary.Mismatched))
		for _, v := range summary.Mismatched {
			_, _ = printer.Fprintf(stdout, " - %s: cached %s, replayed %s", v.Code, v.Cached, v.Replayed)
			if v.BrokenAt != 0 {
				_, _ = printer.Fprintf(stdout, ", first bad snapshot at entry %d", v.BrokenAt)
			}
			_, _ = fmt.Fprintln(stdout)
		}
	}
	if !summary.OK {
		return ExitFindings
	}
	return ExitOK
}

// TrialBalanceCommand prints the current trial balance.
func (c *LedgerCLI) TrialBalanceCommand(ctx context.Context, opts VerifyOptions) int {
	stdout, stderr := orStd(opts.Stdout, os.Stdout), orStd(opts.Stderr, os.Stderr)
	tb, err := c.services.Reports.TrialBalance(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledger tb: %v\n", err)
		return ExitError
	}
	if opts.JSONOutput {
		if err := writeJSON(stdout, tb); err != nil {
			_, _ = fmt.Fprintf(stderr, "ledger tb: encode json: %v\n", err)
			return ExitError
		}
	} else {
		for _, grp := range tb.Groups {
			_, _ = fmt.Fprintf(stdout, "%s\n", grp.Type)
			for _, row := range grp.Accounts {
				_, _ = fmt.Fprintf(stdout, "  %-8s %-32s %14s %14s\n", row.Code, row.Name, blankZero(row.Debit.String()), blankZero(row.Credit.String()))
			}
		}
		_, _ = fmt.Fprintf(stdout, "  %-8s %-32s %14s %14s\n", "", "Total", tb.TotalDebit, tb.TotalCredit)
	}
	if !tb.Balanced() {
		_, _ = fmt.Fprintln(stderr, "ledger tb: debit and credit totals differ")
		return ExitFindings
	}
	return ExitOK
}

func blankZero(s string) string {
	if s == "0.00" {
		return ""
	}
	return s
}
