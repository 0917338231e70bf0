package recurring

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Locker provides cross-process exclusion for a tick.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Service owns recurring templates and the scheduler tick.
type Service struct {
	repo     Repository
	vouchers *vouchers.Service
	locker   Locker
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewService wires the scheduler. locker may be nil for single-process deployments.
func NewService(repo Repository, voucherSvc *vouchers.Service, locker Locker, lockTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Service{repo: repo, vouchers: voucherSvc, locker: locker, lockTTL: lockTTL, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (Template, error) {
	t, err := s.repo.Get(ctx, id)
	return t, shared.WrapStorage("get recurring template", err)
}

func (s *Service) List(ctx context.Context) ([]Template, error) {
	out, err := s.repo.List(ctx)
	return out, shared.WrapStorage("list recurring templates", err)
}

// Create validates and stores an active template whose first run is StartDate.
func (s *Service) Create(ctx context.Context, in CreateTemplateInput) (Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Template{}, shared.Invalid("name", "name required")
	}
	if !in.VoucherType.Valid() {
		return Template{}, shared.ErrUnknownVoucherType
	}
	if !in.Frequency.Valid() {
		return Template{}, shared.ErrUnknownFrequency
	}
	if in.DayOfMonth != nil && (*in.DayOfMonth < 1 || *in.DayOfMonth > 31) {
		return Template{}, shared.Invalid("day_of_month", "day of month must be between 1 and 31")
	}
	if in.StartDate.IsZero() {
		return Template{}, shared.ErrMissingDate
	}
	start := shared.TruncateDate(in.StartDate)
	var end *time.Time
	if in.EndDate != nil {
		e := shared.TruncateDate(*in.EndDate)
		if e.Before(start) {
			return Template{}, shared.Invalid("end_date", "end date precedes start date")
		}
		end = &e
	}
	if err := validateLines(in.Lines, in.AutoPost); err != nil {
		return Template{}, err
	}
	anchor := in.DayOfMonth
	if anchor == nil && in.Frequency != FrequencyDaily && in.Frequency != FrequencyWeekly {
		day := start.Day()
		anchor = &day
	}

	var created Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.InsertTemplate(ctx, Template{
			Name:            name,
			VoucherType:     in.VoucherType,
			Frequency:       in.Frequency,
			DayOfMonth:      anchor,
			StartDate:       start,
			EndDate:         end,
			NextRunDate:     start,
			Active:          true,
			AutoPost:        in.AutoPost,
			Narration:       strings.TrimSpace(in.Narration),
			CounterpartyRef: strings.TrimSpace(in.CounterpartyRef),
			Lines:           in.Lines,
		})
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return Template{}, shared.WrapStorage("create recurring template", err)
	}
	s.logger.Info("recurring template created",
		slog.Int64("template_id", created.ID),
		slog.String("frequency", string(created.Frequency)),
		slog.Time("next_run_date", created.NextRunDate),
	)
	return created, nil
}

// Pause excludes the template from ticks.
func (s *Service) Pause(ctx context.Context, id int64) (Template, error) {
	return s.setActive(ctx, id, false)
}

// Resume makes a paused template eligible again. Missed periods are caught
// up one per tick.
func (s *Service) Resume(ctx context.Context, id int64) (Template, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (Template, error) {
	var updated Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTemplateForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Active == active {
			return shared.ErrInvalidStatus
		}
		if err := tx.SetTemplateActive(ctx, id, active); err != nil {
			return err
		}
		t.Active = active
		updated = t
		return nil
	})
	if err != nil {
		return Template{}, shared.WrapStorage("toggle recurring template", err)
	}
	return updated, nil
}

// ReplaceLines swaps the line set used by future runs.
func (s *Service) ReplaceLines(ctx context.Context, id int64, lines []TemplateLine) (Template, error) {
	var updated Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTemplateForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := validateLines(lines, t.AutoPost); err != nil {
			return err
		}
		if err := tx.ReplaceTemplateLines(ctx, id, lines); err != nil {
			return err
		}
		t.Lines = lines
		updated = t
		return nil
	})
	if err != nil {
		return Template{}, shared.WrapStorage("replace recurring template lines", err)
	}
	return updated, nil
}

// History returns the run log of a template, newest first.
func (s *Service) History(ctx context.Context, templateID int64, limit int) ([]LogEntry, error) {
	if _, err := s.repo.Get(ctx, templateID); err != nil {
		return nil, shared.WrapStorage("recurring history", err)
	}
	out, err := s.repo.History(ctx, templateID, limit)
	return out, shared.WrapStorage("recurring history", err)
}

// RunDue is the scheduler tick. Each due template materializes in its own
// transaction so one failure never blocks the others. Vouchers are dated at
// the template's scheduled date, not asOf.
func (s *Service) RunDue(ctx context.Context, asOf time.Time) (RunSummary, error) {
	asOf = shared.TruncateDate(asOf)
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, locks.RecurringTickLockKey(asOf), s.lockTTL)
		if err != nil {
			return RunSummary{}, err
		}
		defer release()
	}

	due, err := s.repo.ListDue(ctx, asOf)
	if err != nil {
		return RunSummary{}, shared.WrapStorage("list due templates", err)
	}
	summary := RunSummary{AsOf: asOf, Due: len(due), Results: []RunResult{}}
	for _, t := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, ran := s.runTemplate(ctx, t, asOf)
		if ran {
			summary.add(res)
		}
	}
	s.logger.Info("recurring tick complete",
		slog.Time("as_of", asOf),
		slog.Int("due", summary.Due),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

var errNotDue = errors.New("recurring: template no longer due")

func (s *Service) runTemplate(ctx context.Context, listed Template, asOf time.Time) (RunResult, bool) {
	res := RunResult{TemplateID: listed.ID, TemplateName: listed.Name, ScheduledDate: listed.NextRunDate}
	var posted *vouchers.PostResult

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTemplateForUpdate(ctx, listed.ID)
		if err != nil {
			return err
		}
		if !t.DueOn(asOf) {
			return errNotDue
		}
		scheduled := t.NextRunDate
		res.ScheduledDate = scheduled
		next := Advance(scheduled, t.Frequency, t.DayOfMonth)

		if existing, ok, err := tx.GeneratedVoucher(ctx, t.ID, scheduled); err != nil {
			return err
		} else if ok {
			res.Outcome = OutcomeSkipped
			res.VoucherID = &existing
			res.Error = "voucher already generated for scheduled date"
			if _, err := tx.AppendLog(ctx, LogEntry{
				TemplateID:    t.ID,
				VoucherID:     &existing,
				ScheduledDate: scheduled,
				GeneratedDate: asOf,
				Outcome:       OutcomeSkipped,
				Error:         res.Error,
			}); err != nil {
				return err
			}
			return tx.UpdateTemplateSchedule(ctx, t.ID, ScheduleUpdate{NextRunDate: next, LastRunDate: t.LastRunDate, RunCount: t.RunCount})
		}

		templateID := t.ID
		v, err := s.vouchers.CreateWithin(ctx, tx, vouchers.CreateInput{
			Type:                t.VoucherType,
			Date:                scheduled,
			CounterpartyRef:     t.CounterpartyRef,
			Narration:           t.Narration,
			Lines:               templateLinesToVoucher(t.Lines),
			RecurringTemplateID: &templateID,
			ScheduledFor:        &scheduled,
		})
		if err != nil {
			return err
		}
		res.VoucherID = &v.ID
		if t.AutoPost {
			pr, err := s.vouchers.PostWithin(ctx, tx, v.ID)
			if err != nil {
				return err
			}
			posted = &pr
			res.JournalEntryID = &pr.JournalEntry.ID
		}
		if _, err := tx.AppendLog(ctx, LogEntry{
			TemplateID:    t.ID,
			VoucherID:     &v.ID,
			ScheduledDate: scheduled,
			GeneratedDate: asOf,
			Outcome:       OutcomeSuccess,
		}); err != nil {
			return err
		}
		lastRun := asOf
		res.Outcome = OutcomeSuccess
		return tx.UpdateTemplateSchedule(ctx, t.ID, ScheduleUpdate{NextRunDate: next, LastRunDate: &lastRun, RunCount: t.RunCount + 1})
	})

	switch {
	case errors.Is(err, errNotDue):
		return res, false
	case err != nil:
		res.Outcome = OutcomeFailed
		res.VoucherID = nil
		res.JournalEntryID = nil
		res.Error = err.Error()
		s.logger.Warn("recurring template failed",
			slog.Int64("template_id", res.TemplateID),
			slog.Time("scheduled_date", res.ScheduledDate),
			slog.Any("error", err),
		)
		if _, logErr := s.repo.AppendLog(ctx, LogEntry{
			TemplateID:    res.TemplateID,
			ScheduledDate: res.ScheduledDate,
			GeneratedDate: asOf,
			Outcome:       OutcomeFailed,
			Error:         res.Error,
		}); logErr != nil {
			s.logger.Error("recurring log append failed", slog.Int64("template_id", res.TemplateID), slog.Any("error", logErr))
		}
		return res, true
	}
	if posted != nil {
		s.vouchers.Notify(ctx, *posted)
	}
	return res, true
}

func validateLines(lines []TemplateLine, mustBalance bool) error {
	if len(lines) == 0 {
		return shared.ErrNoLines
	}
	posting := make([]journals.LineInput, 0, len(lines))
	for _, line := range lines {
		posting = append(posting, journals.LineInput{AccountID: line.AccountID, Amount: line.Amount, Side: line.Side})
	}
	if err := journals.ValidateLines(posting); err != nil {
		return err
	}
	if mustBalance {
		return journals.CheckBalance(posting)
	}
	return nil
}
