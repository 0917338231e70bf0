package journals

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Notifier receives the journal-posted notification after commit.
type Notifier interface {
	JournalPosted(ctx context.Context, evt PostedEvent) error
}

// Service is the posting engine.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	return entry, shared.WrapStorage("get journal", err)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	entries, err := s.repo.List(ctx, filter)
	return entries, shared.WrapStorage("list journals", err)
}

// Post validates a line set and commits it as a POSTED entry in one transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if input.SourceType == "" {
		input.SourceType = SourceManual
	}
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := s.PostWithin(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, shared.WrapStorage("post journal", err)
	}
	s.Notify(ctx, entry)
	return entry, nil
}

// PostWithin runs the posting inside a caller-owned transaction. The caller is
// responsible for calling Notify once the transaction has committed.
func (s *Service) PostWithin(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if _, err := lockLineAccounts(ctx, tx, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	debit, credit, err := Totals(input.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	postedAt := s.now().UTC()
	entry, err := tx.InsertJournalEntry(ctx, NewEntry{
		Header:      input.Header,
		Status:      StatusPosted,
		TotalDebit:  debit,
		TotalCredit: credit,
		PostedAt:    &postedAt,
	})
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := tx.InsertJournalLines(ctx, entry.ID, input.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := appendLedger(ctx, tx, entry.ID, input.Date, lines); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	s.logger.Debug("journal posted",
		slog.Int64("journal_id", entry.ID),
		slog.Int64("number", entry.Number),
		slog.String("source_type", string(entry.SourceType)),
		slog.String("source_ref", entry.SourceRef),
		slog.String("total", debit.String()),
	)
	return entry, nil
}

// CreateDraft stores an editable DRAFT entry. Drafts may be unbalanced and
// have no ledger effect until PostDraft.
func (s *Service) CreateDraft(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if input.SourceType == "" {
		input.SourceType = SourceManual
	}
	if err := input.validateDraft(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		debit, credit, err := Totals(input.Lines)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntry(ctx, NewEntry{
			Header:      input.Header,
			Status:      StatusDraft,
			TotalDebit:  debit,
			TotalCredit: credit,
		})
		if err != nil {
			return err
		}
		lines, err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, shared.WrapStorage("create journal draft", err)
	}
	return entry, nil
}

// PostDraft moves a DRAFT entry to POSTED, writing its ledger entries.
func (s *Service) PostDraft(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusPosted:
			return shared.ErrAlreadyPosted
		case StatusVoid:
			return shared.ErrInvalidStatus
		}
		input := PostingInput{Header: headerOf(current), Lines: linesToInputs(current.Lines)}
		if err := input.Validate(); err != nil {
			return err
		}
		if _, err := lockLineAccounts(ctx, tx, input.Lines); err != nil {
			return err
		}
		if err := appendLedger(ctx, tx, current.ID, current.Date, current.Lines); err != nil {
			return err
		}
		postedAt := s.now().UTC()
		if err := tx.UpdateJournalStatus(ctx, current.ID, StatusUpdate{Status: StatusPosted, PostedAt: &postedAt}); err != nil {
			return err
		}
		current.Status = StatusPosted
		current.PostedAt = &postedAt
		current.TotalDebit, current.TotalCredit, _ = Totals(input.Lines)
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, shared.WrapStorage("post journal draft", err)
	}
	s.Notify(ctx, entry)
	return entry, nil
}

// Void cancels a draft, or reverses a posted entry with an equal and opposite
// entry and marks the original VOID. Ledger rows are never rewritten.
func (s *Service) Void(ctx context.Context, input VoidInput) (VoidResult, error) {
	if input.EntryID <= 0 {
		return VoidResult{}, shared.Invalid("entry_id", "entry id required")
	}
	var result VoidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.VoidWithin(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return VoidResult{}, shared.WrapStorage("void journal", err)
	}
	if result.Reversal != nil {
		s.Notify(ctx, *result.Reversal)
	}
	return result, nil
}

// VoidWithin is Void inside a caller-owned transaction.
func (s *Service) VoidWithin(ctx context.Context, tx TxRepository, input VoidInput) (VoidResult, error) {
	current, err := tx.GetJournalForUpdate(ctx, input.EntryID)
	if err != nil {
		return VoidResult{}, err
	}
	switch current.Status {
	case StatusVoid:
		return VoidResult{}, shared.ErrInvalidStatus
	case StatusDraft:
		if err := tx.UpdateJournalStatus(ctx, current.ID, StatusUpdate{Status: StatusVoid}); err != nil {
			return VoidResult{}, err
		}
		current.Status = StatusVoid
		return VoidResult{Original: current}, nil
	}

	date := current.Date
	if input.Date != nil {
		date = *input.Date
	}
	originalID := current.ID
	reversal, err := s.PostWithin(ctx, tx, PostingInput{
		Header: Header{
			Date:         date,
			Description:  reversalDescription(input.Reason, current.Number),
			SourceType:   SourceReversal,
			SourceRef:    strconv.FormatInt(current.ID, 10),
			ReversalOfID: &originalID,
		},
		Lines: reverseLines(current.Lines),
	})
	if err != nil {
		return VoidResult{}, err
	}
	if err := tx.UpdateJournalStatus(ctx, current.ID, StatusUpdate{Status: StatusVoid, ReversedByID: &reversal.ID}); err != nil {
		return VoidResult{}, err
	}
	current.Status = StatusVoid
	current.ReversedByID = &reversal.ID
	return VoidResult{Original: current, Reversal: &reversal}, nil
}

// Notify emits the journal-posted notification. Delivery failures are logged
// and never affect the committed posting.
func (s *Service) Notify(ctx context.Context, entry JournalEntry) {
	if s.notifier == nil || entry.Status != StatusPosted {
		return
	}
	postedAt := s.now().UTC()
	if entry.PostedAt != nil {
		postedAt = *entry.PostedAt
	}
	err := s.notifier.JournalPosted(ctx, PostedEvent{
		JournalEntryID: entry.ID,
		Number:         entry.Number,
		SourceType:     entry.SourceType,
		SourceRef:      entry.SourceRef,
		PostedAt:       postedAt,
	})
	if err != nil {
		s.logger.Warn("journal posted notification failed",
			slog.Int64("journal_id", entry.ID),
			slog.Any("error", err),
		)
	}
}

func lockLineAccounts(ctx context.Context, tx TxRepository, lines []LineInput) (map[int64]accounts.Account, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	locked, err := tx.LockAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if !locked[id].IsActive {
			return nil, fmt.Errorf("account %d: %w", id, shared.ErrInactiveAccount)
		}
	}
	return locked, nil
}

func appendLedger(ctx context.Context, tx TxRepository, entryID int64, date time.Time, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := tx.AppendLedgerEntry(ctx, accounts.AppendInput{
			AccountID:      line.AccountID,
			EntryDate:      date,
			Debit:          line.Debit,
			Credit:         line.Credit,
			JournalEntryID: entryID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func headerOf(entry JournalEntry) Header {
	return Header{
		Date:         entry.Date,
		Description:  entry.Description,
		SourceType:   entry.SourceType,
		SourceRef:    entry.SourceRef,
		VoucherID:    entry.VoucherID,
		ReversalOfID: entry.ReversalOfID,
	}
}

func reversalDescription(reason string, number int64) string {
	if reason != "" {
		return fmt.Sprintf("Reversal of JE %d: %s", number, reason)
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
