package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type journalRepo struct{ s *Store }

func (r journalRepo) Get(_ context.Context, id int64) (journals.JournalEntry, error) {
	var (
		e  journals.JournalEntry
		ok bool
	)
	r.s.read(func(st *state) { e, ok = st.journals[id] })
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	e.Lines = slices.Clone(e.Lines)
	return e, nil
}

func (r journalRepo) List(_ context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	var out []journals.JournalEntry
	r.s.read(func(st *state) {
		for _, e := range st.journals {
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			if filter.SourceType != "" && e.SourceType != filter.SourceType {
				continue
			}
			if filter.SourceRef != "" && e.SourceRef != filter.SourceRef {
				continue
			}
			e.Lines = nil
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.update(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

func (tx *memTx) InsertJournalEntry(_ context.Context, in journals.NewEntry) (journals.JournalEntry, error) {
	if in.SourceType == journals.SourceExternalEvent {
		for _, e := range tx.st.journals {
			if e.SourceType == in.SourceType && e.SourceRef == in.SourceRef {
				return journals.JournalEntry{}, shared.ErrSourceAlreadyLinked
			}
		}
	}
	now := tx.now()
	tx.st.seq.journal++
	tx.st.seq.journalNumber++
	entry := journals.JournalEntry{
		ID:           tx.st.seq.journal,
		Number:       tx.st.seq.journalNumber,
		Date:         in.Date,
		Description:  in.Description,
		SourceType:   in.SourceType,
		SourceRef:    in.SourceRef,
		Status:       in.Status,
		TotalDebit:   in.TotalDebit,
		TotalCredit:  in.TotalCredit,
		VoucherID:    in.VoucherID,
		ReversalOfID: in.ReversalOfID,
		PostedAt:     in.PostedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx.st.journals[entry.ID] = entry
	return entry, nil
}

func (tx *memTx) InsertJournalLines(_ context.Context, entryID int64, lines []journals.LineInput) ([]journals.JournalLine, error) {
	entry, ok := tx.st.journals[entryID]
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	now := tx.now()
	out := make([]journals.JournalLine, 0, len(lines))
	for _, line := range lines {
		if _, ok := tx.st.accounts[line.AccountID]; !ok {
			return nil, shared.ErrAccountNotFound
		}
		tx.st.seq.journalLine++
		out = append(out, journals.JournalLine{
			ID:             tx.st.seq.journalLine,
			JournalEntryID: entryID,
			AccountID:      line.AccountID,
			Debit:          line.Debit(),
			Credit:         line.Credit(),
			Description:    line.Description,
			CreatedAt:      now,
		})
	}
	entry.Lines = append(slices.Clone(entry.Lines), out...)
	tx.st.journals[entryID] = entry
	return slices.Clone(out), nil
}

func (tx *memTx) GetJournalForUpdate(_ context.Context, entryID int64) (journals.JournalEntry, error) {
	e, ok := tx.st.journals[entryID]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	e.Lines = slices.Clone(e.Lines)
	return e, nil
}

func (tx *memTx) UpdateJournalStatus(_ context.Context, entryID int64, update journals.StatusUpdate) error {
	e, ok := tx.st.journals[entryID]
	if !ok {
		return shared.ErrJournalNotFound
	}
	e.Status = update.Status
	if update.PostedAt != nil {
		e.PostedAt = update.PostedAt
	}
	if update.ReversedByID != nil {
		e.ReversedByID = update.ReversedByID
	}
	if update.Status == journals.StatusPosted {
		e.TotalDebit, e.TotalCredit = 0, 0
		for _, line := range e.Lines {
			e.TotalDebit += line.Debit
			e.TotalCredit += line.Credit
		}
	}
	e.UpdatedAt = tx.now()
	tx.st.journals[entryID] = e
	return nil
}
