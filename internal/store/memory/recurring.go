package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type recurringRepo struct{ s *Store }

func (r recurringRepo) Get(_ context.Context, id int64) (recurring.Template, error) {
	var (
		t  recurring.Template
		ok bool
	)
	r.s.read(func(st *state) { t, ok = st.templates[id] })
	if !ok {
		return recurring.Template{}, shared.ErrTemplateNotFound
	}
	t.Lines = slices.Clone(t.Lines)
	return t, nil
}

func (r recurringRepo) List(_ context.Context) ([]recurring.Template, error) {
	out := r.collect(func(recurring.Template) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r recurringRepo) ListDue(_ context.Context, asOf time.Time) ([]recurring.Template, error) {
	out := r.collect(func(t recurring.Template) bool { return t.DueOn(asOf) })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRunDate.Equal(out[j].NextRunDate) {
			return out[i].NextRunDate.Before(out[j].NextRunDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r recurringRepo) collect(keep func(recurring.Template) bool) []recurring.Template {
	var out []recurring.Template
	r.s.read(func(st *state) {
		for _, t := range st.templates {
			if keep(t) {
				t.Lines = slices.Clone(t.Lines)
				out = append(out, t)
			}
		}
	})
	return out
}

func (r recurringRepo) History(_ context.Context, templateID int64, limit int) ([]recurring.LogEntry, error) {
	var out []recurring.LogEntry
	r.s.read(func(st *state) {
		for i := len(st.runLog) - 1; i >= 0; i-- {
			if st.runLog[i].TemplateID == templateID {
				out = append(out, st.runLog[i])
				if limit > 0 && len(out) == limit {
					return
				}
			}
		}
	})
	return out, nil
}

func (r recurringRepo) AppendLog(ctx context.Context, entry recurring.LogEntry) (recurring.LogEntry, error) {
	var appended recurring.LogEntry
	err := r.s.update(ctx, func(tx *memTx) error {
		var err error
		appended, err = tx.AppendLog(ctx, entry)
		return err
	})
	return appended, err
}

func (r recurringRepo) WithTx(ctx context.Context, fn func(context.Context, recurring.TxRepository) error) error {
	return r.s.update(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

func (tx *memTx) InsertTemplate(_ context.Context, t recurring.Template) (recurring.Template, error) {
	now := tx.now()
	tx.st.seq.template++
	t.ID = tx.st.seq.template
	t.CreatedAt, t.UpdatedAt = now, now
	t.Lines = slices.Clone(t.Lines)
	tx.st.templates[t.ID] = t
	t.Lines = slices.Clone(t.Lines)
	return t, nil
}

func (tx *memTx) GetTemplateForUpdate(_ context.Context, id int64) (recurring.Template, error) {
	t, ok := tx.st.templates[id]
	if !ok {
		return recurring.Template{}, shared.ErrTemplateNotFound
	}
	t.Lines = slices.Clone(t.Lines)
	return t, nil
}

func (tx *memTx) modifyTemplate(id int64, fn func(*recurring.Template)) error {
	t, ok := tx.st.templates[id]
	if !ok {
		return shared.ErrTemplateNotFound
	}
	fn(&t)
	t.UpdatedAt = tx.now()
	tx.st.templates[id] = t
	return nil
}

func (tx *memTx) UpdateTemplateSchedule(_ context.Context, id int64, update recurring.ScheduleUpdate) error {
	return tx.modifyTemplate(id, func(t *recurring.Template) {
		t.NextRunDate = update.NextRunDate
		t.LastRunDate = update.LastRunDate
		t.RunCount = update.RunCount
	})
}

func (tx *memTx) SetTemplateActive(_ context.Context, id int64, active bool) error {
	return tx.modifyTemplate(id, func(t *recurring.Template) { t.Active = active })
}

func (tx *memTx) ReplaceTemplateLines(_ context.Context, id int64, lines []recurring.TemplateLine) error {
	return tx.modifyTemplate(id, func(t *recurring.Template) { t.Lines = slices.Clone(lines) })
}

func (tx *memTx) GeneratedVoucher(_ context.Context, templateID int64, scheduled time.Time) (int64, bool, error) {
	id, ok := tx.generatedVoucher(templateID, scheduled)
	return id, ok, nil
}

func (tx *memTx) generatedVoucher(templateID int64, scheduled time.Time) (int64, bool) {
	for _, v := range tx.st.vouchers {
		if v.RecurringTemplateID != nil && *v.RecurringTemplateID == templateID &&
			v.ScheduledFor != nil && v.ScheduledFor.Equal(scheduled) {
			return v.ID, true
		}
	}
	return 0, false
}

func (tx *memTx) AppendLog(_ context.Context, entry recurring.LogEntry) (recurring.LogEntry, error) {
	tx.st.seq.runLog++
	entry.ID = tx.st.seq.runLog
	entry.CreatedAt = tx.now()
	tx.st.runLog = append(tx.st.runLog, entry)
	return entry, nil
}
