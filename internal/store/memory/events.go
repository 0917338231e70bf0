package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
)

type eventRepo struct{ s *Store }

func (r eventRepo) Record(ctx context.Context, evt integration.Event) (integration.Event, bool, error) {
	var (
		stored  integration.Event
		created bool
	)
	err := r.s.update(ctx, func(tx *memTx) error {
		for _, existing := range tx.st.events {
			if existing.SourceRef == evt.SourceRef {
				stored = existing
				return nil
			}
		}
		tx.st.seq.event++
		stored = integration.Event{
			ID:         tx.st.seq.event,
			Type:       evt.Type,
			SourceRef:  evt.SourceRef,
			Payload:    slices.Clone(evt.Payload),
			Status:     integration.StatusReceived,
			ReceivedAt: tx.now(),
		}
		tx.st.events[stored.ID] = stored
		created = true
		return nil
	})
	return stored, created, err
}

func (r eventRepo) Get(_ context.Context, id int64) (integration.Event, error) {
	var (
		e  integration.Event
		ok bool
	)
	r.s.read(func(st *state) { e, ok = st.events[id] })
	if !ok {
		return integration.Event{}, shared.ErrEventNotFound
	}
	return e, nil
}

func (r eventRepo) ListByStatus(_ context.Context, status integration.Status, limit int) ([]integration.Event, error) {
	var out []integration.Event
	r.s.read(func(st *state) {
		for _, e := range st.events {
			if status == "" || e.Status == status {
				out = append(out, e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r eventRepo) MarkProcessed(ctx context.Context, id, journalEntryID int64, at time.Time) error {
	return r.modify(ctx, id, func(e *integration.Event) {
		e.Status = integration.StatusProcessed
		e.Error = ""
		e.JournalEntryID = &journalEntryID
		e.ProcessedAt = &at
	})
}

func (r eventRepo) MarkFailed(ctx context.Context, id int64, message string, at time.Time) error {
	return r.modify(ctx, id, func(e *integration.Event) {
		e.Status = integration.StatusFailed
		e.Error = message
		e.ProcessedAt = &at
	})
}

func (r eventRepo) modify(ctx context.Context, id int64, fn func(*integration.Event)) error {
	return r.s.update(ctx, func(tx *memTx) error {
		e, ok := tx.st.events[id]
		if !ok {
			return shared.ErrEventNotFound
		}
		fn(&e)
		e.Attempts++
		tx.st.events[id] = e
		return nil
	})
}
