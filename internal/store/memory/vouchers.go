package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
)

type voucherRepo struct{ s *Store }

func (r voucherRepo) Get(_ context.Context, id int64) (vouchers.Voucher, error) {
	var (
		v  vouchers.Voucher
		ok bool
	)
	r.s.read(func(st *state) { v, ok = st.vouchers[id] })
	if !ok {
		return vouchers.Voucher{}, shared.ErrVoucherNotFound
	}
	v.Lines = slices.Clone(v.Lines)
	return v, nil
}

func (r voucherRepo) List(_ context.Context, filter vouchers.ListFilter) ([]vouchers.Voucher, error) {
	var out []vouchers.Voucher
	r.s.read(func(st *state) {
		for _, v := range st.vouchers {
			if filter.Type != "" && v.Type != filter.Type {
				continue
			}
			if filter.Status != "" && v.Status != filter.Status {
				continue
			}
			v.Lines = nil
			out = append(out, v)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r voucherRepo) WithTx(ctx context.Context, fn func(context.Context, vouchers.TxRepository) error) error {
	return r.s.update(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

func (tx *memTx) NextVoucherSequence(_ context.Context, t vouchers.Type) (int64, error) {
	tx.st.voucherSeq[t]++
	return tx.st.voucherSeq[t], nil
}

func (tx *memTx) InsertVoucher(_ context.Context, v vouchers.Voucher) (vouchers.Voucher, error) {
	if v.RecurringTemplateID != nil && v.ScheduledFor != nil {
		if _, exists := tx.generatedVoucher(*v.RecurringTemplateID, *v.ScheduledFor); exists {
			return vouchers.Voucher{}, shared.ErrDuplicateRun
		}
	}
	now := tx.now()
	tx.st.seq.voucher++
	v.ID = tx.st.seq.voucher
	v.CreatedAt, v.UpdatedAt = now, now
	v.Lines = tx.voucherLines(v.ID, v.Lines)
	tx.st.vouchers[v.ID] = v
	v.Lines = slices.Clone(v.Lines)
	return v, nil
}

func (tx *memTx) voucherLines(voucherID int64, lines []vouchers.Line) []vouchers.Line {
	out := make([]vouchers.Line, 0, len(lines))
	for _, line := range lines {
		tx.st.seq.voucherLine++
		line.ID = tx.st.seq.voucherLine
		line.VoucherID = voucherID
		out = append(out, line)
	}
	return out
}

func (tx *memTx) GetVoucherForUpdate(_ context.Context, id int64) (vouchers.Voucher, error) {
	v, ok := tx.st.vouchers[id]
	if !ok {
		return vouchers.Voucher{}, shared.ErrVoucherNotFound
	}
	v.Lines = slices.Clone(v.Lines)
	return v, nil
}

func (tx *memTx) ReplaceVoucherLines(_ context.Context, id int64, lines []vouchers.Line) ([]vouchers.Line, error) {
	v, ok := tx.st.vouchers[id]
	if !ok {
		return nil, shared.ErrVoucherNotFound
	}
	v.Lines = tx.voucherLines(id, lines)
	v.UpdatedAt = tx.now()
	tx.st.vouchers[id] = v
	return slices.Clone(v.Lines), nil
}

func (tx *memTx) UpdateVoucherStatus(_ context.Context, id int64, status vouchers.Status, journalEntryID *int64) error {
	v, ok := tx.st.vouchers[id]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.Status = status
	if journalEntryID != nil {
		v.JournalEntryID = journalEntryID
	}
	v.UpdatedAt = tx.now()
	tx.st.vouchers[id] = v
	return nil
}
