package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type mappingRepo struct{ s *Store }

func (r mappingRepo) Get(_ context.Context, key string) (mappings.AccountMapping, error) {
	var (
		m  mappings.AccountMapping
		ok bool
	)
	r.s.read(func(st *state) { m, ok = st.mappings[key] })
	if !ok {
		return mappings.AccountMapping{}, shared.ErrMappingNotFound
	}
	return m, nil
}

func (r mappingRepo) List(_ context.Context) ([]mappings.AccountMapping, error) {
	var out []mappings.AccountMapping
	r.s.read(func(st *state) {
		for _, m := range st.mappings {
			out = append(out, m)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r mappingRepo) Upsert(ctx context.Context, key string, accountID int64) (mappings.AccountMapping, error) {
	var m mappings.AccountMapping
	err := r.s.update(ctx, func(tx *memTx) error {
		if _, ok := tx.st.accounts[accountID]; !ok {
			return shared.ErrAccountNotFound
		}
		now := tx.now()
		m = tx.st.mappings[key]
		if m.Key == "" {
			m = mappings.AccountMapping{Key: key, CreatedAt: now}
		}
		m.AccountID = accountID
		m.UpdatedAt = now
		tx.st.mappings[key] = m
		return nil
	})
	return m, err
}

func (r mappingRepo) Delete(ctx context.Context, key string) error {
	return r.s.update(ctx, func(tx *memTx) error {
		if _, ok := tx.st.mappings[key]; !ok {
			return shared.ErrMappingNotFound
		}
		delete(tx.st.mappings, key)
		return nil
	})
}
