package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type accountRepo struct{ s *Store }

func (r accountRepo) Get(_ context.Context, id int64) (accounts.Account, error) {
	var (
		a  accounts.Account
		ok bool
	)
	r.s.read(func(st *state) { a, ok = st.accounts[id] })
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (r accountRepo) GetByCode(_ context.Context, code string) (accounts.Account, error) {
	var (
		a  accounts.Account
		ok bool
	)
	r.s.read(func(st *state) { a, ok = accountByCode(st, code) })
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func accountByCode(st *state, code string) (accounts.Account, bool) {
	for _, a := range st.accounts {
		if a.Code == code {
			return a, true
		}
	}
	return accounts.Account{}, false
}

func (r accountRepo) List(_ context.Context) ([]accounts.Account, error) {
	var out []accounts.Account
	r.s.read(func(st *state) {
		for _, a := range st.accounts {
			out = append(out, a)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r accountRepo) ListLedgerEntries(_ context.Context, accountID int64) ([]accounts.LedgerEntry, error) {
	var out []accounts.LedgerEntry
	r.s.read(func(st *state) {
		for _, e := range st.ledger {
			if e.AccountID == accountID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (r accountRepo) Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error) {
	var created accounts.Account
	err := r.s.update(ctx, func(tx *memTx) error {
		code := strings.TrimSpace(in.Code)
		if _, exists := accountByCode(tx.st, code); exists {
			return shared.Invalid("code", "account code %s already exists", code)
		}
		tx.st.seq.account++
		now := tx.now()
		created = accounts.Account{
			ID:         tx.st.seq.account,
			Code:       code,
			Name:       in.Name,
			Type:       in.Type,
			NormalSide: in.Type.NormalSide(),
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		tx.st.accounts[created.ID] = created
		return nil
	})
	return created, err
}

// SetActive toggles an account; chart maintenance has no repository method
// of its own, so tests and seeds use this.
func (s *Store) SetActive(ctx context.Context, accountID int64, active bool) error {
	return s.update(ctx, func(tx *memTx) error {
		a, ok := tx.st.accounts[accountID]
		if !ok {
			return shared.ErrAccountNotFound
		}
		a.IsActive = active
		tx.st.accounts[accountID] = a
		return nil
	})
}

func (r accountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.s.update(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

func (tx *memTx) LockAccounts(_ context.Context, ids []int64) (map[int64]accounts.Account, error) {
	ordered := accounts.SortedUnique(ids)
	locked := make(map[int64]accounts.Account, len(ordered))
	for _, id := range ordered {
		a, ok := tx.st.accounts[id]
		if !ok {
			return nil, shared.ErrAccountNotFound
		}
		locked[id] = a
	}
	return locked, nil
}

func (tx *memTx) AppendLedgerEntry(_ context.Context, in accounts.AppendInput) (accounts.LedgerEntry, error) {
	a, ok := tx.st.accounts[in.AccountID]
	if !ok {
		return accounts.LedgerEntry{}, shared.ErrAccountNotFound
	}
	balance, err := a.Balance.Add(in.Debit - in.Credit)
	if err != nil {
		return accounts.LedgerEntry{}, shared.ErrBalanceOutOfRange
	}
	now := tx.now()
	a.Balance = balance
	a.UpdatedAt = now
	tx.st.accounts[a.ID] = a

	tx.st.seq.ledger++
	entry := accounts.LedgerEntry{
		ID:             tx.st.seq.ledger,
		AccountID:      in.AccountID,
		JournalEntryID: in.JournalEntryID,
		EntryDate:      in.EntryDate,
		Debit:          in.Debit,
		Credit:         in.Credit,
		RunningBalance: a.Balance,
		CreatedAt:      now,
	}
	tx.st.ledger = append(tx.st.ledger, entry)
	return entry, nil
}
