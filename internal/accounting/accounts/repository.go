package accounts

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository exposes account reads and the transactional ledger store.
type Repository interface {
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	ListLedgerEntries(ctx context.Context, accountID int64) ([]LedgerEntry, error)
	Create(ctx context.Context, in CreateInput) (Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes ledger mutations available within a transaction.
type TxRepository interface {
	// LockAccounts row-locks the given accounts in ascending id order.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	// AppendLedgerEntry applies debit - credit to the cached balance and
	// records the movement with the resulting running balance.
	AppendLedgerEntry(ctx context.Context, in AppendInput) (LedgerEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const accountColumns = `id, code, name, type, normal_side, balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a       Account
		balance decimal.Decimal
	)
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	if a.Balance, err = money.FromDecimalRound(balance); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) ListLedgerEntries(ctx context.Context, accountID int64) ([]LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, account_id, entry_id, date, debit, credit, running_balance, created_at
FROM ledger_entries WHERE account_id=$1 ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var (
			e                      LedgerEntry
			debit, credit, running decimal.Decimal
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.JournalEntryID, &e.EntryDate, &debit, &credit, &running, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Debit, err = money.FromDecimalRound(debit); err != nil {
			return nil, err
		}
		if e.Credit, err = money.FromDecimalRound(credit); err != nil {
			return nil, err
		}
		if e.RunningBalance, err = money.FromDecimalRound(running); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Create(ctx context.Context, in CreateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, normal_side)
VALUES ($1,$2,$3,$4) RETURNING `+accountColumns, in.Code, in.Name, in.Type, in.Type.NormalSide())
	a, err := scanAccount(row)
	if err != nil && db.IsUniqueViolation(err, "") {
		return Account{}, shared.Invalid("code", "account code %s already exists", in.Code)
	}
	return a, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds the ledger store to an open transaction so other
// packages can embed it in their own transactional repositories.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	ordered := SortedUnique(ids)
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ordered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locked := make(map[int64]Account, len(ordered))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		locked[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(locked) != len(ordered) {
		return nil, shared.ErrAccountNotFound
	}
	return locked, nil
}

func (r *txRepository) AppendLedgerEntry(ctx context.Context, in AppendInput) (LedgerEntry, error) {
	delta := in.Debit - in.Credit
	var running decimal.Decimal
	entry := LedgerEntry{
		AccountID:      in.AccountID,
		JournalEntryID: in.JournalEntryID,
		EntryDate:      in.EntryDate,
		Debit:          in.Debit,
		Credit:         in.Credit,
	}
	err := r.tx.QueryRow(ctx, `WITH updated AS (
    UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance
)
INSERT INTO ledger_entries (account_id, entry_id, date, debit, credit, running_balance)
SELECT $1, $3, $4, $5, $6, updated.balance FROM updated
RETURNING id, running_balance, created_at`,
		in.AccountID, delta.Decimal(), in.JournalEntryID, in.EntryDate, in.Debit.Decimal(), in.Credit.Decimal()).
		Scan(&entry.ID, &running, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerEntry{}, shared.ErrAccountNotFound
		}
		if db.IsNumericOverflow(err) {
			return LedgerEntry{}, shared.ErrBalanceOutOfRange
		}
		return LedgerEntry{}, err
	}
	if entry.RunningBalance, err = money.FromDecimalRound(running); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// SortedUnique returns ids deduplicated in ascending order, the lock order
// used by every posting.
func SortedUnique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
