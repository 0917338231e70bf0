package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. It embeds the
// ledger store so header, lines, ledger entries and balances share one unit of work.
type TxRepository interface {
	accounts.TxRepository

	InsertJournalEntry(ctx context.Context, in NewEntry) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	GetJournalForUpdate(ctx context.Context, entryID int64) (JournalEntry, error)
	UpdateJournalStatus(ctx context.Context, entryID int64, update StatusUpdate) error
}

const uqExternalSource = "uq_journal_external_source"

const entryColumns = `id, number, date, description, source_type, source_ref, status, total_debit, total_credit,
voucher_id, reversal_of_id, reversed_by_id, posted_at, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e             JournalEntry
		debit, credit decimal.Decimal
	)
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &e.SourceType, &e.SourceRef, &e.Status, &debit, &credit,
		&e.VoucherID, &e.ReversalOfID, &e.ReversedByID, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	if e.TotalDebit, err = money.FromDecimalRound(debit); err != nil {
		return JournalEntry{}, err
	}
	if e.TotalCredit, err = money.FromDecimalRound(credit); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntryWithLines(ctx context.Context, q querier, id int64, lock bool) (JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRow(ctx, query, id))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description, created_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line          JournalLine
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&line.ID, &line.JournalEntryID, &line.AccountID, &debit, &credit, &line.Description, &line.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		if line.Debit, err = money.FromDecimalRound(debit); err != nil {
			return JournalEntry{}, err
		}
		if line.Credit, err = money.FromDecimalRound(credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.db, id, false)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		where = append(where, fmt.Sprintf("source_type=$%d", len(args)))
	}
	if filter.SourceRef != "" {
		args = append(args, filter.SourceRef)
		where = append(where, fmt.Sprintf("source_ref=$%d", len(args)))
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY number DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds journal writes, and the ledger store, to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: accounts.NewTxRepository(tx), tx: tx}
}

type txRepository struct {
	accounts.TxRepository
	tx pgx.Tx
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in NewEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(date, description, source_type, source_ref, status, total_debit, total_credit, voucher_id, reversal_of_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+entryColumns,
		in.Date, in.Description, in.SourceType, in.SourceRef, in.Status,
		in.TotalDebit.Decimal(), in.TotalCredit.Decimal(), in.VoucherID, in.ReversalOfID, in.PostedAt)
	entry, err := scanEntry(row)
	if err != nil {
		if db.IsUniqueViolation(err, uqExternalSource) {
			return JournalEntry{}, shared.ErrSourceAlreadyLinked
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		jl := JournalLine{
			JournalEntryID: entryID,
			AccountID:      line.AccountID,
			Debit:          line.Debit(),
			Credit:         line.Credit(),
			Description:    line.Description,
		}
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, entryID, line.AccountID, jl.Debit.Decimal(), jl.Credit.Decimal(), line.Description).
			Scan(&jl.ID, &jl.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, jl)
	}
	return out, nil
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.tx, entryID, true)
}

func (r *txRepository) UpdateJournalStatus(ctx context.Context, entryID int64, update StatusUpdate) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET status=$2,
    posted_at=COALESCE($3, posted_at),
    reversed_by_id=COALESCE($4, reversed_by_id),
    total_debit=CASE WHEN $2='POSTED' THEN (SELECT COALESCE(SUM(debit),0) FROM journal_lines WHERE entry_id=$1) ELSE total_debit END,
    total_credit=CASE WHEN $2='POSTED' THEN (SELECT COALESCE(SUM(credit),0) FROM journal_lines WHERE entry_id=$1) ELSE total_credit END,
    updated_at=NOW()
WHERE id=$1`, entryID, update.Status, update.PostedAt, update.ReversedByID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}
