package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates voucher persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (Voucher, error)
	List(ctx context.Context, filter ListFilter) ([]Voucher, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes voucher writes plus the posting engine's transactional store.
type TxRepository interface {
	journals.TxRepository

	NextVoucherSequence(ctx context.Context, t Type) (int64, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error)
	ReplaceVoucherLines(ctx context.Context, id int64, lines []Line) ([]Line, error)
	UpdateVoucherStatus(ctx context.Context, id int64, status Status, journalEntryID *int64) error
}

const uqTemplateRun = "uq_vouchers_template_run"

const voucherColumns = `id, number, type, date, counterparty_ref, narration, status, journal_entry_id,
recurring_template_id, scheduled_for, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.Number, &v.Type, &v.Date, &v.CounterpartyRef, &v.Narration, &v.Status,
		&v.JournalEntryID, &v.RecurringTemplateID, &v.ScheduledFor, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, shared.ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func loadLines(ctx context.Context, q querier, voucherID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, voucher_id, account_id, amount, side, description
FROM voucher_lines WHERE voucher_id=$1 ORDER BY id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var (
			line   Line
			amount decimal.Decimal
		)
		if err := rows.Scan(&line.ID, &line.VoucherID, &line.AccountID, &amount, &line.Side, &line.Description); err != nil {
			return nil, err
		}
		if line.Amount, err = money.FromDecimalRound(amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func getVoucher(ctx context.Context, q querier, id int64, lock bool) (Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	v, err := scanVoucher(q.QueryRow(ctx, query, id))
	if err != nil {
		return Voucher{}, err
	}
	v.Lines, err = loadLines(ctx, q, v.ID)
	if err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Voucher, error) {
	return getVoucher(ctx, r.db, id, false)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	query := `SELECT ` + voucherColumns + ` FROM vouchers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds voucher writes and the posting store to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: journals.NewTxRepository(tx), tx: tx}
}

type txRepository struct {
	journals.TxRepository
	tx pgx.Tx
}

func (r *txRepository) NextVoucherSequence(ctx context.Context, t Type) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_sequences (type, last_value) VALUES ($1, 1)
ON CONFLICT (type) DO UPDATE SET last_value = voucher_sequences.last_value + 1
RETURNING last_value`, t).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO vouchers
(number, type, date, counterparty_ref, narration, status, recurring_template_id, scheduled_for)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+voucherColumns,
		v.Number, v.Type, v.Date, v.CounterpartyRef, v.Narration, v.Status, v.RecurringTemplateID, v.ScheduledFor)
	inserted, err := scanVoucher(row)
	if err != nil {
		if db.IsUniqueViolation(err, uqTemplateRun) {
			return Voucher{}, shared.ErrDuplicateRun
		}
		return Voucher{}, err
	}
	inserted.Lines, err = r.insertLines(ctx, inserted.ID, v.Lines)
	if err != nil {
		return Voucher{}, err
	}
	return inserted, nil
}

func (r *txRepository) insertLines(ctx context.Context, voucherID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		line.VoucherID = voucherID
		err := r.tx.QueryRow(ctx, `INSERT INTO voucher_lines (voucher_id, account_id, amount, side, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, voucherID, line.AccountID, line.Amount.Decimal(), line.Side, line.Description).
			Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	return getVoucher(ctx, r.tx, id, true)
}

func (r *txRepository) ReplaceVoucherLines(ctx context.Context, id int64, lines []Line) ([]Line, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM voucher_lines WHERE voucher_id=$1`, id); err != nil {
		return nil, err
	}
	if _, err := r.tx.Exec(ctx, `UPDATE vouchers SET updated_at=NOW() WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return r.insertLines(ctx, id, lines)
}

func (r *txRepository) UpdateVoucherStatus(ctx context.Context, id int64, status Status, journalEntryID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers
SET status=$2, journal_entry_id=COALESCE($3, journal_entry_id), updated_at=NOW()
WHERE id=$1`, id, status, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}
