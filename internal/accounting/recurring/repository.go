package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates template and run-log persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (Template, error)
	List(ctx context.Context) ([]Template, error)
	// ListDue returns active templates with NextRunDate <= asOf that have not passed their end date.
	ListDue(ctx context.Context, asOf time.Time) ([]Template, error)
	// History returns log rows newest first; limit <= 0 means all.
	History(ctx context.Context, templateID int64, limit int) ([]LogEntry, error)
	AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes template writes plus the voucher subsystem's store.
type TxRepository interface {
	vouchers.TxRepository

	InsertTemplate(ctx context.Context, t Template) (Template, error)
	GetTemplateForUpdate(ctx context.Context, id int64) (Template, error)
	UpdateTemplateSchedule(ctx context.Context, id int64, update ScheduleUpdate) error
	SetTemplateActive(ctx context.Context, id int64, active bool) error
	ReplaceTemplateLines(ctx context.Context, id int64, lines []TemplateLine) error
	// GeneratedVoucher reports the voucher already produced for (template, scheduled date).
	GeneratedVoucher(ctx context.Context, templateID int64, scheduled time.Time) (int64, bool, error)
	AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error)
}

const templateColumns = `id, name, type, frequency, day_of_month, start_date, end_date, next_run_date, last_run_date,
active, auto_post, run_count, narration, counterparty_ref, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanTemplate(row pgx.Row) (Template, error) {
	var (
		t   Template
		day *int16
	)
	err := row.Scan(&t.ID, &t.Name, &t.VoucherType, &t.Frequency, &day, &t.StartDate, &t.EndDate, &t.NextRunDate, &t.LastRunDate,
		&t.Active, &t.AutoPost, &t.RunCount, &t.Narration, &t.CounterpartyRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, shared.ErrTemplateNotFound
		}
		return Template{}, err
	}
	if day != nil {
		d := int(*day)
		t.DayOfMonth = &d
	}
	return t, nil
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTemplateLines(ctx context.Context, q rowsQuerier, templateID int64) ([]TemplateLine, error) {
	rows, err := q.Query(ctx, `SELECT account_id, amount, side, description
FROM recurring_template_lines WHERE template_id=$1 ORDER BY id ASC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []TemplateLine{}
	for rows.Next() {
		var (
			line   TemplateLine
			amount decimal.Decimal
		)
		if err := rows.Scan(&line.AccountID, &amount, &line.Side, &line.Description); err != nil {
			return nil, err
		}
		if line.Amount, err = money.FromDecimalRound(amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Template, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id=$1`, id))
	if err != nil {
		return Template{}, err
	}
	t.Lines, err = loadTemplateLines(ctx, r.db, t.ID)
	return t, err
}

func (r *repository) List(ctx context.Context) ([]Template, error) {
	return r.listTemplates(ctx, `SELECT `+templateColumns+` FROM recurring_templates ORDER BY name, id`)
}

func (r *repository) ListDue(ctx context.Context, asOf time.Time) ([]Template, error) {
	return r.listTemplates(ctx, `SELECT `+templateColumns+` FROM recurring_templates
WHERE active AND next_run_date <= $1 AND (end_date IS NULL OR next_run_date <= end_date)
ORDER BY next_run_date, id`, asOf)
}

func (r *repository) listTemplates(ctx context.Context, query string, args ...any) ([]Template, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines, err = loadTemplateLines(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *repository) History(ctx context.Context, templateID int64, limit int) ([]LogEntry, error) {
	query := `SELECT id, template_id, voucher_id, scheduled_date, generated_date, status, error, created_at
FROM recurring_log WHERE template_id=$1 ORDER BY id DESC`
	args := []any{templateID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.TemplateID, &e.VoucherID, &e.ScheduledDate, &e.GeneratedDate, &e.Outcome, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error) {
	return appendLog(ctx, r.db, entry)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendLog(ctx context.Context, q rowQuerier, entry LogEntry) (LogEntry, error) {
	err := q.QueryRow(ctx, `INSERT INTO recurring_log (template_id, voucher_id, scheduled_date, generated_date, status, error)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		entry.TemplateID, entry.VoucherID, entry.ScheduledDate, entry.GeneratedDate, entry.Outcome, entry.Error).
		Scan(&entry.ID, &entry.CreatedAt)
	return entry, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds template writes and the voucher store to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: vouchers.NewTxRepository(tx), tx: tx}
}

type txRepository struct {
	vouchers.TxRepository
	tx pgx.Tx
}

func (r *txRepository) InsertTemplate(ctx context.Context, t Template) (Template, error) {
	var day *int16
	if t.DayOfMonth != nil {
		d := int16(*t.DayOfMonth)
		day = &d
	}
	inserted, err := scanTemplate(r.tx.QueryRow(ctx, `INSERT INTO recurring_templates
(name, type, frequency, day_of_month, start_date, end_date, next_run_date, active, auto_post, narration, counterparty_ref)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+templateColumns,
		t.Name, t.VoucherType, t.Frequency, day, t.StartDate, t.EndDate, t.NextRunDate, t.Active, t.AutoPost, t.Narration, t.CounterpartyRef))
	if err != nil {
		return Template{}, err
	}
	if err := r.insertLines(ctx, inserted.ID, t.Lines); err != nil {
		return Template{}, err
	}
	inserted.Lines = t.Lines
	return inserted, nil
}

func (r *txRepository) insertLines(ctx context.Context, templateID int64, lines []TemplateLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO recurring_template_lines (template_id, account_id, amount, side, description)
VALUES ($1,$2,$3,$4,$5)`, templateID, line.AccountID, line.Amount.Decimal(), line.Side, line.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetTemplateForUpdate(ctx context.Context, id int64) (Template, error) {
	t, err := scanTemplate(r.tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Template{}, err
	}
	t.Lines, err = loadTemplateLines(ctx, r.tx, t.ID)
	return t, err
}

func (r *txRepository) UpdateTemplateSchedule(ctx context.Context, id int64, update ScheduleUpdate) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_templates
SET next_run_date=$2, last_run_date=$3, run_count=$4, updated_at=NOW() WHERE id=$1`,
		id, update.NextRunDate, update.LastRunDate, update.RunCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrTemplateNotFound
	}
	return nil
}

func (r *txRepository) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_templates SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrTemplateNotFound
	}
	return nil
}

func (r *txRepository) ReplaceTemplateLines(ctx context.Context, id int64, lines []TemplateLine) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM recurring_template_lines WHERE template_id=$1`, id); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `UPDATE recurring_templates SET updated_at=NOW() WHERE id=$1`, id); err != nil {
		return err
	}
	return r.insertLines(ctx, id, lines)
}

func (r *txRepository) GeneratedVoucher(ctx context.Context, templateID int64, scheduled time.Time) (int64, bool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM vouchers WHERE recurring_template_id=$1 AND scheduled_for=$2`, templateID, scheduled).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (r *txRepository) AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error) {
	return appendLog(ctx, r.tx, entry)
}
