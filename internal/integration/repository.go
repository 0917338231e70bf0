package integration

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository persists the external event inbox.
type Repository interface {
	// Record inserts evt unless its SourceRef is already known, in which case
	// the stored event is returned with created=false.
	Record(ctx context.Context, evt Event) (stored Event, created bool, err error)
	Get(ctx context.Context, id int64) (Event, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, id, journalEntryID int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, message string, at time.Time) error
}

const eventColumns = `id, event_type, source_ref, payload, status, error, attempts, journal_entry_id, received_at, processed_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		e       Event
		payload []byte
	)
	err := row.Scan(&e.ID, &e.Type, &e.SourceRef, &payload, &e.Status, &e.Error, &e.Attempts, &e.JournalEntryID, &e.ReceivedAt, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, shared.ErrEventNotFound
		}
		return Event{}, err
	}
	e.Payload = payload
	return e, nil
}

func (r *repository) Record(ctx context.Context, evt Event) (Event, bool, error) {
	stored, err := scanEvent(r.db.QueryRow(ctx, `INSERT INTO external_events (event_type, source_ref, payload, status)
VALUES ($1,$2,$3,$4)
ON CONFLICT (source_ref) DO NOTHING
RETURNING `+eventColumns, evt.Type, evt.SourceRef, []byte(evt.Payload), StatusReceived))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, shared.ErrEventNotFound) {
		return Event{}, false, err
	}
	stored, err = scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM external_events WHERE source_ref=$1`, evt.SourceRef))
	return stored, false, err
}

func (r *repository) Get(ctx context.Context, id int64) (Event, error) {
	return scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM external_events WHERE id=$1`, id))
}

func (r *repository) ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM external_events`
	var args []any
	if status != "" {
		args = append(args, status)
		query += ` WHERE status=$1`
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		args = append(args, limit)
		if status != "" {
			query += ` LIMIT $2`
		} else {
			query += ` LIMIT $1`
		}
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) MarkProcessed(ctx context.Context, id, journalEntryID int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE external_events
SET status=$2, error='', attempts=attempts+1, journal_entry_id=$3, processed_at=$4 WHERE id=$1`,
		id, StatusProcessed, journalEntryID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEventNotFound
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id int64, message string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE external_events
SET status=$2, error=$3, attempts=attempts+1, processed_at=$4 WHERE id=$1`,
		id, StatusFailed, message, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEventNotFound
	}
	return nil
}
