package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository persists explicit role mappings.
type Repository interface {
	Get(ctx context.Context, key string) (AccountMapping, error)
	List(ctx context.Context) ([]AccountMapping, error)
	Upsert(ctx context.Context, key string, accountID int64) (AccountMapping, error)
	Delete(ctx context.Context, key string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, key string) (AccountMapping, error) {
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT key, account_id, created_at, updated_at FROM account_mappings WHERE key=$1`, key).
		Scan(&mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func (r *repository) List(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT key, account_id, created_at, updated_at FROM account_mappings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, key string, accountID int64) (AccountMapping, error) {
	var m AccountMapping
	err := r.db.QueryRow(ctx, `INSERT INTO account_mappings (key, account_id) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()
RETURNING key, account_id, created_at, updated_at`, key, accountID).
		Scan(&m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *repository) Delete(ctx context.Context, key string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM account_mappings WHERE key=$1`, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrMappingNotFound
	}
	return nil
}
