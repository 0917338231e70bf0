package mappings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountLookup finds accounts by chart code.
type AccountLookup interface {
	GetByCode(ctx context.Context, code string) (accounts.Account, error)
}

// Resolver turns integration roles into account ids: explicit mapping row
// first, then the default chart code, otherwise MissingAccountMappingError.
type Resolver struct {
	repo     Repository
	accounts AccountLookup
	cache    *Cache
	group    singleflight.Group
	logger   *slog.Logger
}

func NewResolver(repo Repository, lookup AccountLookup, cache *Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, accounts: lookup, cache: cache, logger: logger}
}

// Resolve returns the account id for role.
func (r *Resolver) Resolve(ctx context.Context, role string) (int64, error) {
	res, err := r.Lookup(ctx, role)
	if err != nil {
		return 0, err
	}
	return res.AccountID, nil
}

// Lookup is Resolve with provenance.
func (r *Resolver) Lookup(ctx context.Context, role string) (Resolution, error) {
	role = normalizeKey(role)
	if role == "" {
		return Resolution{}, shared.Invalid("role", "role required")
	}
	cache := r.cache
	version, err := cache.Version(ctx)
	if err != nil {
		r.logger.Warn("mapping cache version read failed", slog.String("role", role), slog.Any("error", err))
		cache = nil
	}
	if cached, ok, err := cache.Get(ctx, version, role); err != nil {
		r.logger.Warn("mapping cache read failed", slog.String("role", role), slog.Any("error", err))
	} else if ok {
		return cached, nil
	}

	// Callers on different versions must not share a load.
	v, err, _ := r.group.Do(fmt.Sprintf("%s@%d", role, version), func() (any, error) {
		res, err := r.load(ctx, role)
		if err != nil {
			return Resolution{}, err
		}
		if err := cache.Set(ctx, version, res); err != nil {
			r.logger.Warn("mapping cache write failed", slog.String("role", role), slog.Any("error", err))
		}
		return res, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return v.(Resolution), nil
}

func (r *Resolver) load(ctx context.Context, role string) (Resolution, error) {
	mapping, err := r.repo.Get(ctx, role)
	switch {
	case err == nil:
		return Resolution{Role: role, AccountID: mapping.AccountID, Source: SourceMapping}, nil
	case !errors.Is(err, shared.ErrNotFound):
		return Resolution{}, shared.WrapStorage("get account mapping", err)
	}
	code, ok := DefaultCodes[role]
	if !ok || r.accounts == nil {
		return Resolution{}, &shared.MissingAccountMappingError{Role: role}
	}
	account, err := r.accounts.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Resolution{}, &shared.MissingAccountMappingError{Role: role}
		}
		return Resolution{}, shared.WrapStorage("get default account", err)
	}
	return Resolution{Role: role, AccountID: account.ID, Source: SourceDefault, DefaultCode: code}, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
