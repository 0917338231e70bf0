package mappings

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountGetter validates mapping targets.
type AccountGetter interface {
	GetAccount(ctx context.Context, id int64) (accounts.Account, error)
}

// Service maintains the mapping table.
type Service struct {
	repo     Repository
	accounts AccountGetter
	resolver *Resolver
	cache    *Cache
	logger   *slog.Logger
}

func NewService(repo Repository, accountSvc AccountGetter, resolver *Resolver, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accountSvc, resolver: resolver, cache: cache, logger: logger}
}

// List returns explicit mappings.
func (s *Service) List(ctx context.Context) ([]AccountMapping, error) {
	out, err := s.repo.List(ctx)
	return out, shared.WrapStorage("list account mappings", err)
}

// Effective resolves every known role, reporting roles that cannot be resolved.
func (s *Service) Effective(ctx context.Context) ([]Resolution, []string, error) {
	roles := make(map[string]struct{}, len(DefaultCodes))
	for role := range DefaultCodes {
		roles[role] = struct{}{}
	}
	explicit, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range explicit {
		roles[m.Key] = struct{}{}
	}
	keys := make([]string, 0, len(roles))
	for role := range roles {
		keys = append(keys, role)
	}
	sort.Strings(keys)

	var (
		resolved []Resolution
		missing  []string
	)
	for _, role := range keys {
		res, err := s.resolver.Lookup(ctx, role)
		if err != nil {
			if errors.Is(err, shared.ErrMissingMapping) {
				missing = append(missing, role)
				continue
			}
			return nil, nil, err
		}
		resolved = append(resolved, res)
	}
	return resolved, missing, nil
}

// Upsert points key at accountID. The target must exist and be active.
func (s *Service) Upsert(ctx context.Context, key string, accountID int64) (AccountMapping, error) {
	key = normalizeKey(key)
	if key == "" {
		return AccountMapping{}, shared.Invalid("key", "key required")
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return AccountMapping{}, err
	}
	if !account.IsActive {
		return AccountMapping{}, shared.ErrInactiveAccount
	}
	m, err := s.repo.Upsert(ctx, key, accountID)
	if err != nil {
		return AccountMapping{}, shared.WrapStorage("upsert account mapping", err)
	}
	s.invalidate(ctx)
	s.logger.Info("account mapping updated", slog.String("key", key), slog.Int64("account_id", accountID))
	return m, nil
}

// Delete removes an explicit mapping; the role falls back to its default code.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, normalizeKey(key)); err != nil {
		return shared.WrapStorage("delete account mapping", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("mapping cache bump failed", slog.Any("error", err))
	}
}
