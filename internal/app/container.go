package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

// repositories is one storage backend's view of every module.
type repositories struct {
	accounts  accounts.Repository
	journals  journals.Repository
	vouchers  vouchers.Repository
	recurring recurring.Repository
	mappings  mappings.Repository
	events    integration.Repository
}

// Ledger is the wired ledger core shared by the API, the worker and the CLI.
type Ledger struct {
	Accounts  *accounts.Service
	Journals  *journals.Service
	Resolver  *mappings.Resolver
	Mappings  *mappings.Service
	Vouchers  *vouchers.Service
	Recurring *recurring.Service
	Events    *integration.Service
	Reports   *reports.Service

	Pool  *pgxpool.Pool
	Redis *redis.Client

	closers []func()
}

// BuildOptions carries collaborators owned by the calling binary.
type BuildOptions struct {
	// Notifier receives journal-posted notifications; nil disables them.
	Notifier journals.Notifier
}

// BuildLedger connects the configured storage and Redis and wires the
// services. In memory mode the default chart is seeded and Redis is optional.
func BuildLedger(ctx context.Context, cfg *Config, logger *slog.Logger, opts BuildOptions) (*Ledger, error) {
	l := &Ledger{}

	var repos repositories
	switch cfg.StorageDriver {
	case StorageMemory:
		store := memory.New()
		repos = repositories{
			accounts:  store.Accounts(),
			journals:  store.Journals(),
			vouchers:  store.Vouchers(),
			recurring: store.Recurring(),
			mappings:  store.Mappings(),
			events:    store.Events(),
		}
		logger.Warn("using in-memory storage, data is lost on exit")
	default:
		if cfg.DBAutoMigrate {
			if err := db.Migrate(cfg.PGDSN, logger); err != nil {
				return nil, err
			}
		}
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		l.Pool = pool
		l.closers = append(l.closers, pool.Close)
		repos = repositories{
			accounts:  accounts.NewRepository(pool),
			journals:  journals.NewRepository(pool),
			vouchers:  vouchers.NewRepository(pool),
			recurring: recurring.NewRepository(pool),
			mappings:  mappings.NewRepository(pool),
			events:    integration.NewRepository(pool),
		}
	}

	var (
		mappingCache *mappings.Cache
		locker       recurring.Locker
	)
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, running without mapping cache and tick lock", slog.Any("error", err))
		} else {
			l.Redis = client
			l.closers = append(l.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
			mappingCache = mappings.NewCache(client, cfg.MappingCacheTTL)
			locker = locks.NewRedisLocker(client)
		}
	}

	l.Accounts = accounts.NewService(repos.accounts, logger)
	l.Journals = journals.NewService(repos.journals, opts.Notifier, logger)
	l.Resolver = mappings.NewResolver(repos.mappings, l.Accounts, mappingCache, logger)
	l.Mappings = mappings.NewService(repos.mappings, l.Accounts, l.Resolver, mappingCache, logger)
	l.Vouchers = vouchers.NewService(repos.vouchers, l.Journals, l.Resolver, logger)
	l.Recurring = recurring.NewService(repos.recurring, l.Vouchers, locker, cfg.RecurringLockTTL, logger)
	l.Events = integration.NewService(repos.events, l.Journals, l.Resolver, logger)
	l.Reports = reports.NewService(l.Accounts)

	if cfg.StorageDriver == StorageMemory {
		if _, err := l.Accounts.EnsureChart(ctx, accounts.DefaultChart); err != nil {
			l.Close()
			return nil, fmt.Errorf("seed chart: %w", err)
		}
	}
	return l, nil
}

// HealthChecks returns the dependency probes for /healthz.
func (l *Ledger) HealthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{}
	if l.Pool != nil {
		checks["postgres"] = l.Pool.Ping
	}
	if l.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return l.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (l *Ledger) Close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
	l.closers = nil
}
