package mappings_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

type countingLookup struct {
	inner mappings.AccountLookup
	calls atomic.Int32
}

func (c *countingLookup) GetByCode(ctx context.Context, code string) (accounts.Account, error) {
	c.calls.Add(1)
	return c.inner.GetByCode(ctx, code)
}

// remapDuringLoad runs hook once, after the resolver has read the mapping
// table and before it reads the default account.
type remapDuringLoad struct {
	inner mappings.AccountLookup
	hook  func()
	once  sync.Once
}

func (r *remapDuringLoad) GetByCode(ctx context.Context, code string) (accounts.Account, error) {
	r.once.Do(r.hook)
	return r.inner.GetByCode(ctx, code)
}

type fixture struct {
	ledger   *ledgertest.Ledger
	redis    *miniredis.Miniredis
	lookup   *countingLookup
	resolver *mappings.Resolver
	service  *mappings.Service
}

func newFixture(t *testing.T, opts ...ledgertest.Option) fixture {
	t.Helper()
	l := ledgertest.New(t, opts...)
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := mappings.NewCache(client, time.Hour)
	lookup := &countingLookup{inner: l.Accounts}
	resolver := mappings.NewResolver(l.Store.Mappings(), lookup, cache, l.Logger)
	return fixture{
		ledger:   l,
		redis:    srv,
		lookup:   lookup,
		resolver: resolver,
		service:  mappings.NewService(l.Store.Mappings(), l.Accounts, resolver, cache, l.Logger),
	}
}

func TestResolveFallsBackToDefaultCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.resolver.Lookup(ctx, " Cash ")
	require.NoError(t, err)
	assert.Equal(t, "cash", res.Role)
	assert.Equal(t, f.ledger.ID(t, "1000"), res.AccountID)
	assert.Equal(t, mappings.SourceDefault, res.Source)
	assert.Equal(t, "1000", res.DefaultCode)

	id, err := f.resolver.Resolve(ctx, "cash")
	require.NoError(t, err)
	assert.Equal(t, res.AccountID, id)
	assert.EqualValues(t, 1, f.lookup.calls.Load(), "second resolve served from cache")
}

func TestUpsertOverridesDefaultAndBumpsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.ledger.ID(t, "1010")

	_, err := f.resolver.Resolve(ctx, "cash")
	require.NoError(t, err)
	before, err := f.redis.Get("ledger:mappings:version")
	require.NoError(t, err)

	m, err := f.service.Upsert(ctx, "CASH", bank)
	require.NoError(t, err)
	assert.Equal(t, "cash", m.Key)
	after, err := f.redis.Get("ledger:mappings:version")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	res, err := f.resolver.Lookup(ctx, "cash")
	require.NoError(t, err)
	assert.Equal(t, bank, res.AccountID)
	assert.Equal(t, mappings.SourceMapping, res.Source)

	require.NoError(t, f.service.Delete(ctx, "cash"))
	res, err = f.resolver.Lookup(ctx, "cash")
	require.NoError(t, err)
	assert.Equal(t, f.ledger.ID(t, "1000"), res.AccountID)

	err = f.service.Delete(ctx, "cash")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpsertValidatesTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Upsert(ctx, "cash", 9999)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	rent := f.ledger.ID(t, "6100")
	require.NoError(t, f.ledger.Store.SetActive(ctx, rent, false))
	_, err = f.service.Upsert(ctx, "cash", rent)
	require.ErrorIs(t, err, shared.ErrInactiveAccount)

	_, err = f.service.Upsert(ctx, "  ", f.ledger.ID(t, "1000"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveMissingMapping(t *testing.T) {
	f := newFixture(t, ledgertest.WithChart([]accounts.CreateInput{
		{Code: "4000", Name: "Sales Revenue", Type: accounts.AccountTypeRevenue},
	}))
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "cash")
	require.ErrorIs(t, err, shared.ErrMissingMapping)
	var missing *shared.MissingAccountMappingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "cash", missing.Role)

	_, err = f.resolver.Resolve(ctx, "petty_cash")
	require.ErrorIs(t, err, shared.ErrMissingMapping)

	resolved, unresolved, err := f.service.Effective(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, mappings.RoleSalesRevenue, resolved[0].Role)
	assert.Contains(t, unresolved, mappings.RoleCash)
	assert.NotContains(t, unresolved, mappings.RoleSalesRevenue)
}

func TestConcurrentResolveSharesLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	want := f.ledger.ID(t, "1100")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.resolver.Resolve(ctx, mappings.RoleAccountsReceivable)
			assert.NoError(t, err)
			assert.Equal(t, want, id)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, f.lookup.calls.Load(), int32(16))
	assert.GreaterOrEqual(t, f.lookup.calls.Load(), int32(1))
}

func TestNilCacheResolver(t *testing.T) {
	l := ledgertest.New(t)
	id, err := l.Resolver.Resolve(context.Background(), mappings.RoleInventory)
	require.NoError(t, err)
	assert.Equal(t, l.ID(t, "1300"), id)
}

func TestRemapDuringLoadDoesNotPinStaleResolution(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := mappings.NewCache(client, time.Hour)
	lookup := &remapDuringLoad{inner: l.Accounts}
	resolver := mappings.NewResolver(l.Store.Mappings(), lookup, cache, l.Logger)
	service := mappings.NewService(l.Store.Mappings(), l.Accounts, resolver, cache, l.Logger)
	bank := l.ID(t, "1010")
	lookup.hook = func() {
		_, err := service.Upsert(ctx, mappings.RoleCash, bank)
		require.NoError(t, err)
	}

	// The in-flight load already saw the table without the mapping.
	res, err := resolver.Lookup(ctx, mappings.RoleCash)
	require.NoError(t, err)
	assert.Equal(t, l.ID(t, "1000"), res.AccountID)

	res, err = resolver.Lookup(ctx, mappings.RoleCash)
	require.NoError(t, err)
	assert.Equal(t, bank, res.AccountID)
	assert.Equal(t, mappings.SourceMapping, res.Source)
}

func TestBumpAdvancesVersion(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := mappings.NewCache(client, time.Hour)
	ctx := context.Background()

	before, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	var nilCache *mappings.Cache
	require.NoError(t, nilCache.Bump(ctx))
	ver, err := nilCache.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, ver)
}
