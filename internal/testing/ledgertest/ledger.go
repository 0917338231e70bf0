// Package ledgertest assembles the ledger services over the in-memory store
// for tests.
package ledgertest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	_ "github.com/odyssey-erp/odyssey-ledger/internal/testing/guard"
)

// Ledger bundles a fully wired core.
type Ledger struct {
	Store     *memory.Store
	Logger    *slog.Logger
	Notifier  *RecordingNotifier
	Accounts  *accounts.Service
	Journals  *journals.Service
	Resolver  *mappings.Resolver
	Mappings  *mappings.Service
	Vouchers  *vouchers.Service
	Recurring *recurring.Service
	Events    *integration.Service
	// Chart holds the seeded default chart keyed by code.
	Chart map[string]accounts.Account
}

// Option adjusts the wiring before services are built.
type Option func(*options)

type options struct {
	journalRepo journals.Repository
	chart       []accounts.CreateInput
}

// WithJournalRepository replaces the repository used by the posting engine,
// vouchers and integrations, e.g. with a fault-injecting decorator.
func WithJournalRepository(wrap func(journals.Repository) journals.Repository) Option {
	return func(o *options) { o.journalRepo = wrap(o.journalRepo) }
}

// WithChart seeds chart instead of accounts.DefaultChart.
func WithChart(chart []accounts.CreateInput) Option {
	return func(o *options) { o.chart = chart }
}

// New builds a ledger with the default chart seeded.
func New(t testing.TB, opts ...Option) *Ledger {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := &options{journalRepo: store.Journals(), chart: accounts.DefaultChart}
	for _, opt := range opts {
		opt(o)
	}

	l := &Ledger{Store: store, Logger: logger, Notifier: &RecordingNotifier{}}
	l.Accounts = accounts.NewService(store.Accounts(), logger)
	l.Journals = journals.NewService(o.journalRepo, l.Notifier, logger)
	l.Resolver = mappings.NewResolver(store.Mappings(), l.Accounts, nil, logger)
	l.Mappings = mappings.NewService(store.Mappings(), l.Accounts, l.Resolver, nil, logger)
	l.Vouchers = vouchers.NewService(store.Vouchers(), l.Journals, l.Resolver, logger)
	l.Recurring = recurring.NewService(store.Recurring(), l.Vouchers, nil, 0, logger)
	l.Events = integration.NewService(store.Events(), l.Journals, l.Resolver, logger)

	chart, err := l.Accounts.EnsureChart(context.Background(), o.chart)
	require.NoError(t, err)
	l.Chart = chart
	return l
}

// ID returns the id of the seeded account with code.
func (l *Ledger) ID(t testing.TB, code string) int64 {
	t.Helper()
	a, ok := l.Chart[code]
	require.Truef(t, ok, "account %s not seeded", code)
	return a.ID
}

// Balance reads the cached balance of the account with code.
func (l *Ledger) Balance(t testing.TB, code string) money.Amount {
	t.Helper()
	a, err := l.Accounts.GetAccount(context.Background(), l.ID(t, code))
	require.NoError(t, err)
	return a.Balance
}

// Dr and Cr build posting lines.
func Dr(accountID int64, amount string) journals.LineInput {
	return journals.LineInput{AccountID: accountID, Amount: money.MustParse(amount), Side: shared.SideDebit}
}

func Cr(accountID int64, amount string) journals.LineInput {
	return journals.LineInput{AccountID: accountID, Amount: money.MustParse(amount), Side: shared.SideCredit}
}

// RecordingNotifier captures journal-posted notifications. Err, when set, is
// returned from every call.
type RecordingNotifier struct {
	mu     sync.Mutex
	Err    error
	events []journals.PostedEvent
}

func (n *RecordingNotifier) JournalPosted(_ context.Context, evt journals.PostedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.Err
}

// Events returns a copy of the notifications received so far.
func (n *RecordingNotifier) Events() []journals.PostedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]journals.PostedEvent(nil), n.events...)
}
