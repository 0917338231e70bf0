package journals_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

func posting(date time.Time, lines ...journals.LineInput) journals.PostingInput {
	return journals.PostingInput{
		Header: journals.Header{Date: date, Description: "test", SourceType: journals.SourceManual},
		Lines:  lines,
	}
}

var (
	day = shared.Date(2024, time.March, 15)
	dr  = ledgertest.Dr
	cr  = ledgertest.Cr
)

func TestPostBalancedEntryUpdatesLedger(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")

	entry, err := l.Journals.Post(ctx, posting(day, dr(cash, "100.00"), cr(revenue, "100.00")))
	require.NoError(t, err)

	assert.Equal(t, journals.StatusPosted, entry.Status)
	assert.Equal(t, money.MustParse("100"), entry.TotalDebit)
	assert.Equal(t, entry.TotalDebit, entry.TotalCredit)
	assert.Len(t, entry.Lines, 2)
	assert.NotNil(t, entry.PostedAt)

	assert.Equal(t, money.MustParse("100"), l.Balance(t, "1000"))
	assert.Equal(t, money.MustParse("-100"), l.Balance(t, "4000"))

	ledger, err := l.Accounts.Ledger(ctx, cash)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, entry.ID, ledger[0].JournalEntryID)
	assert.Equal(t, money.MustParse("100"), ledger[0].RunningBalance)

	events := l.Notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, entry.ID, events[0].JournalEntryID)
	assert.Equal(t, journals.SourceManual, events[0].SourceType)
}

func TestPostUnbalancedLeavesNoTrace(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	a, b := l.ID(t, "1000"), l.ID(t, "4000")

	_, err := l.Journals.Post(ctx, posting(day, dr(a, "100"), cr(b, "90")))
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	var unbalanced *shared.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	assert.Equal(t, money.MustParse("100"), unbalanced.TotalDebit)
	assert.Equal(t, money.MustParse("90"), unbalanced.TotalCredit)

	entries, err := l.Journals.List(ctx, journals.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	for _, id := range []int64{a, b} {
		ledger, err := l.Accounts.Ledger(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, ledger)
	}
	assert.Empty(t, l.Notifier.Events())
}

func TestPostRejectsMalformedLines(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")

	cases := []struct {
		name  string
		input journals.PostingInput
		want  error
	}{
		{"single line", posting(day, dr(cash, "10")), shared.ErrTooFewLines},
		{"zero amount", posting(day, dr(cash, "0"), cr(revenue, "0")), shared.ErrNonPositiveAmount},
		{"missing date", posting(time.Time{}, dr(cash, "10"), cr(revenue, "10")), shared.ErrMissingDate},
		{"bad side", posting(day, dr(cash, "10"), journals.LineInput{AccountID: revenue, Amount: money.MustParse("10"), Side: "SIDEWAYS"}), shared.ErrInvalidSide},
		{"unknown account", posting(day, dr(cash, "10"), cr(9999, "10")), shared.ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Journals.Post(ctx, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	require.NoError(t, l.Store.SetActive(ctx, l.ID(t, "6100"), false))

	_, err := l.Journals.Post(ctx, posting(day, dr(l.ID(t, "6100"), "10"), cr(l.ID(t, "1000"), "10")))
	require.ErrorIs(t, err, shared.ErrInactiveAccount)
	assert.True(t, l.Balance(t, "1000").IsZero())
}

// failingRepo fails the nth ledger append inside every transaction.
type failingRepo struct {
	journals.Repository
	failOn int
}

type failingTx struct {
	journals.TxRepository
	failOn int
	calls  int
}

var errDiskFull = errors.New("disk full")

func (r failingRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.Repository.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		return fn(ctx, &failingTx{TxRepository: tx, failOn: r.failOn})
	})
}

func (tx *failingTx) AppendLedgerEntry(ctx context.Context, in accounts.AppendInput) (accounts.LedgerEntry, error) {
	tx.calls++
	if tx.calls == tx.failOn {
		return accounts.LedgerEntry{}, errDiskFull
	}
	return tx.TxRepository.AppendLedgerEntry(ctx, in)
}

func TestPostIsAtomicWhenLedgerWriteFails(t *testing.T) {
	l := ledgertest.New(t, ledgertest.WithJournalRepository(func(inner journals.Repository) journals.Repository {
		return failingRepo{Repository: inner, failOn: 2}
	}))
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")

	_, err := l.Journals.Post(ctx, posting(day, dr(cash, "50"), cr(revenue, "50")))
	require.ErrorIs(t, err, shared.ErrStorage)
	require.ErrorIs(t, err, errDiskFull)

	entries, err := l.Journals.List(ctx, journals.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.True(t, l.Balance(t, "1000").IsZero())
	assert.True(t, l.Balance(t, "4000").IsZero())
	ledger, err := l.Accounts.Ledger(ctx, cash)
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.Empty(t, l.Notifier.Events())
}

func TestConcurrentPostingKeepsReplayConsistent(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue, expense := l.ID(t, "1000"), l.ID(t, "4000"), l.ID(t, "6000")

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := posting(day, dr(cash, "10.05"), cr(revenue, "10.05"))
			if i%2 == 1 {
				input = posting(day, dr(expense, "3.10"), cr(cash, "3.10"))
			}
			_, err := l.Journals.Post(ctx, input)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, money.MustParse("139.00"), l.Balance(t, "1000"))
	results, err := l.Accounts.VerifyAll(ctx)
	require.NoError(t, err)
	for _, v := range results {
		assert.Truef(t, v.OK(), "account %s cached %s replayed %s", v.Code, v.Cached, v.Replayed)
	}
}

func TestVoidPostedEntryCreatesReversal(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")

	entry, err := l.Journals.Post(ctx, posting(day, dr(cash, "75"), cr(revenue, "75")))
	require.NoError(t, err)

	result, err := l.Journals.Void(ctx, journals.VoidInput{EntryID: entry.ID, Reason: "duplicate"})
	require.NoError(t, err)
	require.NotNil(t, result.Reversal)

	assert.Equal(t, journals.StatusVoid, result.Original.Status)
	assert.Equal(t, result.Reversal.ID, *result.Original.ReversedByID)
	assert.Equal(t, journals.SourceReversal, result.Reversal.SourceType)
	assert.Equal(t, entry.ID, *result.Reversal.ReversalOfID)
	assert.Equal(t, entry.Date, result.Reversal.Date)
	assert.Contains(t, result.Reversal.Description, "duplicate")

	assert.True(t, l.Balance(t, "1000").IsZero())
	assert.True(t, l.Balance(t, "4000").IsZero())
	ledger, err := l.Accounts.Ledger(ctx, cash)
	require.NoError(t, err)
	assert.Len(t, ledger, 2, "ledger rows are appended, never rewritten")

	_, err = l.Journals.Void(ctx, journals.VoidInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestDraftLifecycle(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")

	draft, err := l.Journals.CreateDraft(ctx, posting(day, dr(cash, "20"), cr(revenue, "15")))
	require.NoError(t, err, "drafts may be unbalanced")
	assert.Equal(t, journals.StatusDraft, draft.Status)
	assert.True(t, l.Balance(t, "1000").IsZero())

	_, err = l.Journals.PostDraft(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	balanced, err := l.Journals.CreateDraft(ctx, posting(day, dr(cash, "20"), cr(revenue, "20")))
	require.NoError(t, err)
	posted, err := l.Journals.PostDraft(ctx, balanced.ID)
	require.NoError(t, err)
	assert.Equal(t, journals.StatusPosted, posted.Status)
	assert.Equal(t, money.MustParse("20"), posted.TotalDebit)

	_, err = l.Journals.PostDraft(ctx, balanced.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)
	assert.Equal(t, money.MustParse("20"), l.Balance(t, "1000"))

	voided, err := l.Journals.Void(ctx, journals.VoidInput{EntryID: draft.ID})
	require.NoError(t, err)
	assert.Nil(t, voided.Reversal)
	_, err = l.Journals.PostDraft(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	l := ledgertest.New(t)
	l.Notifier.Err = errors.New("broker down")
	ctx := context.Background()

	entry, err := l.Journals.Post(ctx, posting(day, dr(l.ID(t, "1000"), "5"), cr(l.ID(t, "4000"), "5")))
	require.NoError(t, err)

	stored, err := l.Journals.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, journals.StatusPosted, stored.Status)
	assert.Len(t, l.Notifier.Events(), 1)
}

func TestPostRejectsAmountsBeyondColumnRange(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")
	line := func(account int64, amount money.Amount, side shared.Side) journals.LineInput {
		return journals.LineInput{AccountID: account, Amount: amount, Side: side}
	}

	// Three int64-max debits against one credit would wrap to an apparent balance.
	_, err := l.Journals.Post(ctx, posting(day,
		line(cash, money.Amount(math.MaxInt64), shared.SideDebit),
		line(cash, money.Amount(math.MaxInt64), shared.SideDebit),
		line(cash, money.Amount(math.MaxInt64), shared.SideDebit),
		line(revenue, money.Amount(math.MaxInt64-2), shared.SideCredit),
	))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, shared.ErrAmountOutOfRange)

	// Every line in range, but the debit column overflows.
	_, err = l.Journals.Post(ctx, posting(day,
		line(cash, money.Max, shared.SideDebit),
		line(cash, money.Max, shared.SideDebit),
		line(revenue, money.Max, shared.SideCredit),
		line(revenue, money.Max, shared.SideCredit),
	))
	require.ErrorIs(t, err, shared.ErrTotalOutOfRange)

	_, err = l.Journals.CreateDraft(ctx, posting(day,
		line(cash, money.Max, shared.SideDebit),
		line(cash, money.Max, shared.SideDebit),
	))
	require.ErrorIs(t, err, shared.ErrTotalOutOfRange)

	entries, err := l.Journals.List(ctx, journals.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, money.Zero, l.Balance(t, "1000"))
}

func TestPostRejectsCachedBalanceOverflow(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash, revenue := l.ID(t, "1000"), l.ID(t, "4000")
	full := journals.PostingInput{
		Header: journals.Header{Date: day, Description: "test", SourceType: journals.SourceManual},
		Lines: []journals.LineInput{
			{AccountID: cash, Amount: money.Max, Side: shared.SideDebit},
			{AccountID: revenue, Amount: money.Max, Side: shared.SideCredit},
		},
	}

	_, err := l.Journals.Post(ctx, full)
	require.NoError(t, err)
	_, err = l.Journals.Post(ctx, full)
	require.ErrorIs(t, err, shared.ErrBalanceOutOfRange)

	assert.Equal(t, money.Max, l.Balance(t, "1000"))
	assert.Equal(t, money.Max.Neg(), l.Balance(t, "4000"))
	checks, err := l.Accounts.VerifyAll(ctx)
	require.NoError(t, err)
	for _, c := range checks {
		assert.True(t, c.OK(), "account %d", c.AccountID)
	}
}
