package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

func TestWithTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	store := New()
	cash, err := store.Accounts().Create(ctx, accounts.CreateInput{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		entry, err := tx.InsertJournalEntry(ctx, journals.NewEntry{Status: journals.StatusPosted})
		require.NoError(t, err)
		_, err = tx.AppendLedgerEntry(ctx, accounts.AppendInput{AccountID: cash.ID, Debit: money.FromMinor(500), JournalEntryID: entry.ID})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Accounts().Get(ctx, cash.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())

	entries, err := store.Accounts().ListLedgerEntries(ctx, cash.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	listed, err := store.Journals().List(ctx, journals.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestExternalSourceIsUnique(t *testing.T) {
	ctx := context.Background()
	store := New()
	insert := func() error {
		return store.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
			_, err := tx.InsertJournalEntry(ctx, journals.NewEntry{
				Header: journals.Header{SourceType: journals.SourceExternalEvent, SourceRef: "sales.invoice.created:INV-1"},
				Status: journals.StatusPosted,
			})
			return err
		})
	}
	require.NoError(t, insert())
	require.ErrorIs(t, insert(), shared.ErrSourceAlreadyLinked)
}

func TestAccountCodeIsUnique(t *testing.T) {
	ctx := context.Background()
	store := New()
	_, err := store.Accounts().Create(ctx, accounts.CreateInput{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset})
	require.NoError(t, err)
	_, err = store.Accounts().Create(ctx, accounts.CreateInput{Code: "1000", Name: "Cash again", Type: accounts.AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLockAccountsRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	store := New()
	a, err := store.Accounts().Create(ctx, accounts.CreateInput{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset})
	require.NoError(t, err)
	err = store.Accounts().WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := tx.LockAccounts(ctx, []int64{a.ID, 99})
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
