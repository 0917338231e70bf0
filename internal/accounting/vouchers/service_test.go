package vouchers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

var day = shared.Date(2024, time.April, 2)

func line(accountID int64, amount string, side shared.Side) vouchers.LineInput {
	return vouchers.LineInput{AccountID: accountID, Amount: money.MustParse(amount), Side: side}
}

func salesVoucher(t *testing.T, l *ledgertest.Ledger, debit, credit string) vouchers.Voucher {
	t.Helper()
	v, err := l.Vouchers.Create(context.Background(), vouchers.CreateInput{
		Type:            vouchers.TypeSales,
		Date:            day,
		CounterpartyRef: "CUST-7",
		Lines: []vouchers.LineInput{
			line(l.ID(t, "1100"), debit, shared.SideDebit),
			line(l.ID(t, "4000"), credit, shared.SideCredit),
		},
	})
	require.NoError(t, err)
	return v
}

func TestCreateNumbersPerType(t *testing.T) {
	l := ledgertest.New(t)

	first := salesVoucher(t, l, "10", "10")
	second := salesVoucher(t, l, "10", "10")
	assert.Equal(t, "SV-000001", first.Number)
	assert.Equal(t, "SV-000002", second.Number)
	assert.Equal(t, vouchers.StatusDraft, first.Status)
	assert.Nil(t, first.JournalEntryID)

	receipt, err := l.Vouchers.Create(context.Background(), vouchers.CreateInput{
		Type: vouchers.TypeReceipt,
		Date: day,
		Lines: []vouchers.LineInput{
			line(l.ID(t, "1000"), "5", shared.SideDebit),
			line(l.ID(t, "1100"), "5", shared.SideCredit),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "RV-000001", receipt.Number)
}

func TestCreateValidation(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	cash := l.ID(t, "1000")

	cases := []struct {
		name  string
		input vouchers.CreateInput
		want  error
	}{
		{"unknown type", vouchers.CreateInput{Type: "BARTER", Date: day, Lines: []vouchers.LineInput{line(cash, "1", shared.SideDebit)}}, shared.ErrUnknownVoucherType},
		{"missing date", vouchers.CreateInput{Type: vouchers.TypeJournal, Lines: []vouchers.LineInput{line(cash, "1", shared.SideDebit)}}, shared.ErrMissingDate},
		{"no lines", vouchers.CreateInput{Type: vouchers.TypeJournal, Date: day}, shared.ErrNoLines},
		{"zero amount", vouchers.CreateInput{Type: vouchers.TypeJournal, Date: day, Lines: []vouchers.LineInput{line(cash, "0", shared.SideDebit)}}, shared.ErrNonPositiveAmount},
		{"journal needs account", vouchers.CreateInput{Type: vouchers.TypeJournal, Date: day, Lines: []vouchers.LineInput{{Amount: money.MustParse("1"), Side: shared.SideDebit}}}, shared.ErrMissingAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Vouchers.Create(ctx, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateResolvesConventionRoles(t *testing.T) {
	l := ledgertest.New(t)

	v, err := l.Vouchers.Create(context.Background(), vouchers.CreateInput{
		Type: vouchers.TypeSales,
		Date: day,
		Lines: []vouchers.LineInput{
			{Amount: money.MustParse("40"), Side: shared.SideDebit},
			{Amount: money.MustParse("40"), Side: shared.SideCredit},
			{Role: "tax_payable", Amount: money.MustParse("4"), Side: shared.SideCredit},
		},
	})
	require.NoError(t, err)
	require.Len(t, v.Lines, 3)
	assert.Equal(t, l.ID(t, "1100"), v.Lines[0].AccountID)
	assert.Equal(t, l.ID(t, "4000"), v.Lines[1].AccountID)
	assert.Equal(t, l.ID(t, "2100"), v.Lines[2].AccountID)
}

func TestPostCreatesLinkedEntry(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	v := salesVoucher(t, l, "250", "250")

	res, err := l.Vouchers.Post(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, vouchers.StatusPosted, res.Voucher.Status)
	require.NotNil(t, res.Voucher.JournalEntryID)
	assert.Equal(t, res.JournalEntry.ID, *res.Voucher.JournalEntryID)
	assert.Equal(t, journals.SourceVoucher, res.JournalEntry.SourceType)
	assert.Equal(t, v.ID, *res.JournalEntry.VoucherID)
	assert.Equal(t, day, res.JournalEntry.Date)

	assert.Equal(t, money.MustParse("250"), l.Balance(t, "1100"))
	assert.Len(t, l.Notifier.Events(), 1)

	_, err = l.Vouchers.Post(ctx, v.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)
	entries, err := l.Journals.List(ctx, journals.ListFilter{SourceType: journals.SourceVoucher})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, money.MustParse("250"), l.Balance(t, "1100"))
}

func TestPostRejectsUnbalancedAndEmpty(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()

	unbalanced := salesVoucher(t, l, "100", "90")
	_, err := l.Vouchers.Post(ctx, unbalanced.ID)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	stored, err := l.Vouchers.Get(ctx, unbalanced.ID)
	require.NoError(t, err)
	assert.Equal(t, vouchers.StatusDraft, stored.Status)

	emptied, err := l.Vouchers.ReplaceLines(ctx, unbalanced.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, emptied.Lines)
	_, err = l.Vouchers.Post(ctx, unbalanced.ID)
	require.ErrorIs(t, err, shared.ErrNoLines)

	fixed, err := l.Vouchers.ReplaceLines(ctx, unbalanced.ID, []vouchers.LineInput{
		line(l.ID(t, "1100"), "90", shared.SideDebit),
		line(l.ID(t, "4000"), "90", shared.SideCredit),
	})
	require.NoError(t, err)
	assert.Len(t, fixed.Lines, 2)
	_, err = l.Vouchers.Post(ctx, unbalanced.ID)
	require.NoError(t, err)

	_, err = l.Vouchers.ReplaceLines(ctx, unbalanced.ID, nil)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestVoidKeepsEntryByDefault(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	v := salesVoucher(t, l, "30", "30")
	posted, err := l.Vouchers.Post(ctx, v.ID)
	require.NoError(t, err)

	res, err := l.Vouchers.Void(ctx, v.ID, vouchers.VoidOptions{})
	require.NoError(t, err)
	assert.Equal(t, vouchers.StatusVoid, res.Voucher.Status)
	assert.Nil(t, res.Reversal)

	entry, err := l.Journals.Get(ctx, posted.JournalEntry.ID)
	require.NoError(t, err)
	assert.Equal(t, journals.StatusPosted, entry.Status)
	assert.Equal(t, money.MustParse("30"), l.Balance(t, "1100"))

	_, err = l.Vouchers.Post(ctx, v.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
	_, err = l.Vouchers.Void(ctx, v.ID, vouchers.VoidOptions{})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestVoidWithReverseNetsToZero(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	v := salesVoucher(t, l, "30", "30")
	posted, err := l.Vouchers.Post(ctx, v.ID)
	require.NoError(t, err)

	res, err := l.Vouchers.Void(ctx, v.ID, vouchers.VoidOptions{Reverse: true, Reason: "customer cancelled"})
	require.NoError(t, err)
	require.NotNil(t, res.Reversal)
	assert.Equal(t, posted.JournalEntry.ID, *res.Reversal.ReversalOfID)

	original, err := l.Journals.Get(ctx, posted.JournalEntry.ID)
	require.NoError(t, err)
	assert.Equal(t, journals.StatusVoid, original.Status)
	assert.True(t, l.Balance(t, "1100").IsZero())
	assert.True(t, l.Balance(t, "4000").IsZero())
	assert.Len(t, l.Notifier.Events(), 2)
}

func TestVoidDraft(t *testing.T) {
	l := ledgertest.New(t)
	v := salesVoucher(t, l, "1", "1")

	res, err := l.Vouchers.Void(context.Background(), v.ID, vouchers.VoidOptions{Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, vouchers.StatusVoid, res.Voucher.Status)
	assert.Nil(t, res.Reversal)
}

func TestListFilters(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	a := salesVoucher(t, l, "1", "1")
	salesVoucher(t, l, "2", "2")
	_, err := l.Vouchers.Post(ctx, a.ID)
	require.NoError(t, err)

	posted, err := l.Vouchers.List(ctx, vouchers.ListFilter{Status: vouchers.StatusPosted})
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, a.ID, posted[0].ID)

	all, err := l.Vouchers.List(ctx, vouchers.ListFilter{Type: vouchers.TypeSales})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := l.Vouchers.List(ctx, vouchers.ListFilter{Type: vouchers.TypePurchase})
	require.NoError(t, err)
	assert.Empty(t, none)
}
