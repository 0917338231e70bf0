package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

type staticResolver map[string]int64

func (r staticResolver) Resolve(_ context.Context, role string) (int64, error) {
	id, ok := r[role]
	if !ok {
		return 0, &shared.MissingAccountMappingError{Role: role}
	}
	return id, nil
}

var roles = staticResolver{
	mappings.RoleCash:                     1,
	mappings.RoleBank:                     2,
	mappings.RoleAccountsReceivable:       3,
	mappings.RoleTaxReceivable:            4,
	mappings.RoleInventory:                5,
	mappings.RoleAccountsPayable:          6,
	mappings.RoleTaxPayable:               7,
	mappings.RoleGoodsReceivedNotInvoiced: 8,
	mappings.RoleSalesRevenue:             9,
	mappings.RoleCostOfGoodsSold:          10,
	mappings.RolePurchases:                11,
	mappings.RoleInventoryGain:            12,
	mappings.RoleInventoryLoss:            13,
}

type posting struct {
	account int64
	side    shared.Side
	amount  string
}

func flatten(lines []journals.LineInput) []posting {
	out := make([]posting, 0, len(lines))
	for _, l := range lines {
		out = append(out, posting{account: l.AccountID, side: l.Side, amount: l.Amount.String()})
	}
	return out
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name    string
		typ     EventType
		payload string
		want    []posting
	}{
		{
			name:    "sales invoice",
			typ:     EventSalesInvoiceCreated,
			payload: `{"number":"INV-1","date":"2024-05-01","subtotal":"100.00","tax":"11.00"}`,
			want:    []posting{{3, shared.SideDebit, "111.00"}, {9, shared.SideCredit, "100.00"}, {7, shared.SideCredit, "11.00"}},
		},
		{
			name:    "sales payment by bank",
			typ:     EventSalesPaymentReceived,
			payload: `{"number":"RCPT-1","date":"2024-05-02","amount":50,"method":"bank"}`,
			want:    []posting{{2, shared.SideDebit, "50.00"}, {3, shared.SideCredit, "50.00"}},
		},
		{
			name:    "pos sale with cost",
			typ:     EventPOSSaleCompleted,
			payload: `{"number":"POS-9","date":"2024-05-03","subtotal":"20","tax":"2","total":"22","cost":"12.50"}`,
			want: []posting{
				{1, shared.SideDebit, "22.00"}, {9, shared.SideCredit, "20.00"}, {7, shared.SideCredit, "2.00"},
				{10, shared.SideDebit, "12.50"}, {5, shared.SideCredit, "12.50"},
			},
		},
		{
			name:    "purchase bill matched to receipt",
			typ:     EventPurchaseBillCreated,
			payload: `{"number":"BILL-3","date":"2024-05-04","grn_id":7,"subtotal":"300","tax":"0"}`,
			want:    []posting{{5, shared.SideDebit, "300.00"}, {6, shared.SideCredit, "300.00"}},
		},
		{
			name:    "purchase bill without receipt",
			typ:     EventPurchaseBillCreated,
			payload: `{"number":"BILL-4","date":"2024-05-04","subtotal":"300","tax":"30"}`,
			want:    []posting{{11, shared.SideDebit, "300.00"}, {4, shared.SideDebit, "30.00"}, {6, shared.SideCredit, "330.00"}},
		},
		{
			name:    "supplier payment in cash",
			typ:     EventPurchasePaymentMade,
			payload: `{"number":"PAY-1","date":"2024-05-05","amount":"330"}`,
			want:    []posting{{6, shared.SideDebit, "330.00"}, {1, shared.SideCredit, "330.00"}},
		},
		{
			name:    "inventory loss",
			typ:     EventInventoryAdjustmentPosted,
			payload: `{"code":"ADJ-1","date":"2024-05-06","product_id":4,"qty":"-3","unit_cost":"2.25"}`,
			want:    []posting{{13, shared.SideDebit, "6.75"}, {5, shared.SideCredit, "6.75"}},
		},
		{
			name:    "inventory gain",
			typ:     EventInventoryAdjustmentPosted,
			payload: `{"code":"ADJ-2","date":"2024-05-06","product_id":4,"qty":"1.5","unit_cost":"3"}`,
			want:    []posting{{5, shared.SideDebit, "4.50"}, {12, shared.SideCredit, "4.50"}},
		},
		{
			name:    "goods receipt",
			typ:     EventGRNPosted,
			payload: `{"number":"GRN-1","date":"2024-05-07","lines":[{"product_id":1,"qty":"2","unit_cost":"10"},{"product_id":2,"qty":"0.5","unit_cost":"3.33"}]}`,
			want:    []posting{{5, shared.SideDebit, "21.66"}, {8, shared.SideCredit, "21.66"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := Translate(context.Background(), roles, Event{Type: tc.typ, Payload: json.RawMessage(tc.payload)})
			require.NoError(t, err)
			assert.Equal(t, tc.want, flatten(tr.Lines))
			assert.False(t, tr.Date.IsZero())
			assert.NotEmpty(t, tr.Description)
			require.NoError(t, journals.CheckBalance(tr.Lines))
		})
	}
}

func TestTranslateRejects(t *testing.T) {
	cases := []struct {
		name     string
		typ      EventType
		payload  string
		resolver RoleResolver
		want     error
	}{
		{"unknown type", "sales.quote.created", `{}`, roles, shared.ErrUnknownEventType},
		{"bad json", EventSalesInvoiceCreated, `{"number":`, roles, shared.ErrValidation},
		{"missing number", EventSalesInvoiceCreated, `{"date":"2024-05-01","subtotal":"1"}`, roles, shared.ErrValidation},
		{"bad date", EventSalesInvoiceCreated, `{"number":"X","date":"01/05/2024","subtotal":"1"}`, roles, shared.ErrValidation},
		{"zero adjustment", EventInventoryAdjustmentPosted, `{"code":"A","date":"2024-05-06","product_id":4,"qty":"0","unit_cost":"3"}`, roles, shared.ErrValidation},
		{"unmapped role", EventSalesPaymentReceived, `{"number":"R","date":"2024-05-02","amount":"5"}`, staticResolver{mappings.RoleAccountsReceivable: 3}, shared.ErrMissingMapping},
		{"extended cost beyond money range", EventGRNPosted, `{"number":"G","date":"2024-05-07","lines":[{"product_id":1,"qty":"1000000","unit_cost":"99999999999999"}]}`, roles, shared.ErrAmountOutOfRange},
		{"receipt total beyond money range", EventGRNPosted, `{"number":"G","date":"2024-05-07","lines":[{"product_id":1,"qty":"1","unit_cost":"6000000000000000"},{"product_id":2,"qty":"1","unit_cost":"6000000000000000"}]}`, roles, shared.ErrTotalOutOfRange},
		{"amount beyond money range", EventSalesPaymentReceived, `{"number":"R","date":"2024-05-02","amount":"92233720368547758.07"}`, roles, shared.ErrValidation},
		{"total disagrees with parts", EventSalesInvoiceCreated, `{"number":"X","date":"2024-05-01","subtotal":"100","tax":"10","total":"105"}`, roles, shared.ErrUnbalanced},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Translate(context.Background(), tc.resolver, Event{Type: tc.typ, Payload: json.RawMessage(tc.payload)})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestExtendRoundsToCent(t *testing.T) {
	tr, err := Translate(context.Background(), roles, Event{
		Type:    EventInventoryAdjustmentPosted,
		Payload: json.RawMessage(`{"code":"A","date":"2024-05-06","product_id":4,"qty":"0.333","unit_cost":"10"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("3.33"), tr.Lines[0].Amount)
}
