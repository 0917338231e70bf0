package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// RoleResolver maps integration roles to ledger accounts.
type RoleResolver interface {
	Resolve(ctx context.Context, role string) (int64, error)
}

// Translation is the balanced line set derived from an event.
type Translation struct {
	Date        time.Time
	Description string
	Lines       []journals.LineInput
}

// SalesInvoiceCreated is the payload of sales.invoice.created.
type SalesInvoiceCreated struct {
	Number   string       `json:"number" validate:"required,max=64"`
	Date     string       `json:"date" validate:"required,datetime=2006-01-02"`
	Customer string       `json:"customer" validate:"max=120"`
	Subtotal money.Amount `json:"subtotal" validate:"gt=0"`
	Tax      money.Amount `json:"tax" validate:"gte=0"`
	Total    money.Amount `json:"total" validate:"gte=0"`
}

// PaymentEvent is the payload of sales.payment.received and purchase.payment.made.
type PaymentEvent struct {
	Number string       `json:"number" validate:"required,max=64"`
	Date   string       `json:"date" validate:"required,datetime=2006-01-02"`
	Amount money.Amount `json:"amount" validate:"gt=0"`
	Method string       `json:"method" validate:"omitempty,oneof=cash bank"`
}

// POSSaleCompleted is the payload of retail.pos.sale.completed.
type POSSaleCompleted struct {
	Number   string       `json:"number" validate:"required,max=64"`
	Date     string       `json:"date" validate:"required,datetime=2006-01-02"`
	Subtotal money.Amount `json:"subtotal" validate:"gt=0"`
	Tax      money.Amount `json:"tax" validate:"gte=0"`
	Total    money.Amount `json:"total" validate:"gte=0"`
	Cost     money.Amount `json:"cost" validate:"gte=0"`
}

// PurchaseBillCreated is the payload of purchase.bill.created. Bills matched
// to a goods receipt debit inventory; others debit purchases.
type PurchaseBillCreated struct {
	Number   string       `json:"number" validate:"required,max=64"`
	Date     string       `json:"date" validate:"required,datetime=2006-01-02"`
	Supplier string       `json:"supplier" validate:"max=120"`
	GRNID    int64        `json:"grn_id" validate:"gte=0"`
	Subtotal money.Amount `json:"subtotal" validate:"gt=0"`
	Tax      money.Amount `json:"tax" validate:"gte=0"`
	Total    money.Amount `json:"total" validate:"gte=0"`
}

// InventoryAdjustmentPosted is the payload of inventory.adjustment.posted.
// Positive quantities are gains.
type InventoryAdjustmentPosted struct {
	Code      string          `json:"code" validate:"required,max=64"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  money.Amount    `json:"unit_cost" validate:"gt=0"`
}

// GRNPosted is the payload of procurement.grn.posted.
type GRNPosted struct {
	Number string    `json:"number" validate:"required,max=64"`
	Date   string    `json:"date" validate:"required,datetime=2006-01-02"`
	Lines  []GRNLine `json:"lines" validate:"required,min=1,dive"`
}

type GRNLine struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  money.Amount    `json:"unit_cost" validate:"gte=0"`
}

type translator func(ctx context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error)

var translators = map[EventType]translator{
	EventSalesInvoiceCreated:       translateSalesInvoice,
	EventSalesPaymentReceived:      translateSalesPayment,
	EventPOSSaleCompleted:          translatePOSSale,
	EventPurchaseBillCreated:       translatePurchaseBill,
	EventPurchasePaymentMade:       translatePurchasePayment,
	EventInventoryAdjustmentPosted: translateInventoryAdjustment,
	EventGRNPosted:                 translateGRN,
}

// Translate resolves the accounts for evt and returns its balanced line set.
// Roles are resolved eagerly so a missing mapping fails the whole event.
func Translate(ctx context.Context, resolver RoleResolver, evt Event) (Translation, error) {
	fn, ok := translators[evt.Type]
	if !ok {
		return Translation{}, shared.ErrUnknownEventType
	}
	b := &lineBuilder{ctx: ctx, resolver: resolver}
	tr, err := fn(ctx, b, evt.Payload)
	if err != nil {
		return Translation{}, err
	}
	if b.err != nil {
		return Translation{}, b.err
	}
	tr.Lines = b.lines
	if len(tr.Lines) < 2 {
		return Translation{}, shared.Invalid("payload", "event %s carries no postable amount", evt.Type)
	}
	if err := journals.CheckBalance(tr.Lines); err != nil {
		return Translation{}, err
	}
	return tr, nil
}

func decode[T any](raw json.RawMessage) (T, time.Time, error) {
	var payload T
	if len(raw) == 0 {
		return payload, time.Time{}, shared.Invalid("payload", "payload required")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, time.Time{}, shared.Invalid("payload", "%v", err)
	}
	if err := httpx.Validate(payload); err != nil {
		return payload, time.Time{}, shared.Invalid("payload", "%v", err)
	}
	date, err := shared.ParseDate(dateOf(payload))
	if err != nil {
		return payload, time.Time{}, err
	}
	return payload, date, nil
}

func dateOf(payload any) string {
	switch p := payload.(type) {
	case SalesInvoiceCreated:
		return p.Date
	case PaymentEvent:
		return p.Date
	case POSSaleCompleted:
		return p.Date
	case PurchaseBillCreated:
		return p.Date
	case InventoryAdjustmentPosted:
		return p.Date
	case GRNPosted:
		return p.Date
	}
	return ""
}

func cashRole(method string) string {
	if method == "bank" {
		return mappings.RoleBank
	}
	return mappings.RoleCash
}

func translateSalesInvoice(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[SalesInvoiceCreated](raw)
	if err != nil {
		return Translation{}, err
	}
	total, err := totalOrSum(p.Total, p.Subtotal, p.Tax)
	if err != nil {
		return Translation{}, err
	}
	b.debit(mappings.RoleAccountsReceivable, total, "Invoice "+p.Number)
	b.credit(mappings.RoleSalesRevenue, p.Subtotal, "Revenue "+p.Number)
	b.credit(mappings.RoleTaxPayable, p.Tax, "Output tax "+p.Number)
	return Translation{Date: date, Description: "Sales invoice " + p.Number}, nil
}

func translateSalesPayment(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[PaymentEvent](raw)
	if err != nil {
		return Translation{}, err
	}
	b.debit(cashRole(p.Method), p.Amount, "Receipt "+p.Number)
	b.credit(mappings.RoleAccountsReceivable, p.Amount, "Receipt "+p.Number)
	return Translation{Date: date, Description: "Customer payment " + p.Number}, nil
}

func translatePOSSale(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[POSSaleCompleted](raw)
	if err != nil {
		return Translation{}, err
	}
	total, err := totalOrSum(p.Total, p.Subtotal, p.Tax)
	if err != nil {
		return Translation{}, err
	}
	b.debit(mappings.RoleCash, total, "POS "+p.Number)
	b.credit(mappings.RoleSalesRevenue, p.Subtotal, "POS revenue "+p.Number)
	b.credit(mappings.RoleTaxPayable, p.Tax, "POS tax "+p.Number)
	b.debit(mappings.RoleCostOfGoodsSold, p.Cost, "POS cost "+p.Number)
	b.credit(mappings.RoleInventory, p.Cost, "POS cost "+p.Number)
	return Translation{Date: date, Description: "POS sale " + p.Number}, nil
}

func translatePurchaseBill(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[PurchaseBillCreated](raw)
	if err != nil {
		return Translation{}, err
	}
	debitRole := mappings.RolePurchases
	if p.GRNID != 0 {
		debitRole = mappings.RoleInventory
	}
	b.debit(debitRole, p.Subtotal, "Bill "+p.Number)
	b.debit(mappings.RoleTaxReceivable, p.Tax, "Input tax "+p.Number)
	total, err := totalOrSum(p.Total, p.Subtotal, p.Tax)
	if err != nil {
		return Translation{}, err
	}
	b.credit(mappings.RoleAccountsPayable, total, "Bill "+p.Number)
	return Translation{Date: date, Description: "Purchase bill " + p.Number}, nil
}

func translatePurchasePayment(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[PaymentEvent](raw)
	if err != nil {
		return Translation{}, err
	}
	b.debit(mappings.RoleAccountsPayable, p.Amount, "Payment "+p.Number)
	b.credit(cashRole(p.Method), p.Amount, "Payment "+p.Number)
	return Translation{Date: date, Description: "Supplier payment " + p.Number}, nil
}

func translateInventoryAdjustment(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[InventoryAdjustmentPosted](raw)
	if err != nil {
		return Translation{}, err
	}
	amount, err := extend(p.Qty.Abs(), p.UnitCost)
	if err != nil {
		return Translation{}, err
	}
	memo := fmt.Sprintf("Adjustment %s product %d", p.Code, p.ProductID)
	if p.Qty.IsPositive() {
		b.debit(mappings.RoleInventory, amount, memo)
		b.credit(mappings.RoleInventoryGain, amount, memo)
	} else {
		b.debit(mappings.RoleInventoryLoss, amount, memo)
		b.credit(mappings.RoleInventory, amount, memo)
	}
	return Translation{Date: date, Description: "Inventory adjustment " + p.Code}, nil
}

func translateGRN(_ context.Context, b *lineBuilder, raw json.RawMessage) (Translation, error) {
	p, date, err := decode[GRNPosted](raw)
	if err != nil {
		return Translation{}, err
	}
	var total money.Amount
	for _, line := range p.Lines {
		amount, err := extend(line.Qty, line.UnitCost)
		if err != nil {
			return Translation{}, err
		}
		if total, err = total.Add(amount); err != nil {
			return Translation{}, shared.ErrTotalOutOfRange
		}
	}
	b.debit(mappings.RoleInventory, total, "GRN "+p.Number)
	b.credit(mappings.RoleGoodsReceivedNotInvoiced, total, "GRN "+p.Number)
	return Translation{Date: date, Description: "Goods receipt " + p.Number}, nil
}

// lineBuilder accumulates resolved lines and keeps the first failure.
// Zero amounts are dropped.
type lineBuilder struct {
	ctx      context.Context
	resolver RoleResolver
	lines    []journals.LineInput
	err      error
}

func (b *lineBuilder) debit(role string, amount money.Amount, memo string) {
	b.add(role, amount, shared.SideDebit, memo)
}

func (b *lineBuilder) credit(role string, amount money.Amount, memo string) {
	b.add(role, amount, shared.SideCredit, memo)
}

func (b *lineBuilder) add(role string, amount money.Amount, side shared.Side, memo string) {
	if b.err != nil || amount.IsZero() {
		return
	}
	if b.resolver == nil {
		b.err = &shared.MissingAccountMappingError{Role: role}
		return
	}
	accountID, err := b.resolver.Resolve(b.ctx, role)
	if err != nil {
		b.err = err
		return
	}
	b.lines = append(b.lines, journals.LineInput{AccountID: accountID, Amount: amount, Side: side, Description: memo})
}
