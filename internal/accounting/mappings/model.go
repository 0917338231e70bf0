package mappings

import "time"

// Integration roles resolvable to ledger accounts.
const (
	RoleCash                     = "cash"
	RoleBank                     = "bank"
	RoleAccountsReceivable       = "accounts_receivable"
	RoleInventory                = "inventory"
	RoleTaxReceivable            = "tax_receivable"
	RoleAccountsPayable          = "accounts_payable"
	RoleTaxPayable               = "tax_payable"
	RoleGoodsReceivedNotInvoiced = "goods_received_not_invoiced"
	RoleSalesRevenue             = "sales_revenue"
	RoleCostOfGoodsSold          = "cost_of_goods_sold"
	RolePurchases                = "purchases"
	RoleInventoryGain            = "inventory_gain"
	RoleInventoryLoss            = "inventory_loss"
)

// DefaultCodes is the chart-of-accounts code used for a role when no explicit
// mapping row exists.
var DefaultCodes = map[string]string{
	RoleCash:                     "1000",
	RoleBank:                     "1010",
	RoleAccountsReceivable:       "1100",
	RoleTaxReceivable:            "1200",
	RoleInventory:                "1300",
	RoleAccountsPayable:          "2000",
	RoleTaxPayable:               "2100",
	RoleGoodsReceivedNotInvoiced: "2200",
	RoleSalesRevenue:             "4000",
	RoleInventoryGain:            "4900",
	RoleCostOfGoodsSold:          "5000",
	RolePurchases:                "5100",
	RoleInventoryLoss:            "5900",
}

// AccountMapping links an integration role to a ledger account.
type AccountMapping struct {
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source tells where a resolution came from.
type Source string

const (
	SourceMapping Source = "mapping"
	SourceDefault Source = "default"
)

// Resolution is the effective account for a role.
type Resolution struct {
	Role        string `json:"role"`
	AccountID   int64  `json:"account_id"`
	Source      Source `json:"source"`
	DefaultCode string `json:"default_code,omitempty"`
}
