package integration

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// EventType names a canonical business event published by another subsystem.
type EventType string

const (
	EventSalesInvoiceCreated       EventType = "sales.invoice.created"
	EventSalesPaymentReceived      EventType = "sales.payment.received"
	EventPOSSaleCompleted          EventType = "retail.pos.sale.completed"
	EventPurchaseBillCreated       EventType = "purchase.bill.created"
	EventPurchasePaymentMade       EventType = "purchase.payment.made"
	EventInventoryAdjustmentPosted EventType = "inventory.adjustment.posted"
	EventGRNPosted                 EventType = "procurement.grn.posted"
)

// EventTypes lists every translatable event.
var EventTypes = []EventType{
	EventSalesInvoiceCreated,
	EventSalesPaymentReceived,
	EventPOSSaleCompleted,
	EventPurchaseBillCreated,
	EventPurchasePaymentMade,
	EventInventoryAdjustmentPosted,
	EventGRNPosted,
}

// Valid reports whether t has a translator.
func (t EventType) Valid() bool {
	_, ok := translators[t]
	return ok
}

// ParseEventType normalizes raw and checks it is known.
func ParseEventType(raw string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", shared.ErrUnknownEventType
	}
	return t, nil
}

// Status of a recorded event.
type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// Event is the durable record of an ingested business event.
type Event struct {
	ID             int64           `json:"id"`
	Type           EventType       `json:"event_type"`
	SourceRef      string          `json:"source_ref"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	Error          string          `json:"error,omitempty"`
	Attempts       int             `json:"attempts"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// IngestInput is one inbound event. ExternalID is the publisher's identifier;
// when empty the payload itself identifies the event.
type IngestInput struct {
	Type       EventType
	ExternalID string
	Payload    json.RawMessage
}

// RetrySummary reports a RetryFailed pass.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}
