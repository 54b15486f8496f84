package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one raw webhook notification, stored once per delivery id.
// The row doubles as the durable work-queue entry for the dispatch worker:
// the processed flag flips false -> true exactly once.
type EventRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	DeliveryID  string         `json:"delivery_id" gorm:"type:text;not null;uniqueIndex"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	InvoiceID   string         `json:"invoice_id" gorm:"type:text;not null;index"`
	StoreID     string         `json:"store_id" gorm:"type:text;not null;index"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	Processed   bool           `json:"processed" gorm:"not null;default:false;index"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Upstream webhook event types. Created and ReceivedPayment carry no
// settlement information and are stored for audit but never dispatched.
const (
	EventTypeInvoiceSettled         = "InvoiceSettled"
	EventTypeInvoicePaymentSettled  = "InvoicePaymentSettled"
	EventTypeInvoiceExpired         = "InvoiceExpired"
	EventTypeInvoiceInvalid         = "InvoiceInvalid"
	EventTypeInvoiceCreated         = "InvoiceCreated"
	EventTypeInvoiceReceivedPayment = "InvoiceReceivedPayment"
)

// IsRelevant reports whether the event type carries settlement information.
func IsRelevant(eventType string) bool {
	switch eventType {
	case EventTypeInvoiceSettled, EventTypeInvoicePaymentSettled,
		EventTypeInvoiceExpired, EventTypeInvoiceInvalid:
		return true
	default:
		return false
	}
}

// IsKnown reports whether the event type is one the receiver accepts at all.
func IsKnown(eventType string) bool {
	if IsRelevant(eventType) {
		return true
	}
	switch eventType {
	case EventTypeInvoiceCreated, EventTypeInvoiceReceivedPayment:
		return true
	default:
		return false
	}
}
