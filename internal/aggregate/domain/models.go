package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ReconciliationStatus is the derived verdict for one invoice.
type ReconciliationStatus string

const (
	StatusPending     ReconciliationStatus = "pending"
	StatusInvalidated ReconciliationStatus = "invalidated"
	StatusPartial     ReconciliationStatus = "partial"
	StatusFull        ReconciliationStatus = "full"
	StatusOverpaid    ReconciliationStatus = "overpaid"
	StatusFailed      ReconciliationStatus = "failed"
)

// rank orders statuses by completeness. Recomputation never moves an
// aggregate to a lower rank, so event replay cannot regress a verdict.
// A late confirmed payment outranks invalidated: funds received always win.
func (s ReconciliationStatus) rank() int {
	switch s {
	case StatusInvalidated:
		return 1
	case StatusPartial:
		return 2
	case StatusFull:
		return 3
	case StatusOverpaid:
		return 4
	default:
		return 0
	}
}

// Regresses reports whether moving from s to next would lose completeness.
func (s ReconciliationStatus) Regresses(next ReconciliationStatus) bool {
	return next.rank() < s.rank()
}

// Dispatchable reports whether the status is ever sent to the ledger.
func (s ReconciliationStatus) Dispatchable() bool {
	switch s {
	case StatusPartial, StatusFull, StatusOverpaid:
		return true
	default:
		return false
	}
}

// PaymentLeg is one confirmed on-chain payment, as stored on the aggregate.
type PaymentLeg struct {
	TxID   string          `json:"tx_id"`
	Value  decimal.Decimal `json:"value"`
	PaidAt time.Time       `json:"paid_at"`
}

// InvoiceAggregate is the recomputed per-invoice state. Single writer: the
// aggregator service. PaidAmount is monotonically non-decreasing.
type InvoiceAggregate struct {
	InvoiceID            string               `json:"invoice_id" gorm:"primaryKey;type:text"`
	StoreID              string               `json:"store_id" gorm:"type:text;not null;index"`
	InvoiceAmount        decimal.Decimal      `json:"invoice_amount" gorm:"type:numeric(20,8);not null"`
	Currency             string               `json:"currency" gorm:"type:text;not null"`
	PaidAmount           decimal.Decimal      `json:"paid_amount" gorm:"type:numeric(20,8);not null"`
	PaymentCount         int                  `json:"payment_count" gorm:"not null"`
	Payments             datatypes.JSON       `json:"payments" gorm:"type:jsonb"`
	AdditionalStatus     string               `json:"additional_status" gorm:"type:text"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status" gorm:"type:text;not null;index"`
	LastEventAt          time.Time            `json:"last_event_at" gorm:"not null"`
	CreatedAt            time.Time            `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time            `json:"updated_at" gorm:"not null"`
}

func (InvoiceAggregate) TableName() string { return "invoice_aggregates" }
