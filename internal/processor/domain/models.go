package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the upstream processor's view of one payment request. Amount is
// the fiat value locked at invoice creation.
type Invoice struct {
	ID               string
	StoreID          string
	Amount           decimal.Decimal
	Currency         string
	Status           string
	AdditionalStatus string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// PaymentLeg is one confirmed on-chain transaction contributing to an
// invoice's paid total. Value is already converted to the invoice currency
// by the processor at the invoice's locked rate.
type PaymentLeg struct {
	TxID   string
	Value  decimal.Decimal
	Status string
	PaidAt time.Time
}

// Upstream invoice statuses.
const (
	InvoiceStatusNew        = "New"
	InvoiceStatusProcessing = "Processing"
	InvoiceStatusSettled    = "Settled"
	InvoiceStatusExpired    = "Expired"
	InvoiceStatusInvalid    = "Invalid"
)

// Upstream payment leg statuses.
const (
	PaymentStatusSettled    = "Settled"
	PaymentStatusProcessing = "Processing"
	PaymentStatusInvalid    = "Invalid"
)

// IsTerminal reports whether the invoice can no longer receive payments.
func IsTerminal(status string) bool {
	switch status {
	case InvoiceStatusSettled, InvoiceStatusExpired, InvoiceStatusInvalid:
		return true
	default:
		return false
	}
}

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrUnavailable     = errors.New("processor_unavailable")
)
