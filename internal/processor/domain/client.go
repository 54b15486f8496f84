package domain

import (
	"context"
	"time"
)

// Client talks to the upstream payment processor REST API. Events can be
// partial summaries, so the aggregator always refreshes from these calls
// rather than trusting webhook payloads alone.
type Client interface {
	GetInvoice(ctx context.Context, storeID, invoiceID string) (*Invoice, error)
	GetInvoicePayments(ctx context.Context, storeID, invoiceID string) ([]PaymentLeg, error)

	// ListSettledInvoices returns invoices that reached a settled state at
	// or after since, oldest first. Used by the fallback sweep.
	ListSettledInvoices(ctx context.Context, storeID string, since time.Time, limit int) ([]Invoice, error)
}
