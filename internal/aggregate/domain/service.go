package domain

import "context"

// Service recomputes invoice aggregates from the upstream source of truth.
type Service interface {
	// Recompute refreshes the aggregate for one invoice from the
	// processor's current invoice and payment detail, derives the
	// reconciliation status, and persists the result. It never decreases
	// PaidAmount and never regresses the status.
	Recompute(ctx context.Context, storeID, invoiceID string) (*InvoiceAggregate, error)

	// MarkFailed records a derivation failure for one invoice without
	// touching amounts. Terminal reconciled verdicts are not overwritten.
	MarkFailed(ctx context.Context, invoiceID string, reason string) error

	Get(ctx context.Context, invoiceID string) (*InvoiceAggregate, error)
	List(ctx context.Context, limit, offset int) ([]InvoiceAggregate, error)
}
