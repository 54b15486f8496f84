package domain

import "context"

// Service drives reconciliation: it drains stored webhook events, recomputes
// invoice aggregates and dispatches payable verdicts into the ledger.
type Service interface {
	// ProcessInvoice recomputes one invoice and dispatches its verdict if
	// payable. Calls for the same invoice are serialized.
	ProcessInvoice(ctx context.Context, storeID, invoiceID string) error
	// Redrive forces an immediate re-run for an invoice, cancelling any
	// in-flight retry backoff first.
	Redrive(ctx context.Context, invoiceID string) error
	AuthStatus() AuthStatus
	// Reconnect retries the token refresh and resumes dispatching on
	// success. It is the only way out of the halted state.
	Reconnect(ctx context.Context) error
	ListOutcomes(ctx context.Context, invoiceID string) ([]ReconciliationOutcome, error)
	ListRecent(ctx context.Context, limit, offset int) ([]ReconciliationOutcome, error)
	// DispatchState reports where an invoice sits in the pipeline, nil when
	// it has never been dispatched.
	DispatchState(ctx context.Context, invoiceID string) (*DispatchState, error)
}
