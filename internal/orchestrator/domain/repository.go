package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository persists outcomes and dispatch states. InsertOutcome relies on
// a partial unique index over idempotency_key for success rows, so at most
// one success per (invoice, status) can ever land.
type Repository interface {
	// InsertOutcome appends an outcome row. When outcome is success and a
	// success row for the same idempotency key already exists, the insert
	// is dropped and inserted=false is returned.
	InsertOutcome(ctx context.Context, db *gorm.DB, outcome *ReconciliationOutcome) (inserted bool, err error)
	HasSuccess(ctx context.Context, db *gorm.DB, idempotencyKey string) (bool, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) ([]ReconciliationOutcome, error)
	ListRecent(ctx context.Context, db *gorm.DB, limit, offset int) ([]ReconciliationOutcome, error)
	UpsertDispatchState(ctx context.Context, db *gorm.DB, state *DispatchState) error
	FindDispatchState(ctx context.Context, db *gorm.DB, invoiceID string) (*DispatchState, error)
}
