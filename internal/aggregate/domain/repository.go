package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository persists InvoiceAggregate rows with row-level upsert semantics.
type Repository interface {
	Find(ctx context.Context, db *gorm.DB, invoiceID string) (*InvoiceAggregate, error)
	Upsert(ctx context.Context, db *gorm.DB, aggregate *InvoiceAggregate) error
	UpdateStatus(ctx context.Context, db *gorm.DB, invoiceID string, status ReconciliationStatus, additionalStatus string) error
	List(ctx context.Context, db *gorm.DB, limit, offset int) ([]InvoiceAggregate, error)
}
