package repository

import (
	"context"

	"github.com/blocksettle/ledgerbridge/internal/aggregate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.InvoiceAggregate, error) {
	var item domain.InvoiceAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT invoice_id, store_id, invoice_amount, currency, paid_amount,
			payment_count, payments, additional_status, reconciliation_status,
			last_event_at, created_at, updated_at
		 FROM invoice_aggregates
		 WHERE invoice_id = ?
		 LIMIT 1`,
		invoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.InvoiceID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, aggregate *domain.InvoiceAggregate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_aggregates (
			invoice_id, store_id, invoice_amount, currency, paid_amount,
			payment_count, payments, additional_status, reconciliation_status,
			last_event_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id) DO UPDATE SET
			paid_amount = EXCLUDED.paid_amount,
			payment_count = EXCLUDED.payment_count,
			payments = EXCLUDED.payments,
			additional_status = EXCLUDED.additional_status,
			reconciliation_status = EXCLUDED.reconciliation_status,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = EXCLUDED.updated_at`,
		aggregate.InvoiceID,
		aggregate.StoreID,
		aggregate.InvoiceAmount,
		aggregate.Currency,
		aggregate.PaidAmount,
		aggregate.PaymentCount,
		aggregate.Payments,
		aggregate.AdditionalStatus,
		aggregate.ReconciliationStatus,
		aggregate.LastEventAt,
		aggregate.CreatedAt,
		aggregate.UpdatedAt,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, invoiceID string, status domain.ReconciliationStatus, additionalStatus string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_aggregates
		 SET reconciliation_status = ?, additional_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE invoice_id = ?`,
		status,
		additionalStatus,
		invoiceID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.InvoiceAggregate, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.InvoiceAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT invoice_id, store_id, invoice_amount, currency, paid_amount,
			payment_count, payments, additional_status, reconciliation_status,
			last_event_at, created_at, updated_at
		 FROM invoice_aggregates
		 ORDER BY last_event_at DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
