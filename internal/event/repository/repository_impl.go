package repository

import (
	"context"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/event/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, delivery_id, event_type, invoice_id, store_id,
			payload, received_at, processed, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (delivery_id) DO NOTHING`,
		event.ID,
		event.DeliveryID,
		event.EventType,
		event.InvoiceID,
		event.StoreID,
		event.Payload,
		event.ReceivedAt,
		event.Processed,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByDeliveryID(ctx context.Context, db *gorm.DB, deliveryID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, delivery_id, event_type, invoice_id, store_id,
			payload, received_at, processed, processed_at
		 FROM payment_events
		 WHERE delivery_id = ?
		 LIMIT 1`,
		deliveryID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ClaimUnprocessed(ctx context.Context, tx *gorm.DB, limit int) ([]domain.EventRecord, error) {
	var events []domain.EventRecord
	query := `SELECT id, delivery_id, event_type, invoice_id, store_id,
			payload, received_at, processed, processed_at
		 FROM payment_events
		 WHERE processed = ?
		 ORDER BY received_at, id
		 LIMIT ?`
	if tx.Dialector.Name() == "postgres" {
		query = `SELECT id, delivery_id, event_type, invoice_id, store_id,
			payload, received_at, processed, processed_at
		 FROM payment_events
		 WHERE processed = ?
		 ORDER BY received_at, id
		 FOR UPDATE SKIP LOCKED
		 LIMIT ?`
	}
	err := tx.WithContext(ctx).Raw(query, false, limit).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed = TRUE, processed_at = ?
		 WHERE id = ? AND processed = FALSE`,
		processedAt,
		id,
	).Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.EventRecord, error) {
	var events []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, delivery_id, event_type, invoice_id, store_id,
			payload, received_at, processed, processed_at
		 FROM payment_events
		 WHERE invoice_id = ?
		 ORDER BY received_at, id`,
		invoiceID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
