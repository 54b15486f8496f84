package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists EventRecord rows. The Event Store owns them
// exclusively; rows are never deleted.
type Repository interface {
	// InsertEvent appends the record unless the delivery id was already
	// seen. Returns false when the row already existed.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)

	// FindByDeliveryID returns nil when no row exists.
	FindByDeliveryID(ctx context.Context, db *gorm.DB, deliveryID string) (*EventRecord, error)

	// ClaimUnprocessed locks and returns up to limit unprocessed relevant
	// events in receipt order. Claimed rows stay unprocessed until
	// MarkProcessed; a crashed worker therefore loses nothing.
	ClaimUnprocessed(ctx context.Context, tx *gorm.DB, limit int) ([]EventRecord, error)

	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error

	// ListByInvoice returns the full event history for one invoice in
	// receipt order, for audit and re-derivation.
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) ([]EventRecord, error)
}
