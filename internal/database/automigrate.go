package database

import (
	aggregatedomain "github.com/blocksettle/ledgerbridge/internal/aggregate/domain"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	orchestratordomain "github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
	"github.com/blocksettle/ledgerbridge/internal/sweeper"
	"gorm.io/gorm"
)

func autoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&eventdomain.EventRecord{},
		&aggregatedomain.InvoiceAggregate{},
		&orchestratordomain.ReconciliationOutcome{},
		&orchestratordomain.DispatchState{},
		&storedomain.Store{},
		&sweeper.SweepCheckpoint{},
	); err != nil {
		return err
	}

	// AutoMigrate cannot express the partial unique index that enforces one
	// success per idempotency key.
	return conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_reconciliation_outcomes_success
		 ON reconciliation_outcomes (idempotency_key)
		 WHERE outcome = 'success'`,
	).Error
}
