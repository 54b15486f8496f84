package repository

import (
	"context"

	"github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOutcome(ctx context.Context, db *gorm.DB, outcome *domain.ReconciliationOutcome) (bool, error) {
	if outcome.Outcome == domain.OutcomeSuccess {
		// The partial unique index only covers success rows; failed and
		// skipped rows may repeat per key.
		tx := db.WithContext(ctx).Exec(
			`INSERT INTO reconciliation_outcomes (
				id, invoice_id, store_id, status, outcome, idempotency_key,
				amount, currency, ledger_mode, ledger_object_id, attempts, last_error, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (idempotency_key) WHERE outcome = 'success' DO NOTHING`,
			outcome.ID,
			outcome.InvoiceID,
			outcome.StoreID,
			outcome.Status,
			outcome.Outcome,
			outcome.IdempotencyKey,
			outcome.Amount,
			outcome.Currency,
			outcome.LedgerMode,
			outcome.LedgerObjectID,
			outcome.Attempts,
			outcome.LastError,
			outcome.CreatedAt,
		)
		if tx.Error != nil {
			return false, tx.Error
		}
		return tx.RowsAffected > 0, nil
	}

	tx := db.WithContext(ctx).Exec(
		`INSERT INTO reconciliation_outcomes (
			id, invoice_id, store_id, status, outcome, idempotency_key,
			amount, currency, ledger_mode, ledger_object_id, attempts, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.ID,
		outcome.InvoiceID,
		outcome.StoreID,
		outcome.Status,
		outcome.Outcome,
		outcome.IdempotencyKey,
		outcome.Amount,
		outcome.Currency,
		outcome.LedgerMode,
		outcome.LedgerObjectID,
		outcome.Attempts,
		outcome.LastError,
		outcome.CreatedAt,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return true, nil
}

func (r *repo) HasSuccess(ctx context.Context, db *gorm.DB, idempotencyKey string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM reconciliation_outcomes
		 WHERE idempotency_key = ? AND outcome = 'success'`,
		idempotencyKey,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.ReconciliationOutcome, error) {
	var items []domain.ReconciliationOutcome
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM reconciliation_outcomes
		 WHERE invoice_id = ?
		 ORDER BY created_at ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.ReconciliationOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.ReconciliationOutcome
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM reconciliation_outcomes
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertDispatchState(ctx context.Context, db *gorm.DB, state *domain.DispatchState) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_dispatch_states (invoice_id, state, attempts, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (invoice_id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		state.InvoiceID,
		state.State,
		state.Attempts,
		state.LastError,
		state.UpdatedAt,
	).Error
}

func (r *repo) FindDispatchState(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.DispatchState, error) {
	var state domain.DispatchState
	err := db.WithContext(ctx).Raw(
		`SELECT invoice_id, state, attempts, last_error, updated_at
		 FROM invoice_dispatch_states
		 WHERE invoice_id = ?
		 LIMIT 1`,
		invoiceID,
	).Scan(&state).Error
	if err != nil {
		return nil, err
	}
	if state.InvoiceID == "" {
		return nil, nil
	}
	return &state, nil
}
