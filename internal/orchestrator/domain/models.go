package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ReconciliationOutcome is one appended record of a finished dispatch. Rows
// are never updated; retries happen inside a dispatch and only the final
// result is written.
type ReconciliationOutcome struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID      string          `json:"invoice_id" gorm:"type:text;not null;index"`
	StoreID        string          `json:"store_id" gorm:"type:text;not null"`
	Status         string          `json:"status" gorm:"type:text;not null"`
	Outcome        string          `json:"outcome" gorm:"type:text;not null"`
	IdempotencyKey string          `json:"idempotency_key" gorm:"type:text;not null"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric(20,8)"`
	Currency       string          `json:"currency" gorm:"type:text"`
	LedgerMode     string          `json:"ledger_mode" gorm:"type:text"`
	LedgerObjectID string          `json:"ledger_object_id,omitempty" gorm:"type:text"`
	Attempts       int             `json:"attempts" gorm:"not null;default:1"`
	LastError      string          `json:"last_error" gorm:"type:text"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
}

func (ReconciliationOutcome) TableName() string { return "reconciliation_outcomes" }

const (
	OutcomeSuccess          = "success"
	OutcomeFailed           = "failed"
	OutcomeSkippedDuplicate = "skipped_duplicate"
)

// IdempotencyKey identifies one (invoice, derived status) dispatch. A status
// that advances (partial then full) produces a new key and a new posting;
// a replay of the same status does not.
func IdempotencyKey(invoiceID, status string) string {
	return invoiceID + ":" + status
}

// DispatchState tracks where an invoice sits in the dispatch pipeline.
type DispatchState struct {
	InvoiceID string    `json:"invoice_id" gorm:"primaryKey;type:text"`
	State     string    `json:"state" gorm:"type:text;not null"`
	Attempts  int       `json:"attempts" gorm:"not null;default:0"`
	LastError string    `json:"last_error" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (DispatchState) TableName() string { return "invoice_dispatch_states" }

const (
	DispatchStatePending         = "pending"
	DispatchStateDispatching     = "dispatch_pending"
	DispatchStateReconciled      = "reconciled"
	DispatchStateFailedRetryable = "failed_retryable"
	DispatchStateFailedTerminal  = "failed_terminal"
)

// AuthState is the global connection state against the accounting backend.
// A single failed token refresh halts all dispatching until an operator
// reconnects; events keep accumulating unprocessed in the meantime.
type AuthState string

const (
	AuthStateNormal     AuthState = "normal"
	AuthStateRefreshing AuthState = "refreshing"
	AuthStateHalted     AuthState = "halted"
)

// AuthStatus is the operator-visible view of the auth state.
type AuthStatus struct {
	State     AuthState  `json:"state"`
	HaltedAt  *time.Time `json:"halted_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}
