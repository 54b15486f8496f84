package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the canonical reconciliation record posted to an accounting
// backend. One payload describes one fully or partially paid invoice.
type Payload struct {
	InvoiceID string
	StoreID   string
	// Amount is the confirmed paid total; InvoiceAmount is the original
	// invoice total, kept for partial/overpaid context in the backend.
	Amount        decimal.Decimal
	InvoiceAmount decimal.Decimal
	Currency      string
	Status        string
	PaymentCount  int
	SettledAt     time.Time
	Reference     string
	Notes         string
}

// Adapter posts reconciliation payloads into one accounting backend.
// Implementations must be safe for concurrent use. Both reconcile calls
// return the id of the object created in the backend, empty when the
// backend response does not carry one.
type Adapter interface {
	// ReconcileDeposit records the paid amount as a standalone deposit on
	// the configured clearing account.
	ReconcileDeposit(ctx context.Context, payload Payload) (string, error)
	// ReconcileInvoicePayment applies the paid amount against the matching
	// invoice inside the backend, keyed by Reference.
	ReconcileInvoicePayment(ctx context.Context, payload Payload) (string, error)
	Health(ctx context.Context) error
}

// AdapterConfig carries backend connection settings to a factory.
type AdapterConfig struct {
	BaseURL     string
	TenantID    string
	AccountCode string
	CallTimeout time.Duration
	Tokens      TokenSource
}

// AdapterFactory builds a backend adapter from config.
type AdapterFactory interface {
	Backend() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// TokenSource hands out bearer tokens for backend calls and refreshes them
// on demand. Refresh failure is fatal for the caller's session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Refresh discards the cached token and obtains a new one. It returns
	// ErrRefreshFailed when the grant is no longer usable.
	Refresh(ctx context.Context) error
}

var (
	ErrBackendNotFound = errors.New("ledger_backend_not_found")
	ErrInvalidConfig   = errors.New("ledger_invalid_config")
	ErrUnauthorized    = errors.New("ledger_unauthorized")
	ErrRefreshFailed   = errors.New("ledger_refresh_failed")
)

// BackendError is a non-2xx response from the accounting backend.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("ledger backend status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether a failed backend call may succeed on retry.
// Auth failures are not retryable here; they go through token refresh.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRefreshFailed) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.StatusCode == 429 || be.StatusCode >= 500
	}
	// Transport errors (timeouts, resets) are retryable.
	return true
}
