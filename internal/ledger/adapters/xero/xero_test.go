package xero

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }
func (staticTokens) Refresh(ctx context.Context) error         { return nil }

func newAdapter(t *testing.T, baseURL string) domain.Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{
		BaseURL:     baseURL,
		TenantID:    "tenant-1",
		AccountCode: "090",
		CallTimeout: 5 * time.Second,
		Tokens:      staticTokens{},
	})
	require.NoError(t, err)
	return adapter
}

func testPayload() domain.Payload {
	return domain.Payload{
		InvoiceID: "inv-1",
		StoreID:   "store-1",
		Amount:    decimal.RequireFromString("123.45"),
		Currency:  "USD",
		Status:    "full",
		SettledAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Reference: "inv-1",
	}
}

func TestReconcileDeposit_PostsBankTransaction(t *testing.T) {
	var captured struct {
		method  string
		path    string
		auth    string
		tenant  string
		payload map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.tenant = r.Header.Get("Xero-tenant-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.payload))
		_, _ = w.Write([]byte(`{"BankTransactions":[{"BankTransactionID":"bt-42"}]}`))
	}))
	defer srv.Close()

	adapter := newAdapter(t, srv.URL)
	objectID, err := adapter.ReconcileDeposit(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "bt-42", objectID)

	assert.Equal(t, http.MethodPut, captured.method)
	assert.Equal(t, "/BankTransactions", captured.path)
	assert.Equal(t, "Bearer test-token", captured.auth)
	assert.Equal(t, "tenant-1", captured.tenant)

	txns := captured.payload["BankTransactions"].([]any)
	require.Len(t, txns, 1)
	txn := txns[0].(map[string]any)
	assert.Equal(t, "RECEIVE", txn["Type"])
	assert.Equal(t, "inv-1", txn["Reference"])
	assert.Equal(t, "2026-08-01", txn["Date"])
	lines := txn["LineItems"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "123.45", lines[0].(map[string]any)["UnitAmount"])
}

func TestReconcileInvoicePayment_PostsPayment(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"Payments":[{"PaymentID":"pay-7"}]}`))
	}))
	defer srv.Close()

	adapter := newAdapter(t, srv.URL)
	objectID, err := adapter.ReconcileInvoicePayment(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "pay-7", objectID)
	assert.Equal(t, "/Payments", gotPath)
}

func TestUnauthorizedMapsToErrUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := newAdapter(t, srv.URL)
	_, err := adapter.ReconcileDeposit(context.Background(), testPayload())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestServerErrorMapsToBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := newAdapter(t, srv.URL)
	_, err := adapter.ReconcileDeposit(context.Background(), testPayload())

	var backendErr *domain.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusServiceUnavailable, backendErr.StatusCode)
	assert.True(t, domain.IsRetryable(err))
}

func TestFactoryValidatesConfig(t *testing.T) {
	_, err := NewFactory().NewAdapter(domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewFactory().NewAdapter(domain.AdapterConfig{BaseURL: "http://x", TenantID: "t"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
