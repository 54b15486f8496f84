package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Backend() string {
	return "xero"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.TenantID) == "" {
		return nil, domain.ErrInvalidConfig
	}
	if cfg.Tokens == nil {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tenantID:    cfg.TenantID,
		accountCode: cfg.AccountCode,
		tokens:      cfg.Tokens,
		httpClient:  &http.Client{Timeout: cfg.CallTimeout},
	}, nil
}

type Adapter struct {
	baseURL     string
	tenantID    string
	accountCode string
	tokens      domain.TokenSource
	httpClient  *http.Client
}

func (a *Adapter) ReconcileDeposit(ctx context.Context, payload domain.Payload) (string, error) {
	description := payload.Notes
	if description == "" {
		description = fmt.Sprintf("Invoice %s (%s)", payload.InvoiceID, payload.Status)
	}
	body := bankTransactionsRequest{
		BankTransactions: []bankTransaction{{
			Type:        "RECEIVE",
			Reference:   payload.Reference,
			Date:        payload.SettledAt.Format("2006-01-02"),
			Contact:     contact{Name: "Bitcoin settlement"},
			BankAccount: account{Code: a.accountCode},
			LineItems: []lineItem{{
				Description: description,
				Quantity:    "1",
				UnitAmount:  payload.Amount.String(),
				AccountCode: a.accountCode,
			}},
			CurrencyCode: payload.Currency,
		}},
	}
	raw, err := a.put(ctx, "/BankTransactions", body)
	if err != nil {
		return "", err
	}
	var created bankTransactionsResponse
	if err := json.Unmarshal(raw, &created); err == nil && len(created.BankTransactions) > 0 {
		return created.BankTransactions[0].BankTransactionID, nil
	}
	return "", nil
}

func (a *Adapter) ReconcileInvoicePayment(ctx context.Context, payload domain.Payload) (string, error) {
	body := paymentsRequest{
		Payments: []payment{{
			Invoice:   invoiceRef{InvoiceNumber: payload.Reference},
			Account:   account{Code: a.accountCode},
			Date:      payload.SettledAt.Format("2006-01-02"),
			Amount:    payload.Amount.String(),
			Reference: payload.InvoiceID,
		}},
	}
	raw, err := a.put(ctx, "/Payments", body)
	if err != nil {
		return "", err
	}
	var created paymentsResponse
	if err := json.Unmarshal(raw, &created); err == nil && len(created.Payments) > 0 {
		return created.Payments[0].PaymentID, nil
	}
	return "", nil
}

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.tokens.Token(ctx)
	return err
}

func (a *Adapter) put(ctx context.Context, path string, body any) ([]byte, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Xero-tenant-id", a.tenantID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.ErrUnauthorized
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > 2048 {
			raw = raw[:2048]
		}
		return nil, &domain.BackendError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

type bankTransactionsRequest struct {
	BankTransactions []bankTransaction `json:"BankTransactions"`
}

type bankTransactionsResponse struct {
	BankTransactions []struct {
		BankTransactionID string `json:"BankTransactionID"`
	} `json:"BankTransactions"`
}

type bankTransaction struct {
	Type         string     `json:"Type"`
	Reference    string     `json:"Reference"`
	Date         string     `json:"Date"`
	Contact      contact    `json:"Contact"`
	BankAccount  account    `json:"BankAccount"`
	LineItems    []lineItem `json:"LineItems"`
	CurrencyCode string     `json:"CurrencyCode,omitempty"`
}

type contact struct {
	Name string `json:"Name"`
}

type account struct {
	Code string `json:"Code"`
}

type lineItem struct {
	Description string `json:"Description"`
	Quantity    string `json:"Quantity"`
	UnitAmount  string `json:"UnitAmount"`
	AccountCode string `json:"AccountCode"`
}

type paymentsRequest struct {
	Payments []payment `json:"Payments"`
}

type paymentsResponse struct {
	Payments []struct {
		PaymentID string `json:"PaymentID"`
	} `json:"Payments"`
}

type payment struct {
	Invoice   invoiceRef `json:"Invoice"`
	Account   account    `json:"Account"`
	Date      string     `json:"Date"`
	Amount    string     `json:"Amount"`
	Reference string     `json:"Reference,omitempty"`
}

type invoiceRef struct {
	InvoiceNumber string `json:"InvoiceNumber"`
}
