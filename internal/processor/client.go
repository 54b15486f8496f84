package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/processor/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Client is the HTTP implementation of domain.Client, speaking the
// processor's Greenfield-style store API with token auth.
type Client struct {
	baseURL string
	apiKey  string
	log     *zap.Logger
	client  *http.Client
}

func NewClient(p Params) domain.Client {
	return &Client{
		baseURL: strings.TrimRight(p.Cfg.Processor.BaseURL, "/"),
		apiKey:  p.Cfg.Processor.APIKey,
		log:     p.Log.Named("processor.client"),
		client:  &http.Client{Timeout: p.Cfg.Processor.Timeout},
	}
}

type invoicePayload struct {
	ID               string `json:"id"`
	StoreID          string `json:"storeId"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	AdditionalStatus string `json:"additionalStatus"`
	CreatedTime      int64  `json:"createdTime"`
	ExpirationTime   int64  `json:"expirationTime"`
}

type paymentMethodPayload struct {
	PaymentMethodID string           `json:"paymentMethodId"`
	Payments        []paymentPayload `json:"payments"`
}

type paymentPayload struct {
	ID           string `json:"id"`
	Value        string `json:"value"`
	Status       string `json:"status"`
	ReceivedDate int64  `json:"receivedDate"`
}

func (c *Client) GetInvoice(ctx context.Context, storeID, invoiceID string) (*domain.Invoice, error) {
	var payload invoicePayload
	path := fmt.Sprintf("/api/v1/stores/%s/invoices/%s", url.PathEscape(storeID), url.PathEscape(invoiceID))
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	return decodeInvoice(payload)
}

func (c *Client) GetInvoicePayments(ctx context.Context, storeID, invoiceID string) ([]domain.PaymentLeg, error) {
	var methods []paymentMethodPayload
	path := fmt.Sprintf("/api/v1/stores/%s/invoices/%s/payment-methods", url.PathEscape(storeID), url.PathEscape(invoiceID))
	if err := c.get(ctx, path, &methods); err != nil {
		return nil, err
	}

	legs := make([]domain.PaymentLeg, 0)
	for _, method := range methods {
		for _, payment := range method.Payments {
			value, err := decimal.NewFromString(strings.TrimSpace(payment.Value))
			if err != nil {
				c.log.Warn("skipping payment with unparseable value",
					zap.String("invoice_id", invoiceID),
					zap.String("payment_id", payment.ID),
				)
				continue
			}
			legs = append(legs, domain.PaymentLeg{
				TxID:   payment.ID,
				Value:  value,
				Status: payment.Status,
				PaidAt: time.Unix(payment.ReceivedDate, 0).UTC(),
			})
		}
	}
	return legs, nil
}

func (c *Client) ListSettledInvoices(ctx context.Context, storeID string, since time.Time, limit int) ([]domain.Invoice, error) {
	var payloads []invoicePayload
	query := url.Values{}
	query.Set("status", domain.InvoiceStatusSettled)
	query.Set("startDate", strconv.FormatInt(since.Unix(), 10))
	if limit > 0 {
		query.Set("take", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/api/v1/stores/%s/invoices?%s", url.PathEscape(storeID), query.Encode())
	if err := c.get(ctx, path, &payloads); err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(payloads))
	for _, payload := range payloads {
		invoice, err := decodeInvoice(payload)
		if err != nil {
			c.log.Warn("skipping invoice with unparseable amount", zap.String("invoice_id", payload.ID))
			continue
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrInvoiceNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("processor request failed: status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeInvoice(payload invoicePayload) (*domain.Invoice, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
	if err != nil {
		return nil, fmt.Errorf("parse invoice amount: %w", err)
	}
	return &domain.Invoice{
		ID:               payload.ID,
		StoreID:          payload.StoreID,
		Amount:           amount,
		Currency:         strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Status:           payload.Status,
		AdditionalStatus: payload.AdditionalStatus,
		CreatedAt:        time.Unix(payload.CreatedTime, 0).UTC(),
		ExpiresAt:        time.Unix(payload.ExpirationTime, 0).UTC(),
	}, nil
}
