package quickbooks

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
	return "quickbooks"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.TenantID) == "" {
		return nil, domain.ErrInvalidConfig
	}
	if cfg.Tokens == nil {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		realmID:    cfg.TenantID,
		accountRef: cfg.AccountCode,
		tokens:     cfg.Tokens,
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
	}, nil
}

type Adapter struct {
	baseURL    string
	realmID    string
	accountRef string
	tokens     domain.TokenSource
	httpClient *http.Client
}

func (a *Adapter) ReconcileDeposit(ctx context.Context, payload domain.Payload) (string, error) {
	note := payload.Notes
	if note == "" {
		note = fmt.Sprintf("%s (%s)", payload.InvoiceID, payload.Status)
	}
	body := depositRequest{
		DepositToAccountRef: ref{Value: a.accountRef},
		TxnDate:             payload.SettledAt.Format("2006-01-02"),
		PrivateNote:         note,
		Line: []depositLine{{
			Amount:     payload.Amount.String(),
			DetailType: "DepositLineDetail",
			DepositLineDetail: depositLineDetail{
				AccountRef: ref{Value: a.accountRef},
			},
		}},
	}
	raw, err := a.post(ctx, "/deposit", body)
	if err != nil {
		return "", err
	}
	var created depositResponse
	if err := json.Unmarshal(raw, &created); err == nil {
		return created.Deposit.ID, nil
	}
	return "", nil
}

func (a *Adapter) ReconcileInvoicePayment(ctx context.Context, payload domain.Payload) (string, error) {
	note := payload.Notes
	if note == "" {
		note = payload.Reference
	}
	body := paymentRequest{
		TotalAmt:    payload.Amount.String(),
		TxnDate:     payload.SettledAt.Format("2006-01-02"),
		PrivateNote: note,
		Line: []paymentLine{{
			Amount: payload.Amount.String(),
			LinkedTxn: []linkedTxn{{
				TxnID:   payload.Reference,
				TxnType: "Invoice",
			}},
		}},
	}
	raw, err := a.post(ctx, "/payment", body)
	if err != nil {
		return "", err
	}
	var created paymentResponse
	if err := json.Unmarshal(raw, &created); err == nil {
		return created.Payment.ID, nil
	}
	return "", nil
}

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.tokens.Token(ctx)
	return err
}

func (a *Adapter) post(ctx context.Context, path string, body any) ([]byte, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v3/company/%s%s", a.baseURL, a.realmID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
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

type ref struct {
	Value string `json:"value"`
}

type depositRequest struct {
	DepositToAccountRef ref           `json:"DepositToAccountRef"`
	TxnDate             string        `json:"TxnDate"`
	PrivateNote         string        `json:"PrivateNote,omitempty"`
	Line                []depositLine `json:"Line"`
}

type depositResponse struct {
	Deposit struct {
		ID string `json:"Id"`
	} `json:"Deposit"`
}

type depositLine struct {
	Amount            string            `json:"Amount"`
	DetailType        string            `json:"DetailType"`
	DepositLineDetail depositLineDetail `json:"DepositLineDetail"`
}

type depositLineDetail struct {
	AccountRef ref `json:"AccountRef"`
}

type paymentRequest struct {
	TotalAmt    string        `json:"TotalAmt"`
	TxnDate     string        `json:"TxnDate"`
	PrivateNote string        `json:"PrivateNote,omitempty"`
	Line        []paymentLine `json:"Line"`
}

type paymentResponse struct {
	Payment struct {
		ID string `json:"Id"`
	} `json:"Payment"`
}

type paymentLine struct {
	Amount    string      `json:"Amount"`
	LinkedTxn []linkedTxn `json:"LinkedTxn"`
}

type linkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}
