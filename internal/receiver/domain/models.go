package domain

import (
	"context"
	"errors"
	"time"
)

// Envelope is the parsed wrapper common to every processor webhook.
type Envelope struct {
	DeliveryID string    `json:"deliveryId"`
	Type       string    `json:"type"`
	InvoiceID  string    `json:"invoiceId"`
	StoreID    string    `json:"storeId"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result classifies one webhook delivery for logging and metrics.
type Result string

const (
	ResultAccepted          Result = "accepted"
	ResultAcceptedDuplicate Result = "accepted_duplicate"
	ResultRejectedSignature Result = "rejected_bad_signature"
	ResultRejectedMalformed Result = "rejected_malformed"
)

// Service ingests raw processor webhook deliveries into the event store.
type Service interface {
	// Ingest verifies the signature against the store's secret, parses the
	// envelope and persists the event. Persistence failure is the only
	// error; rejections are reported in the Result.
	Ingest(ctx context.Context, body []byte, signature string) (Result, error)
}

var ErrMalformed = errors.New("malformed_payload")
