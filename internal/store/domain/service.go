package domain

import "context"

// Service resolves per-store webhook secrets for signature validation.
type Service interface {
	// WebhookSecret returns the decrypted secret for an active store.
	WebhookSecret(ctx context.Context, storeID string) (string, error)

	// Register creates or replaces a store registration, encrypting the
	// secret at rest.
	Register(ctx context.Context, storeID, label, secret string) error

	// List returns all registered stores, secrets omitted.
	List(ctx context.Context) ([]Store, error)
}
