package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Store is one upstream processor store this service reconciles for.
// WebhookSecret holds an AES-GCM envelope, never the plaintext secret.
type Store struct {
	StoreID       string         `json:"store_id" gorm:"primaryKey;type:text"`
	Label         string         `json:"label" gorm:"type:text"`
	WebhookSecret datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	Active        bool           `json:"active" gorm:"not null;default:true"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (Store) TableName() string { return "stores" }

var (
	ErrStoreNotFound        = errors.New("store_not_found")
	ErrStoreInactive        = errors.New("store_inactive")
	ErrInvalidSecret        = errors.New("invalid_store_secret")
	ErrEncryptionKeyMissing = errors.New("store_encryption_key_missing")
)
