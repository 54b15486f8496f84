package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	Cfg config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	encKey []byte
}

// secretEnvelope is the at-rest shape of an encrypted webhook secret.
type secretEnvelope struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func NewService(p Params) domain.Service {
	secret := strings.TrimSpace(p.Cfg.StoreSecretKey)
	var key []byte
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	return &Service{
		db:     p.DB,
		log:    p.Log.Named("store.service"),
		encKey: key,
	}
}

func (s *Service) WebhookSecret(ctx context.Context, storeID string) (string, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return "", domain.ErrStoreNotFound
	}

	var row domain.Store
	err := s.db.WithContext(ctx).Raw(
		`SELECT store_id, label, webhook_secret, active, created_at
		 FROM stores
		 WHERE store_id = ?
		 LIMIT 1`,
		storeID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	if row.StoreID == "" {
		return "", domain.ErrStoreNotFound
	}
	if !row.Active {
		return "", domain.ErrStoreInactive
	}

	return s.decryptSecret(row.WebhookSecret)
}

func (s *Service) Register(ctx context.Context, storeID, label, secret string) error {
	storeID = strings.TrimSpace(storeID)
	secret = strings.TrimSpace(secret)
	if storeID == "" || secret == "" {
		return domain.ErrInvalidSecret
	}

	envelope, err := s.encryptSecret(secret)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Exec(
		`INSERT INTO stores (store_id, label, webhook_secret, active, created_at)
		 VALUES (?, ?, ?, TRUE, ?)
		 ON CONFLICT (store_id) DO UPDATE
		 SET label = EXCLUDED.label, webhook_secret = EXCLUDED.webhook_secret, active = TRUE`,
		storeID,
		strings.TrimSpace(label),
		envelope,
		time.Now().UTC(),
	).Error
}

func (s *Service) List(ctx context.Context) ([]domain.Store, error) {
	var rows []domain.Store
	err := s.db.WithContext(ctx).Raw(
		`SELECT store_id, label, active, created_at FROM stores ORDER BY created_at`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) encryptSecret(secret string) (datatypes.JSON, error) {
	if len(s.encKey) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)

	envelope := secretEnvelope{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

func (s *Service) decryptSecret(encrypted datatypes.JSON) (string, error) {
	if len(s.encKey) == 0 {
		return "", domain.ErrEncryptionKeyMissing
	}
	if len(encrypted) == 0 {
		return "", domain.ErrInvalidSecret
	}

	var envelope secretEnvelope
	if err := json.Unmarshal(encrypted, &envelope); err != nil {
		return "", domain.ErrInvalidSecret
	}
	if envelope.Version != 1 {
		return "", domain.ErrInvalidSecret
	}

	nonce, err := base64.RawStdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return "", domain.ErrInvalidSecret
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return "", domain.ErrInvalidSecret
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.ErrInvalidSecret
	}
	if len(plain) == 0 {
		return "", domain.ErrInvalidSecret
	}
	return string(plain), nil
}
