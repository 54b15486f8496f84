package service

import (
	"context"
	"testing"

	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/store/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, secretKey string) domain.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite gives every pooled connection its own database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Store{}))

	return NewService(Params{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{StoreSecretKey: secretKey},
	})
}

func TestRegisterAndResolveSecret(t *testing.T) {
	svc := setupService(t, "test-master-key")
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "store-1", "Main shop", "whsec_abc123"))

	secret, err := svc.WebhookSecret(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", secret)
}

func TestRegisterReplacesSecret(t *testing.T) {
	svc := setupService(t, "test-master-key")
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "store-1", "Main shop", "old-secret"))
	require.NoError(t, svc.Register(ctx, "store-1", "Main shop", "new-secret"))

	secret, err := svc.WebhookSecret(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, "new-secret", secret)

	stores, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestWebhookSecret_UnknownStore(t *testing.T) {
	svc := setupService(t, "test-master-key")

	_, err := svc.WebhookSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)
}

func TestRegister_RequiresEncryptionKey(t *testing.T) {
	svc := setupService(t, "")

	err := svc.Register(context.Background(), "store-1", "", "secret")
	assert.ErrorIs(t, err, domain.ErrEncryptionKeyMissing)
}

func TestRegister_RejectsEmptySecret(t *testing.T) {
	svc := setupService(t, "test-master-key")

	err := svc.Register(context.Background(), "store-1", "", "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidSecret)
}
