package service

import (
	"context"
	"testing"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	eventrepository "github.com/blocksettle/ledgerbridge/internal/event/repository"
	"github.com/blocksettle/ledgerbridge/internal/receiver/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storeStub struct {
	secrets map[string]string
}

func (s *storeStub) WebhookSecret(ctx context.Context, storeID string) (string, error) {
	secret, ok := s.secrets[storeID]
	if !ok {
		return "", storedomain.ErrStoreNotFound
	}
	return secret, nil
}

func (s *storeStub) Register(ctx context.Context, storeID, label, secret string) error {
	s.secrets[storeID] = secret
	return nil
}

func (s *storeStub) List(ctx context.Context) ([]storedomain.Store, error) {
	return nil, nil
}

func setupReceiver(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite gives every pooled connection its own database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&eventdomain.EventRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
		GenID:  node,
		Events: eventrepository.Provide(),
		Stores: &storeStub{secrets: map[string]string{"store-1": "whsec_test"}},
	})
	return svc, db
}

const settledBody = `{
	"deliveryId": "del-1",
	"type": "InvoiceSettled",
	"invoiceId": "inv-1",
	"storeId": "store-1",
	"timestamp": "2026-08-01T11:59:00Z"
}`

func TestIngest_AcceptsSignedDelivery(t *testing.T) {
	svc, db := setupReceiver(t)
	body := []byte(settledBody)

	result, err := svc.Ingest(context.Background(), body, domain.Sign("whsec_test", body))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAccepted, result)

	var count int64
	require.NoError(t, db.Model(&eventdomain.EventRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIngest_DuplicateDeliveryAcknowledged(t *testing.T) {
	svc, db := setupReceiver(t)
	body := []byte(settledBody)
	signature := domain.Sign("whsec_test", body)

	result, err := svc.Ingest(context.Background(), body, signature)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAccepted, result)

	result, err = svc.Ingest(context.Background(), body, signature)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAcceptedDuplicate, result)

	var count int64
	require.NoError(t, db.Model(&eventdomain.EventRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIngest_RejectsBadSignature(t *testing.T) {
	svc, db := setupReceiver(t)
	body := []byte(settledBody)

	result, err := svc.Ingest(context.Background(), body, domain.Sign("wrong-secret", body))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRejectedSignature, result)

	result, err = svc.Ingest(context.Background(), body, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRejectedSignature, result)

	var count int64
	require.NoError(t, db.Model(&eventdomain.EventRecord{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestIngest_UnknownStoreLooksLikeBadSignature(t *testing.T) {
	svc, _ := setupReceiver(t)
	body := []byte(`{"deliveryId":"d","type":"InvoiceSettled","invoiceId":"i","storeId":"nope"}`)

	result, err := svc.Ingest(context.Background(), body, domain.Sign("whsec_test", body))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRejectedSignature, result)
}

func TestIngest_RejectsMalformed(t *testing.T) {
	svc, _ := setupReceiver(t)

	cases := map[string]string{
		"not json":         `{{{`,
		"missing delivery": `{"type":"InvoiceSettled","invoiceId":"i","storeId":"s"}`,
		"missing invoice":  `{"deliveryId":"d","type":"InvoiceSettled","storeId":"s"}`,
		"unknown type":     `{"deliveryId":"d","type":"SomethingElse","invoiceId":"i","storeId":"s"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := svc.Ingest(context.Background(), []byte(body), "sha256=0000")
			require.NoError(t, err)
			assert.Equal(t, domain.ResultRejectedMalformed, result)
		})
	}
}

func TestIngest_StoresAuditOnlyEvents(t *testing.T) {
	svc, db := setupReceiver(t)
	body := []byte(`{"deliveryId":"del-2","type":"InvoiceCreated","invoiceId":"inv-1","storeId":"store-1"}`)

	result, err := svc.Ingest(context.Background(), body, domain.Sign("whsec_test", body))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAccepted, result)

	var record eventdomain.EventRecord
	require.NoError(t, db.First(&record).Error)
	assert.Equal(t, eventdomain.EventTypeInvoiceCreated, record.EventType)
	assert.False(t, eventdomain.IsRelevant(record.EventType))
}
