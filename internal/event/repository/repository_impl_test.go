package repository

import (
	"context"
	"testing"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/event/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite gives every pooled connection its own database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.EventRecord{}))
	return db
}

func newEvent(node *snowflake.Node, deliveryID, invoiceID string) *domain.EventRecord {
	return &domain.EventRecord{
		ID:         node.Generate(),
		DeliveryID: deliveryID,
		EventType:  domain.EventTypeInvoiceSettled,
		InvoiceID:  invoiceID,
		StoreID:    "store-1",
		Payload:    datatypes.JSON(`{"deliveryId":"` + deliveryID + `"}`),
		ReceivedAt: time.Now().UTC(),
	}
}

func TestInsertEvent_DuplicateDeliveryIsDropped(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	inserted, err := repo.InsertEvent(ctx, db, newEvent(node, "del-1", "inv-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same delivery id, new row id: the redelivery must not create a row.
	inserted, err = repo.InsertEvent(ctx, db, newEvent(node, "del-1", "inv-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int64
	require.NoError(t, db.Model(&domain.EventRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestClaimUnprocessed_ReceiptOrderAndMarkProcessed(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	first := newEvent(node, "del-1", "inv-1")
	second := newEvent(node, "del-2", "inv-2")
	second.ReceivedAt = first.ReceivedAt.Add(time.Second)

	_, err := repo.InsertEvent(ctx, db, first)
	require.NoError(t, err)
	_, err = repo.InsertEvent(ctx, db, second)
	require.NoError(t, err)

	claimed, err := repo.ClaimUnprocessed(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "del-1", claimed[0].DeliveryID)
	assert.Equal(t, "del-2", claimed[1].DeliveryID)

	require.NoError(t, repo.MarkProcessed(ctx, db, first.ID, time.Now().UTC()))

	claimed, err = repo.ClaimUnprocessed(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "del-2", claimed[0].DeliveryID)
}

func TestFindByDeliveryID(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	_, err := repo.InsertEvent(ctx, db, newEvent(node, "del-9", "inv-9"))
	require.NoError(t, err)

	found, err := repo.FindByDeliveryID(ctx, db, "del-9")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "inv-9", found.InvoiceID)

	missing, err := repo.FindByDeliveryID(ctx, db, "del-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListByInvoice(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		event := newEvent(node, "del-"+id, "inv-1")
		_, err := repo.InsertEvent(ctx, db, event)
		require.NoError(t, err)
	}
	_, err := repo.InsertEvent(ctx, db, newEvent(node, "del-x", "inv-2"))
	require.NoError(t, err)

	events, err := repo.ListByInvoice(ctx, db, "inv-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
