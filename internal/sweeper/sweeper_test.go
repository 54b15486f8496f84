package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	orchestratordomain "github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storesStub struct {
	stores []storedomain.Store
}

func (s *storesStub) WebhookSecret(ctx context.Context, storeID string) (string, error) {
	return "", storedomain.ErrStoreNotFound
}

func (s *storesStub) Register(ctx context.Context, storeID, label, secret string) error {
	return nil
}

func (s *storesStub) List(ctx context.Context) ([]storedomain.Store, error) {
	return s.stores, nil
}

type listingStub struct {
	mu       sync.Mutex
	invoices []processordomain.Invoice
	since    []time.Time
}

func (p *listingStub) GetInvoice(ctx context.Context, storeID, invoiceID string) (*processordomain.Invoice, error) {
	return nil, processordomain.ErrInvoiceNotFound
}

func (p *listingStub) GetInvoicePayments(ctx context.Context, storeID, invoiceID string) ([]processordomain.PaymentLeg, error) {
	return nil, nil
}

func (p *listingStub) ListSettledInvoices(ctx context.Context, storeID string, since time.Time, limit int) ([]processordomain.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.since = append(p.since, since)
	return p.invoices, nil
}

type orchestratorStub struct {
	mu        sync.Mutex
	processed []string
	err       error
	state     orchestratordomain.AuthState
}

func (o *orchestratorStub) ProcessInvoice(ctx context.Context, storeID, invoiceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.processed = append(o.processed, invoiceID)
	return nil
}

func (o *orchestratorStub) Redrive(ctx context.Context, invoiceID string) error { return nil }

func (o *orchestratorStub) AuthStatus() orchestratordomain.AuthStatus {
	state := o.state
	if state == "" {
		state = orchestratordomain.AuthStateNormal
	}
	return orchestratordomain.AuthStatus{State: state}
}

func (o *orchestratorStub) Reconnect(ctx context.Context) error { return nil }

func (o *orchestratorStub) ListOutcomes(ctx context.Context, invoiceID string) ([]orchestratordomain.ReconciliationOutcome, error) {
	return nil, nil
}

func (o *orchestratorStub) ListRecent(ctx context.Context, limit, offset int) ([]orchestratordomain.ReconciliationOutcome, error) {
	return nil, nil
}

func (o *orchestratorStub) DispatchState(ctx context.Context, invoiceID string) (*orchestratordomain.DispatchState, error) {
	return nil, nil
}

func setupSweeper(t *testing.T, processor *listingStub, orchestrator *orchestratorStub) (*Sweeper, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite gives every pooled connection its own database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&SweepCheckpoint{}))

	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	sweeper := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		Cfg: config.Config{
			Sweep: config.SweepConfig{
				Enabled:   true,
				Interval:  time.Hour,
				Grace:     10 * time.Minute,
				BatchSize: 100,
				LockTTL:   5 * time.Minute,
			},
		},
		Stores: &storesStub{stores: []storedomain.Store{
			{StoreID: "store-1", Active: true},
			{StoreID: "store-2", Active: false},
		}},
		Processor:    processor,
		Orchestrator: orchestrator,
		Locker:       nil,
	})
	return sweeper, db, fakeClock
}

func TestRunOnce_SweepsActiveStoresOnly(t *testing.T) {
	processor := &listingStub{invoices: []processordomain.Invoice{
		{ID: "inv-1", StoreID: "store-1"},
		{ID: "inv-2", StoreID: "store-1"},
	}}
	orchestrator := &orchestratorStub{}
	sweeper, _, _ := setupSweeper(t, processor, orchestrator)

	n, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"inv-1", "inv-2"}, orchestrator.processed)
	// Only the active store was listed.
	assert.Len(t, processor.since, 1)
}

func TestRunOnce_CheckpointAdvancesWithGraceOverlap(t *testing.T) {
	processor := &listingStub{}
	orchestrator := &orchestratorStub{}
	sweeper, db, fakeClock := setupSweeper(t, processor, orchestrator)

	firstStart := fakeClock.Now()
	_, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	// First sweep looks one full interval back.
	require.Len(t, processor.since, 1)
	assert.WithinDuration(t, firstStart.Add(-time.Hour), processor.since[0], 0)

	var checkpoint SweepCheckpoint
	require.NoError(t, db.First(&checkpoint, "store_id = ?", "store-1").Error)
	assert.WithinDuration(t, firstStart, checkpoint.LastSweepAt, 0)

	// The next sweep re-reads the grace window behind the checkpoint.
	fakeClock.Advance(time.Hour)
	_, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, processor.since, 2)
	assert.WithinDuration(t, firstStart.Add(-10*time.Minute), processor.since[1], 0)
}

func TestRunOnce_SkipsWhenHalted(t *testing.T) {
	processor := &listingStub{invoices: []processordomain.Invoice{{ID: "inv-1"}}}
	orchestrator := &orchestratorStub{state: orchestratordomain.AuthStateHalted}
	sweeper, _, _ := setupSweeper(t, processor, orchestrator)

	n, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, processor.since)
}

func TestRunOnce_ReconciliationErrorsDoNotStopTheSweep(t *testing.T) {
	processor := &listingStub{invoices: []processordomain.Invoice{
		{ID: "inv-1"}, {ID: "inv-2"},
	}}
	orchestrator := &orchestratorStub{err: processordomain.ErrUnavailable}
	sweeper, db, _ := setupSweeper(t, processor, orchestrator)

	n, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The checkpoint still advances; the grace window plus the webhook
	// path cover the failed invoices.
	var count int64
	require.NoError(t, db.Model(&SweepCheckpoint{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
