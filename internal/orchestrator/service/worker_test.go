package service

import (
	"context"
	"testing"
	"time"

	aggregatedomain "github.com/blocksettle/ledgerbridge/internal/aggregate/domain"
	"github.com/blocksettle/ledgerbridge/internal/config"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	ledgerdomain "github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func newWorker(f *fixture) *Worker {
	return NewWorker(WorkerParams{
		DB:    f.db,
		Log:   zap.NewNop(),
		Clock: f.clock,
		Cfg: config.Config{
			Reconcile: config.ReconcileConfig{
				WorkerBatchSize:   50,
				WorkerConcurrency: 2,
			},
		},
		Events: f.events,
		Svc:    f.svc,
	})
}

func insertEvent(t *testing.T, f *fixture, node *snowflake.Node, deliveryID, eventType, invoiceID string) {
	t.Helper()
	inserted, err := f.events.InsertEvent(context.Background(), f.db, &eventdomain.EventRecord{
		ID:         node.Generate(),
		DeliveryID: deliveryID,
		EventType:  eventType,
		InvoiceID:  invoiceID,
		StoreID:    "store-1",
		Payload:    datatypes.JSON(`{}`),
		ReceivedAt: f.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestWorker_ConsumesEventsAndReconciles(t *testing.T) {
	f := setupFixture(t)
	node, _ := snowflake.NewNode(2)

	invoice, leg := settledInvoice("inv-1", "100", "100")
	f.processor.setInvoice(invoice, leg)

	insertEvent(t, f, node, "del-1", eventdomain.EventTypeInvoicePaymentSettled, "inv-1")
	insertEvent(t, f, node, "del-2", eventdomain.EventTypeInvoiceSettled, "inv-1")

	worker := newWorker(f)
	n, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Two events for one invoice collapse into one recompute and one post.
	assert.Equal(t, 1, f.ledger.callCount())

	rows := outcomes(t, f.db, "inv-1")
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OutcomeSuccess, rows[0].Outcome)

	remaining, err := f.events.ClaimUnprocessed(context.Background(), f.db, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestWorker_AuditOnlyEventsAreConsumedWithoutDispatch(t *testing.T) {
	f := setupFixture(t)
	node, _ := snowflake.NewNode(2)

	insertEvent(t, f, node, "del-1", eventdomain.EventTypeInvoiceCreated, "inv-1")

	worker := newWorker(f)
	n, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.ledger.callCount())
}

func TestWorker_HaltLeavesEventsQueued(t *testing.T) {
	f := setupFixture(t)
	node, _ := snowflake.NewNode(2)

	invoice, leg := settledInvoice("inv-1", "100", "100")
	f.processor.setInvoice(invoice, leg)
	insertEvent(t, f, node, "del-1", eventdomain.EventTypeInvoiceSettled, "inv-1")

	f.ledger.script = []error{ledgerdomain.ErrUnauthorized}
	f.tokens.setRefreshErr(ledgerdomain.ErrRefreshFailed)

	worker := newWorker(f)
	n, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The event survives the halt and is claimable again.
	remaining, err := f.events.ClaimUnprocessed(context.Background(), f.db, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	// The aggregate was still recomputed before dispatch was refused.
	var aggregate aggregatedomain.InvoiceAggregate
	require.NoError(t, f.db.First(&aggregate, "invoice_id = ?", "inv-1").Error)
	assert.Equal(t, aggregatedomain.StatusFull, aggregate.ReconciliationStatus)

	// After reconnecting, the next run drains it.
	f.tokens.setRefreshErr(nil)
	f.ledger.script = nil
	require.NoError(t, f.svc.Reconnect(context.Background()))

	n, err = worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows := outcomes(t, f.db, "inv-1")
	require.Len(t, rows, 1)
	assert.Equal(t, string(aggregatedomain.StatusFull), rows[0].Status)
}

func TestWorker_FailedInvoiceDoesNotWedgeQueue(t *testing.T) {
	f := setupFixture(t)
	node, _ := snowflake.NewNode(2)

	bad, badLeg := settledInvoice("inv-bad", "100", "100")
	good, goodLeg := settledInvoice("inv-good", "100", "100")
	f.processor.setInvoice(bad, badLeg)
	f.processor.setInvoice(good, goodLeg)

	insertEvent(t, f, node, "del-1", eventdomain.EventTypeInvoiceSettled, "inv-bad")
	insertEvent(t, f, node, "del-2", eventdomain.EventTypeInvoiceSettled, "inv-good")

	f.ledger.script = []error{
		&ledgerdomain.BackendError{StatusCode: 400, Body: "rejected"},
	}

	worker := newWorker(f)
	n, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := f.events.ClaimUnprocessed(context.Background(), f.db, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestWorker_UnknownInvoiceIsConsumedWithTerminalState(t *testing.T) {
	f := setupFixture(t)
	node, _ := snowflake.NewNode(2)

	// The processor has never heard of this invoice; there is no aggregate
	// row to hang a failure on.
	insertEvent(t, f, node, "del-1", eventdomain.EventTypeInvoiceSettled, "inv-gone")

	worker := newWorker(f)
	n, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.ledger.callCount())

	remaining, err := f.events.ClaimUnprocessed(context.Background(), f.db, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// The failure is not silent: the dispatch state records it.
	state, err := f.svc.DispatchState(context.Background(), "inv-gone")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, domain.DispatchStateFailedTerminal, state.State)
}

func TestWorker_ProcessorOutageLeavesEventsQueued(t *testing.T) {
	f := setupFixture(t)
	node, _ := snowflake.NewNode(2)

	f.processor.setErr(processordomain.ErrUnavailable)
	insertEvent(t, f, node, "del-1", eventdomain.EventTypeInvoiceSettled, "inv-1")

	worker := newWorker(f)
	n, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	remaining, err := f.events.ClaimUnprocessed(context.Background(), f.db, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	// Once the processor is reachable again the next poll drains the event.
	f.processor.setErr(nil)
	invoice, leg := settledInvoice("inv-1", "100", "100")
	f.processor.setInvoice(invoice, leg)

	n, err = worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows := outcomes(t, f.db, "inv-1")
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OutcomeSuccess, rows[0].Outcome)
}

func TestGroupByInvoice_PreservesOrder(t *testing.T) {
	now := time.Now().UTC()
	batch := []eventdomain.EventRecord{
		{InvoiceID: "a", StoreID: "s", ReceivedAt: now},
		{InvoiceID: "b", StoreID: "s", ReceivedAt: now},
		{InvoiceID: "a", StoreID: "s", ReceivedAt: now},
	}
	groups := groupByInvoice(batch)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].invoiceID)
	assert.Len(t, groups[0].events, 2)
	assert.Equal(t, "b", groups[1].invoiceID)
	assert.Len(t, groups[1].events, 1)
}
