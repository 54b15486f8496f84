package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	"github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WorkerParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Cfg    config.Config
	Events eventdomain.Repository
	Svc    domain.Service
}

// Worker drains unprocessed webhook events into the orchestrator. Events
// stay unprocessed until their invoice has been handled, so a crash or a
// halt loses nothing; the next poll picks them up again.
type Worker struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	cfg    config.ReconcileConfig
	events eventdomain.Repository
	svc    domain.Service
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		db:     p.DB,
		log:    p.Log.Named("orchestrator.worker"),
		clock:  p.Clock,
		cfg:    p.Cfg.Reconcile,
		events: p.Events,
		svc:    p.Svc,
	}
}

type invoiceGroup struct {
	storeID   string
	invoiceID string
	events    []eventdomain.EventRecord
}

// RunOnce claims one batch of unprocessed events, handles each distinct
// invoice once, and marks the consumed events processed. It returns the
// number of events consumed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	// The claim transaction only covers the read; dispatch happens outside
	// it. If another instance claims the same rows in between, the success
	// index turns the duplicate posting into a skip.
	tx := w.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	batch, err := w.events.ClaimUnprocessed(ctx, tx, w.cfg.WorkerBatchSize)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit().Error; err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	groups := groupByInvoice(batch)

	// Invoices run concurrently; events for one invoice collapse into a
	// single recompute since the aggregate always re-reads the processor.
	sem := make(chan struct{}, w.concurrency())
	var wg sync.WaitGroup
	var mu sync.Mutex
	consumed := make([]snowflake.ID, 0, len(batch))

	for _, group := range groups {
		group := group
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			done := w.handleGroup(ctx, group)
			if len(done) > 0 {
				mu.Lock()
				consumed = append(consumed, done...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	now := w.clock.Now()
	for _, id := range consumed {
		if err := w.events.MarkProcessed(ctx, w.db, id, now); err != nil {
			return 0, err
		}
	}
	return len(consumed), nil
}

// handleGroup processes one invoice and returns the event ids that were
// consumed. A halted backend or an unreachable processor consumes nothing;
// during a halt the aggregate is still recomputed before the dispatch is
// refused.
func (w *Worker) handleGroup(ctx context.Context, group invoiceGroup) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(group.events))

	relevant := false
	for _, event := range group.events {
		if eventdomain.IsRelevant(event.EventType) {
			relevant = true
		}
		ids = append(ids, event.ID)
	}
	if !relevant {
		return ids
	}

	err := w.svc.ProcessInvoice(ctx, group.storeID, group.invoiceID)
	if err == nil {
		return ids
	}
	if errors.Is(err, domain.ErrDispatchHalted) {
		w.log.Warn("dispatch halted, leaving events queued",
			zap.String("invoice_id", group.invoiceID),
			zap.Int("events", len(ids)),
		)
		return nil
	}
	if errors.Is(err, processordomain.ErrUnavailable) {
		w.log.Warn("processor unavailable, leaving events queued",
			zap.String("invoice_id", group.invoiceID),
			zap.Int("events", len(ids)),
		)
		return nil
	}
	// Failures are recorded as outcomes; the events are consumed so the
	// queue does not wedge on one bad invoice. Redrive or the sweep can
	// retry later.
	w.log.Error("invoice processing failed",
		zap.String("invoice_id", group.invoiceID),
		zap.Error(err),
	)
	return ids
}

func (w *Worker) RunForever(ctx context.Context) {
	interval := w.cfg.WorkerPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error("event drain failed", zap.Error(err))
			}
			if n > 0 {
				w.log.Debug("events consumed", zap.Int("count", n))
			}
		}
	}
}

func (w *Worker) concurrency() int {
	if w.cfg.WorkerConcurrency <= 0 {
		return 1
	}
	return w.cfg.WorkerConcurrency
}

func groupByInvoice(batch []eventdomain.EventRecord) []invoiceGroup {
	index := map[string]int{}
	groups := make([]invoiceGroup, 0, len(batch))
	for _, event := range batch {
		i, ok := index[event.InvoiceID]
		if !ok {
			i = len(groups)
			index[event.InvoiceID] = i
			groups = append(groups, invoiceGroup{
				storeID:   event.StoreID,
				invoiceID: event.InvoiceID,
			})
		}
		groups[i].events = append(groups[i].events, event)
	}
	return groups
}
