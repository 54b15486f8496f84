package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	aggregatedomain "github.com/blocksettle/ledgerbridge/internal/aggregate/domain"
	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	ledgerdomain "github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/blocksettle/ledgerbridge/internal/observability/logger"
	"github.com/blocksettle/ledgerbridge/internal/observability/metrics"
	"github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Cfg        config.Config
	GenID      *snowflake.Node
	Repo       domain.Repository
	Events     eventdomain.Repository
	Aggregates aggregatedomain.Service
	Ledger     ledgerdomain.Adapter
	Tokens     ledgerdomain.TokenSource
	Metrics    *metrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.Config
	genID      *snowflake.Node
	repo       domain.Repository
	events     eventdomain.Repository
	aggregates aggregatedomain.Service
	ledger     ledgerdomain.Adapter
	tokens     ledgerdomain.TokenSource
	metrics    *metrics.Metrics

	// authMu guards the global backend connection state. One failed token
	// refresh halts every dispatch until an operator reconnects.
	authMu    sync.Mutex
	authState domain.AuthState
	haltedAt  *time.Time
	authErr   string

	// invoiceMu serializes work per invoice while leaving distinct
	// invoices free to proceed concurrently.
	invoiceMu sync.Mutex
	invoices  map[string]*sync.Mutex

	// waits tracks in-flight retry backoffs by invoice so a redrive can
	// cut a wait short.
	waitsMu sync.Mutex
	waits   map[string]context.CancelFunc
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("orchestrator"),
		clock:      p.Clock,
		cfg:        p.Cfg,
		genID:      p.GenID,
		repo:       p.Repo,
		events:     p.Events,
		aggregates: p.Aggregates,
		ledger:     p.Ledger,
		tokens:     p.Tokens,
		metrics:    p.Metrics,
		authState:  domain.AuthStateNormal,
		invoices:   map[string]*sync.Mutex{},
		waits:      map[string]context.CancelFunc{},
	}
}

func (s *Service) ProcessInvoice(ctx context.Context, storeID, invoiceID string) error {
	lock := s.invoiceLock(invoiceID)
	lock.Lock()
	defer lock.Unlock()

	log := logger.WithInvoice(s.log, storeID, invoiceID)

	// Aggregation keeps running during an auth halt; only the dispatch
	// below is gated on the backend connection.
	aggregate, err := s.aggregates.Recompute(ctx, storeID, invoiceID)
	if err != nil {
		if errors.Is(err, processordomain.ErrUnavailable) {
			// Transient processor outage; the caller keeps the work queued.
			log.Warn("processor unavailable, recompute deferred", zap.Error(err))
			return err
		}
		log.Error("invoice recompute failed", zap.Error(err))
		if markErr := s.aggregates.MarkFailed(ctx, invoiceID, err.Error()); markErr != nil {
			log.Error("mark failed", zap.Error(markErr))
		}
		// No aggregate row may exist yet; the dispatch state row keeps the
		// failure visible until a redrive or the sweep retries it.
		if stateErr := s.setDispatchState(ctx, invoiceID, domain.DispatchStateFailedTerminal, 0, err.Error()); stateErr != nil {
			log.Error("record dispatch state", zap.Error(stateErr))
		}
		return err
	}

	switch {
	case aggregate.ReconciliationStatus == aggregatedomain.StatusInvalidated:
		// Invalidated invoices are recorded and audited but never posted.
		log.Info("invoice invalidated, skipping ledger dispatch",
			zap.String("additional_status", aggregate.AdditionalStatus),
		)
		return nil
	case !aggregate.ReconciliationStatus.Dispatchable():
		log.Debug("invoice not payable yet",
			zap.String("status", string(aggregate.ReconciliationStatus)),
		)
		return nil
	}

	if s.halted() {
		return domain.ErrDispatchHalted
	}
	return s.dispatch(ctx, log, aggregate)
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, aggregate *aggregatedomain.InvoiceAggregate) error {
	status := string(aggregate.ReconciliationStatus)
	key := domain.IdempotencyKey(aggregate.InvoiceID, status)

	done, err := s.repo.HasSuccess(ctx, s.db, key)
	if err != nil {
		return err
	}
	if done {
		if _, err := s.recordOutcome(ctx, aggregate, domain.OutcomeSkippedDuplicate, key, 0, "", ""); err != nil {
			return err
		}
		log.Info("dispatch already reconciled, skipping", zap.String("idempotency_key", key))
		return nil
	}

	if err := s.setDispatchState(ctx, aggregate.InvoiceID, domain.DispatchStateDispatching, 0, ""); err != nil {
		return err
	}

	payload := ledgerdomain.Payload{
		InvoiceID:     aggregate.InvoiceID,
		StoreID:       aggregate.StoreID,
		Amount:        aggregate.PaidAmount,
		InvoiceAmount: aggregate.InvoiceAmount,
		Currency:      aggregate.Currency,
		Status:        status,
		PaymentCount:  aggregate.PaymentCount,
		SettledAt:     aggregate.LastEventAt,
		Reference:     aggregate.InvoiceID,
		Notes: fmt.Sprintf("invoice %s: paid %s of %s %s (%s)",
			aggregate.InvoiceID, aggregate.PaidAmount, aggregate.InvoiceAmount,
			aggregate.Currency, status),
	}

	backoff := s.cfg.Reconcile.Backoff
	attempts := 0
	var lastErr error

	for attempt := 0; attempt <= len(backoff); attempt++ {
		attempts++
		start := s.clock.Now()
		objectID, err := s.post(ctx, payload)
		s.metrics.RecordDispatch(ctx, status, s.clock.Now().Sub(start))

		if err == nil {
			inserted, recErr := s.recordOutcome(ctx, aggregate, domain.OutcomeSuccess, key, attempts, objectID, "")
			if recErr != nil {
				return recErr
			}
			if !inserted {
				// A concurrent dispatch won the unique index race; the
				// posting it made covers this one.
				if _, recErr := s.recordOutcome(ctx, aggregate, domain.OutcomeSkippedDuplicate, key, attempts, objectID, ""); recErr != nil {
					return recErr
				}
			}
			log.Info("invoice reconciled",
				zap.String("status", status),
				zap.String("ledger_object_id", objectID),
				zap.Int("attempts", attempts),
			)
			return s.setDispatchState(ctx, aggregate.InvoiceID, domain.DispatchStateReconciled, attempts, "")
		}

		lastErr = err

		if errors.Is(err, ledgerdomain.ErrUnauthorized) {
			if refreshErr := s.recoverAuth(ctx); refreshErr != nil {
				if stateErr := s.setDispatchState(ctx, aggregate.InvoiceID, domain.DispatchStateFailedRetryable, attempts, err.Error()); stateErr != nil {
					log.Error("record dispatch state", zap.Error(stateErr))
				}
				return domain.ErrDispatchHalted
			}
			// Fresh token; the attempt itself is not consumed.
			attempt--
			attempts--
			continue
		}

		if !ledgerdomain.IsRetryable(err) {
			log.Error("ledger rejected dispatch", zap.Error(err))
			if _, recErr := s.recordOutcome(ctx, aggregate, domain.OutcomeFailed, key, attempts, "", err.Error()); recErr != nil {
				return recErr
			}
			if markErr := s.aggregates.MarkFailed(ctx, aggregate.InvoiceID, err.Error()); markErr != nil {
				log.Error("mark failed", zap.Error(markErr))
			}
			if stateErr := s.setDispatchState(ctx, aggregate.InvoiceID, domain.DispatchStateFailedTerminal, attempts, err.Error()); stateErr != nil {
				return stateErr
			}
			return err
		}

		if attempt < len(backoff) {
			log.Warn("ledger dispatch failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", backoff[attempt]),
				zap.Int("attempt", attempts),
			)
			if waitErr := s.waitBackoff(ctx, aggregate.InvoiceID, backoff[attempt]); waitErr != nil {
				return waitErr
			}
		}
	}

	log.Error("ledger dispatch exhausted retries", zap.Error(lastErr), zap.Int("attempts", attempts))
	if _, recErr := s.recordOutcome(ctx, aggregate, domain.OutcomeFailed, key, attempts, "", lastErr.Error()); recErr != nil {
		return recErr
	}
	// Out of retries; only a manual redrive (or a later status change) can
	// dispatch this invoice again.
	if err := s.setDispatchState(ctx, aggregate.InvoiceID, domain.DispatchStateFailedTerminal, attempts, lastErr.Error()); err != nil {
		return err
	}
	return domain.ErrRetriesExceeded
}

func (s *Service) post(ctx context.Context, payload ledgerdomain.Payload) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Ledger.CallTimeout)
	defer cancel()
	if s.cfg.Ledger.Mode == config.LedgerModeInvoicePayment {
		return s.ledger.ReconcileInvoicePayment(callCtx, payload)
	}
	return s.ledger.ReconcileDeposit(callCtx, payload)
}

func (s *Service) recordOutcome(ctx context.Context, aggregate *aggregatedomain.InvoiceAggregate, outcome, key string, attempts int, ledgerObjectID, lastErr string) (bool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	row := &domain.ReconciliationOutcome{
		ID:             s.genID.Generate(),
		InvoiceID:      aggregate.InvoiceID,
		StoreID:        aggregate.StoreID,
		Status:         string(aggregate.ReconciliationStatus),
		Outcome:        outcome,
		IdempotencyKey: key,
		Amount:         aggregate.PaidAmount,
		Currency:       aggregate.Currency,
		LedgerMode:     s.cfg.Ledger.Mode,
		LedgerObjectID: ledgerObjectID,
		Attempts:       attempts,
		LastError:      lastErr,
		CreatedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertOutcome(ctx, s.db, row)
	if err != nil {
		return false, err
	}
	if inserted {
		s.metrics.RecordOutcome(ctx, outcome)
	}
	return inserted, nil
}

func (s *Service) setDispatchState(ctx context.Context, invoiceID, state string, attempts int, lastErr string) error {
	return s.repo.UpsertDispatchState(ctx, s.db, &domain.DispatchState{
		InvoiceID: invoiceID,
		State:     state,
		Attempts:  attempts,
		LastError: lastErr,
		UpdatedAt: s.clock.Now(),
	})
}

// waitBackoff sleeps for d unless the context dies or a redrive for the
// invoice cancels the wait.
func (s *Service) waitBackoff(ctx context.Context, invoiceID string, d time.Duration) error {
	waitCtx, cancel := context.WithCancel(ctx)
	s.waitsMu.Lock()
	s.waits[invoiceID] = cancel
	s.waitsMu.Unlock()
	defer func() {
		cancel()
		s.waitsMu.Lock()
		if s.waits[invoiceID] != nil {
			delete(s.waits, invoiceID)
		}
		s.waitsMu.Unlock()
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Cancelled by redrive; retry immediately.
		return nil
	}
}

func (s *Service) Redrive(ctx context.Context, invoiceID string) error {
	s.waitsMu.Lock()
	if cancel, ok := s.waits[invoiceID]; ok {
		cancel()
	}
	s.waitsMu.Unlock()

	aggregate, err := s.aggregates.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if aggregate == nil {
		return domain.ErrInvoiceUnknown
	}
	s.log.Info("redrive requested", zap.String("invoice_id", invoiceID))
	return s.ProcessInvoice(ctx, aggregate.StoreID, invoiceID)
}

func (s *Service) ListOutcomes(ctx context.Context, invoiceID string) ([]domain.ReconciliationOutcome, error) {
	return s.repo.ListByInvoice(ctx, s.db, invoiceID)
}

func (s *Service) ListRecent(ctx context.Context, limit, offset int) ([]domain.ReconciliationOutcome, error) {
	return s.repo.ListRecent(ctx, s.db, limit, offset)
}

func (s *Service) DispatchState(ctx context.Context, invoiceID string) (*domain.DispatchState, error) {
	return s.repo.FindDispatchState(ctx, s.db, invoiceID)
}

func (s *Service) invoiceLock(invoiceID string) *sync.Mutex {
	s.invoiceMu.Lock()
	defer s.invoiceMu.Unlock()
	lock, ok := s.invoices[invoiceID]
	if !ok {
		lock = &sync.Mutex{}
		s.invoices[invoiceID] = lock
	}
	return lock
}
