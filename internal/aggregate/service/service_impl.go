package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blocksettle/ledgerbridge/internal/aggregate/domain"
	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Repo      domain.Repository
	Processor processordomain.Client
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         domain.Repository
	processor    processordomain.Client
	toleranceBps int64
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("aggregate.service"),
		clock:        p.Clock,
		repo:         p.Repo,
		processor:    p.Processor,
		toleranceBps: p.Cfg.Reconcile.ToleranceBps,
	}
}

func (s *Service) Recompute(ctx context.Context, storeID, invoiceID string) (*domain.InvoiceAggregate, error) {
	storeID = strings.TrimSpace(storeID)
	invoiceID = strings.TrimSpace(invoiceID)
	if storeID == "" || invoiceID == "" {
		return nil, fmt.Errorf("recompute: store and invoice ids are required")
	}

	// Events can be partial summaries, so the source of truth for amounts
	// is always the processor's current invoice and payment detail.
	invoice, err := s.processor.GetInvoice(ctx, storeID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("fetch invoice %s: %w", invoiceID, err)
	}
	legs, err := s.processor.GetInvoicePayments(ctx, storeID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("fetch payments for %s: %w", invoiceID, err)
	}

	settled := make([]domain.PaymentLeg, 0, len(legs))
	paid := decimal.Zero
	for _, leg := range legs {
		if leg.Status != processordomain.PaymentStatusSettled {
			continue
		}
		settled = append(settled, domain.PaymentLeg{
			TxID:   leg.TxID,
			Value:  leg.Value,
			PaidAt: leg.PaidAt,
		})
		paid = paid.Add(leg.Value)
	}

	existing, err := s.repo.Find(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	aggregate := &domain.InvoiceAggregate{
		InvoiceID:            invoiceID,
		StoreID:              storeID,
		InvoiceAmount:        invoice.Amount,
		Currency:             invoice.Currency,
		PaidAmount:           paid,
		PaymentCount:         len(settled),
		AdditionalStatus:     invoice.AdditionalStatus,
		ReconciliationStatus: domain.StatusPending,
		LastEventAt:          now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if existing != nil {
		aggregate.CreatedAt = existing.CreatedAt
		// Invoice amount and currency are locked at first sight; a source
		// that starts reporting something else is not trusted to shrink
		// or reprice the obligation.
		aggregate.InvoiceAmount = existing.InvoiceAmount
		if existing.Currency != "" {
			aggregate.Currency = existing.Currency
		}
		// Confirmed legs are never retracted by this system.
		if paid.LessThan(existing.PaidAmount) {
			aggregate.PaidAmount = existing.PaidAmount
			aggregate.PaymentCount = existing.PaymentCount
			aggregate.Payments = existing.Payments
			settled = nil
		}
	}

	if settled != nil {
		encoded, err := json.Marshal(settled)
		if err != nil {
			return nil, err
		}
		aggregate.Payments = datatypes.JSON(encoded)
	}

	terminal := processordomain.IsTerminal(invoice.Status) && invoice.Status != processordomain.InvoiceStatusSettled
	derived := domain.DeriveStatus(aggregate.PaidAmount, aggregate.InvoiceAmount, terminal, s.toleranceBps)

	if existing != nil && existing.ReconciliationStatus.Regresses(derived) {
		// Replayed or stale events must not walk a verdict backwards.
		derived = existing.ReconciliationStatus
	}
	aggregate.ReconciliationStatus = derived

	if err := s.repo.Upsert(ctx, s.db, aggregate); err != nil {
		return nil, err
	}

	s.log.Debug("aggregate recomputed",
		zap.String("store_id", storeID),
		zap.String("invoice_id", invoiceID),
		zap.String("status", string(derived)),
		zap.String("paid", aggregate.PaidAmount.String()),
		zap.String("amount", aggregate.InvoiceAmount.String()),
	)
	return aggregate, nil
}

func (s *Service) MarkFailed(ctx context.Context, invoiceID string, reason string) error {
	existing, err := s.repo.Find(ctx, s.db, invoiceID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.ReconciliationStatus == domain.StatusFull || existing.ReconciliationStatus == domain.StatusOverpaid {
		return nil
	}
	s.log.Warn("marking invoice failed",
		zap.String("invoice_id", invoiceID),
		zap.String("reason", reason),
	)
	return s.repo.UpdateStatus(ctx, s.db, invoiceID, domain.StatusFailed, existing.AdditionalStatus)
}

func (s *Service) Get(ctx context.Context, invoiceID string) (*domain.InvoiceAggregate, error) {
	return s.repo.Find(ctx, s.db, invoiceID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.InvoiceAggregate, error) {
	return s.repo.List(ctx, s.db, limit, offset)
}
