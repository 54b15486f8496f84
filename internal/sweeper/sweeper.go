package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/observability/metrics"
	orchestratordomain "github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Cfg          config.Config
	Stores       storedomain.Service
	Processor    processordomain.Client
	Orchestrator orchestratordomain.Service
	Locker       *Locker `optional:"true"`
	Metrics      *metrics.Metrics
}

// Sweeper is the safety net under the webhook path. On an interval it asks
// the processor for invoices settled since the last checkpoint and pushes
// each through the same reconciliation path the webhooks use, so a missed
// delivery surfaces within one sweep interval.
type Sweeper struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	cfg          config.SweepConfig
	stores       storedomain.Service
	processor    processordomain.Client
	orchestrator orchestratordomain.Service
	locker       *Locker
	metrics      *metrics.Metrics
}

func New(p Params) *Sweeper {
	return &Sweeper{
		db:           p.DB,
		log:          p.Log.Named("sweeper"),
		clock:        p.Clock,
		cfg:          p.Cfg.Sweep,
		stores:       p.Stores,
		processor:    p.Processor,
		orchestrator: p.Orchestrator,
		locker:       p.Locker,
		metrics:      p.Metrics,
	}
}

// RunOnce sweeps every active store once and returns the number of invoices
// pushed through reconciliation.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.orchestrator.AuthStatus().State == orchestratordomain.AuthStateHalted {
		s.log.Warn("dispatch halted, skipping sweep")
		return 0, nil
	}

	stores, err := s.stores.List(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, store := range stores {
		if !store.Active {
			continue
		}
		n, err := s.sweepStore(ctx, store.StoreID)
		total += n
		if err != nil {
			s.log.Error("store sweep failed",
				zap.String("store_id", store.StoreID),
				zap.Error(err),
			)
		}
	}
	return total, nil
}

func (s *Sweeper) sweepStore(ctx context.Context, storeID string) (int, error) {
	key := "ledgerbridge:sweep:" + storeID
	token, acquired, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		s.log.Debug("sweep lock held elsewhere", zap.String("store_id", storeID))
		return 0, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	sweepStart := s.clock.Now()

	checkpoint, err := findCheckpoint(ctx, s.db, storeID)
	if err != nil {
		return 0, err
	}
	// First sweep of a store reads one full interval back; later sweeps
	// overlap the previous checkpoint by the grace window so a settlement
	// racing the last sweep is still covered.
	since := sweepStart.Add(-s.cfg.Interval)
	if checkpoint != nil {
		since = checkpoint.LastSweepAt.Add(-s.cfg.Grace)
	}

	invoices, err := s.processor.ListSettledInvoices(ctx, storeID, since, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, invoice := range invoices {
		err := s.orchestrator.ProcessInvoice(ctx, storeID, invoice.ID)
		switch {
		case err == nil:
			count++
			s.metrics.RecordSweepInvoice(ctx, "reconciled")
		case errors.Is(err, orchestratordomain.ErrDispatchHalted):
			s.metrics.RecordSweepInvoice(ctx, "halted")
			return count, err
		default:
			s.metrics.RecordSweepInvoice(ctx, "error")
			s.log.Error("sweep reconciliation failed",
				zap.String("store_id", storeID),
				zap.String("invoice_id", invoice.ID),
				zap.Error(err),
			)
		}
	}

	if err := saveCheckpoint(ctx, s.db, &SweepCheckpoint{
		StoreID:     storeID,
		LastSweepAt: sweepStart,
		UpdatedAt:   s.clock.Now(),
	}); err != nil {
		return count, err
	}

	if count > 0 {
		s.log.Info("store sweep complete",
			zap.String("store_id", storeID),
			zap.Int("invoices", count),
			zap.Time("since", since),
		)
	}
	return count, nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			n, err := s.RunOnce(runCtx)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("sweep run failed", zap.Error(err))
			}
			if n > 0 {
				s.log.Info("sweep run complete", zap.Int("invoices", n))
			}
		}
	}
}
