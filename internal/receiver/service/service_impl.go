package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	"github.com/blocksettle/ledgerbridge/internal/observability/metrics"
	"github.com/blocksettle/ledgerbridge/internal/receiver/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Events  eventdomain.Repository
	Stores  storedomain.Service
	Metrics *metrics.Metrics
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	events  eventdomain.Repository
	stores  storedomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("receiver"),
		clock:   p.Clock,
		genID:   p.GenID,
		events:  p.Events,
		stores:  p.Stores,
		metrics: p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, body []byte, signature string) (domain.Result, error) {
	envelope, err := parseEnvelope(body)
	if err != nil {
		s.log.Warn("malformed webhook delivery", zap.Error(err))
		return domain.ResultRejectedMalformed, nil
	}

	// The signature is keyed per store, so the envelope has to be parsed
	// before verification. An unknown or inactive store rejects like a bad
	// signature; the response must not reveal which stores exist.
	secret, err := s.stores.WebhookSecret(ctx, envelope.StoreID)
	if err != nil {
		s.log.Warn("webhook for unresolvable store",
			zap.String("store_id", envelope.StoreID),
			zap.Error(err),
		)
		return domain.ResultRejectedSignature, nil
	}
	if !domain.VerifySignature(secret, body, signature) {
		s.log.Warn("webhook signature mismatch",
			zap.String("store_id", envelope.StoreID),
			zap.String("delivery_id", envelope.DeliveryID),
		)
		return domain.ResultRejectedSignature, nil
	}

	record := &eventdomain.EventRecord{
		ID:         s.genID.Generate(),
		DeliveryID: envelope.DeliveryID,
		EventType:  envelope.Type,
		InvoiceID:  envelope.InvoiceID,
		StoreID:    envelope.StoreID,
		Payload:    datatypes.JSON(body),
		ReceivedAt: s.clock.Now(),
	}

	inserted, err := s.events.InsertEvent(ctx, s.db, record)
	if err != nil {
		return "", err
	}
	if !inserted {
		s.metrics.RecordEventDuplicate(ctx)
		s.log.Info("duplicate delivery acknowledged",
			zap.String("delivery_id", envelope.DeliveryID),
			zap.String("invoice_id", envelope.InvoiceID),
		)
		return domain.ResultAcceptedDuplicate, nil
	}

	s.metrics.RecordEventIngested(ctx, envelope.Type)
	s.log.Info("webhook delivery stored",
		zap.String("delivery_id", envelope.DeliveryID),
		zap.String("event_type", envelope.Type),
		zap.String("invoice_id", envelope.InvoiceID),
		zap.String("store_id", envelope.StoreID),
	)
	return domain.ResultAccepted, nil
}

func parseEnvelope(body []byte) (*domain.Envelope, error) {
	var envelope domain.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.ErrMalformed
	}
	envelope.DeliveryID = strings.TrimSpace(envelope.DeliveryID)
	envelope.Type = strings.TrimSpace(envelope.Type)
	envelope.InvoiceID = strings.TrimSpace(envelope.InvoiceID)
	envelope.StoreID = strings.TrimSpace(envelope.StoreID)
	if envelope.DeliveryID == "" || envelope.InvoiceID == "" || envelope.StoreID == "" {
		return nil, domain.ErrMalformed
	}
	if !eventdomain.IsKnown(envelope.Type) {
		return nil, domain.ErrMalformed
	}
	return &envelope, nil
}
