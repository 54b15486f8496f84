package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	eventsIngested   metric.Int64Counter
	eventsDuplicate  metric.Int64Counter
	dispatches       metric.Int64Counter
	outcomes         metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	sweepInvoices    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ledgerbridge"
	}
	meter := provider.Meter(name)

	eventsIngested, err := meter.Int64Counter("ledgerbridge_events_ingested_total")
	if err != nil {
		return nil, err
	}
	eventsDuplicate, err := meter.Int64Counter("ledgerbridge_events_duplicate_total")
	if err != nil {
		return nil, err
	}
	dispatches, err := meter.Int64Counter("ledgerbridge_dispatches_total")
	if err != nil {
		return nil, err
	}
	outcomes, err := meter.Int64Counter("ledgerbridge_outcomes_total")
	if err != nil {
		return nil, err
	}
	dispatchDuration, err := meter.Float64Histogram("ledgerbridge_dispatch_duration_seconds")
	if err != nil {
		return nil, err
	}
	sweepInvoices, err := meter.Int64Counter("ledgerbridge_sweep_invoices_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsIngested:   eventsIngested,
		eventsDuplicate:  eventsDuplicate,
		dispatches:       dispatches,
		outcomes:         outcomes,
		dispatchDuration: dispatchDuration,
		sweepInvoices:    sweepInvoices,
	}, nil
}

// RecordEventIngested increments ingested webhook delivery counts.
func (m *Metrics) RecordEventIngested(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.eventsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
	))
}

// RecordEventDuplicate increments duplicate delivery counts.
func (m *Metrics) RecordEventDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsDuplicate.Add(ctx, 1)
}

// RecordDispatch increments ledger dispatch attempts by status.
func (m *Metrics) RecordDispatch(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordOutcome increments reconciliation outcome counts by result.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordSweepInvoice increments fallback sweep invoice counts.
func (m *Metrics) RecordSweepInvoice(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.sweepInvoices.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", strings.TrimSpace(result)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
