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

// Metrics exposes billing instruments.
type Metrics struct {
	charges       metric.Int64Counter
	chargeLegs    metric.Int64Counter
	reversals     metric.Int64Counter
	ledgerEntries metric.Int64Counter
	batchItems    metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "flightclub"
	}
	meter := provider.Meter(name)

	charges, err := meter.Int64Counter("flightclub_flight_charges_total")
	if err != nil {
		return nil, err
	}
	chargeLegs, err := meter.Int64Counter("flightclub_flight_charge_legs_total")
	if err != nil {
		return nil, err
	}
	reversals, err := meter.Int64Counter("flightclub_reversals_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("flightclub_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	batchItems, err := meter.Int64Counter("flightclub_batch_charge_items_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		charges:       charges,
		chargeLegs:    chargeLegs,
		reversals:     reversals,
		ledgerEntries: ledgerEntries,
		batchItems:    batchItems,
	}, nil
}

// RecordCharge counts a flight charge attempt by mode (single, split) and outcome.
func (m *Metrics) RecordCharge(ctx context.Context, mode, outcome string, legs int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.charges.Add(ctx, 1, metric.WithAttributes(attrs...))
	if legs > 0 && outcome == OutcomeSuccess {
		m.chargeLegs.Add(ctx, int64(legs), metric.WithAttributes(attrs...))
	}
}

// RecordReversal counts reversals per owner type.
func (m *Metrics) RecordReversal(ctx context.Context, ownerType string, flightLinked bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("owner_type", strings.TrimSpace(ownerType)),
		attribute.Bool("flight_linked", flightLinked),
	)
	m.reversals.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry counts inserted ledger rows.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, ownerType, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("owner_type", strings.TrimSpace(ownerType)),
		attribute.String("kind", strings.TrimSpace(kind)),
	)
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBatchItems counts processed batch items by outcome.
func (m *Metrics) RecordBatchItems(ctx context.Context, succeeded, failed int) {
	if m == nil {
		return
	}
	if succeeded > 0 {
		m.batchItems.Add(ctx, int64(succeeded), metric.WithAttributes(attribute.String("outcome", OutcomeSuccess)))
	}
	if failed > 0 {
		m.batchItems.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", OutcomeFailure)))
	}
}

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"mode":          {},
	"outcome":       {},
	"owner_type":    {},
	"kind":          {},
	"flight_linked": {},
	"status_code":   {},
	"route":         {},
	"method":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
