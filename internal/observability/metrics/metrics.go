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
	documentMutations  metric.Int64Counter
	balanceAdjustments metric.Int64Counter
	syncAttempts       metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "fieldbooks"
	}
	meter := provider.Meter(name)

	documentMutations, err := meter.Int64Counter("fieldbooks_document_mutations_total")
	if err != nil {
		return nil, err
	}
	balanceAdjustments, err := meter.Int64Counter("fieldbooks_balance_adjustments_total")
	if err != nil {
		return nil, err
	}
	syncAttempts, err := meter.Int64Counter("fieldbooks_accounting_sync_attempts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		documentMutations:  documentMutations,
		balanceAdjustments: balanceAdjustments,
		syncAttempts:       syncAttempts,
	}, nil
}

// Noop returns instruments backed by the noop provider, for tests and tools.
func Noop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordDocumentMutation counts a committed write on a document.
func (m *Metrics) RecordDocumentMutation(ctx context.Context, documentType, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("document_type", strings.TrimSpace(documentType)),
		attribute.String("operation", strings.TrimSpace(operation)),
	)
	m.documentMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBalanceAdjustment counts a parent balance adjustment.
func (m *Metrics) RecordBalanceAdjustment(ctx context.Context, documentType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("document_type", strings.TrimSpace(documentType)))
	m.balanceAdjustments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncAttempt counts an accounting sync call by outcome.
func (m *Metrics) RecordSyncAttempt(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.syncAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"org_id":        {},
	"document_type": {},
	"operation":     {},
	"provider":      {},
	"status":        {},
	"reason":        {},
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
