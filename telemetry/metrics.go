// Package telemetry provides OpenTelemetry metrics for the label cache and
// the insight aggregators.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/catalogd/catalog-cache"
)

// LookupResult tags a cache lookup as a hit or a miss.
type LookupResult string

const (
	LookupHit  LookupResult = "hit"
	LookupMiss LookupResult = "miss"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	cacheLookupsTotal   metric.Int64Counter
	cacheLoadsTotal     metric.Int64Counter
	cacheLoadDuration   metric.Float64Histogram
	cacheEvictionsTotal metric.Int64Counter
	cacheEntries        metric.Int64Gauge

	aggregationRunsTotal metric.Int64Counter
	aggregationDuration  metric.Float64Histogram
	aggregationRecords   metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "catalog-cache"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	// Build resource with service info
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	// Setup OTLP exporter if endpoint configured
	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	// Setup Prometheus exporter if enabled
	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	// Build meter provider options
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	// Create meter and instruments
	meter := mp.Meter(meterName)

	cacheLookupsTotal, err := meter.Int64Counter(
		"catalog_cache_lookups_total",
		metric.WithDescription("Total label cache lookups by entity kind and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	cacheLoadsTotal, err := meter.Int64Counter(
		"catalog_cache_loads_total",
		metric.WithDescription("Total backing-store loads by entity kind and outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return err
	}

	cacheLoadDuration, err := meter.Float64Histogram(
		"catalog_cache_load_duration_seconds",
		metric.WithDescription("Duration of backing-store loads"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return err
	}

	cacheEvictionsTotal, err := meter.Int64Counter(
		"catalog_cache_evictions_total",
		metric.WithDescription("Total capacity evictions by entity kind"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	cacheEntries, err := meter.Int64Gauge(
		"catalog_cache_entries",
		metric.WithDescription("Current resident entries by entity kind"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	aggregationRunsTotal, err := meter.Int64Counter(
		"catalog_insight_aggregation_runs_total",
		metric.WithDescription("Total insight aggregation runs by chart type and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	aggregationDuration, err := meter.Float64Histogram(
		"catalog_insight_aggregation_duration_seconds",
		metric.WithDescription("Duration of insight aggregation runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return err
	}

	aggregationRecords, err := meter.Int64Counter(
		"catalog_insight_aggregation_records_total",
		metric.WithDescription("Total records emitted by insight aggregations"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	globalMetrics = &Metrics{
		cacheLookupsTotal:    cacheLookupsTotal,
		cacheLoadsTotal:      cacheLoadsTotal,
		cacheLoadDuration:    cacheLoadDuration,
		cacheEvictionsTotal:  cacheEvictionsTotal,
		cacheEntries:         cacheEntries,
		aggregationRunsTotal: aggregationRunsTotal,
		aggregationDuration:  aggregationDuration,
		aggregationRecords:   aggregationRecords,
		meterProvider:        mp,
		promHandler:          promHandler,
	}

	return nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordCacheLookup records a label cache lookup and its result.
func RecordCacheLookup(ctx context.Context, cache string, result LookupResult) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache", cache),
		attribute.String("result", string(result)),
	}
	globalMetrics.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheLoad records a backing-store load with its duration and outcome.
func RecordCacheLoad(ctx context.Context, cache string, duration time.Duration, err error) {
	if globalMetrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache", cache),
		attribute.String("outcome", outcome),
	}
	globalMetrics.cacheLoadsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.cacheLoadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCacheEviction records a capacity eviction.
func RecordCacheEviction(ctx context.Context, cache string) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("cache", cache)}
	globalMetrics.cacheEvictionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// UpdateCacheEntries updates the resident entry gauge for a cache.
func UpdateCacheEntries(ctx context.Context, cache string, entries int64) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("cache", cache)}
	globalMetrics.cacheEntries.Record(ctx, entries, metric.WithAttributes(attrs...))
}

// RecordAggregation records an insight aggregation run.
func RecordAggregation(ctx context.Context, chartType string, records int, duration time.Duration, err error) {
	if globalMetrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("chart_type", chartType),
		attribute.String("outcome", outcome),
	}
	globalMetrics.aggregationRunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.aggregationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if records > 0 {
		globalMetrics.aggregationRecords.Add(ctx, int64(records), metric.WithAttributes(attrs...))
	}
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a metrics exporter that discards all data. Used when no
// OTLP endpoint or Prometheus exporter is configured so instruments still
// aggregate without error.
type noopExporter struct{}

func (noopExporter) Temporality(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }

func (noopExporter) ForceFlush(context.Context) error { return nil }

func (noopExporter) Shutdown(context.Context) error { return nil }
