package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/catalogd/catalog-cache/telemetry"
)

// DateLayout is the layout of a time histogram bucket's display key.
const DateLayout = "2006-01-02"

// ChartType identifies the data insight chart a result belongs to.
type ChartType string

// ChartPercentageOfServicesWithOwner is the per-service ownership chart.
const ChartPercentageOfServicesWithOwner ChartType = "PercentageOfServicesWithOwner"

// ErrMissingAggregation is returned when a named sub-aggregation the chart
// depends on is absent from the search result.
var ErrMissingAggregation = errors.New("missing aggregation")

// DateParseError is returned when a histogram bucket's display key cannot be
// parsed with the expected layout. It aborts the whole aggregation.
type DateParseError struct {
	Key    string
	Layout string
	Err    error
}

// Error implements the error interface.
func (e *DateParseError) Error() string {
	return fmt.Sprintf("parsing bucket key %q with layout %s", e.Key, e.Layout)
}

// Unwrap returns the underlying time parse failure.
func (e *DateParseError) Unwrap() error { return e.Err }

// ServiceOwnerMetric is one ownership sample: the fraction of a service's
// entities that have an owner, at a point in time.
type ServiceOwnerMetric struct {
	Timestamp        int64   `json:"timestamp"`
	ServiceName      string  `json:"serviceName"`
	EntityCount      float64 `json:"entityCount"`
	HasOwner         float64 `json:"hasOwner"`
	HasOwnerFraction float64 `json:"hasOwnerFraction"`
}

// ChartResult is the chart envelope handed to the presentation layer.
type ChartResult struct {
	ChartType ChartType            `json:"chartType"`
	Data      []ServiceOwnerMetric `json:"data"`
}

// ServicesOwnerAggregator flattens a timestamp histogram with nested
// per-service buckets into ownership fraction records. It is stateless
// across calls; every call recomputes from the supplied snapshot.
type ServicesOwnerAggregator struct {
	aggregations Aggregations
}

// NewServicesOwnerAggregator creates an aggregator over a search result's
// aggregations.
func NewServicesOwnerAggregator(aggregations Aggregations) *ServicesOwnerAggregator {
	return &ServicesOwnerAggregator{aggregations: aggregations}
}

// Process runs the aggregation and wraps the records in a chart result.
func (a *ServicesOwnerAggregator) Process(ctx context.Context) (*ChartResult, error) {
	start := time.Now()
	data, err := a.Aggregate(ctx)
	telemetry.RecordAggregation(ctx, string(ChartPercentageOfServicesWithOwner), len(data), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &ChartResult{ChartType: ChartPercentageOfServicesWithOwner, Data: data}, nil
}

// Aggregate walks the timestamp buckets in the engine's native order and,
// under each, the per-service buckets, emitting one record per bucket pair.
// Records are never merged, even when they share a timestamp and service.
func (a *ServicesOwnerAggregator) Aggregate(_ context.Context) ([]ServiceOwnerMetric, error) {
	timestamps, ok := a.aggregations[KeyTimestamp]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAggregation, KeyTimestamp)
	}

	var data []ServiceOwnerMetric
	for _, timestampBucket := range timestamps.Buckets {
		ts, err := parseBucketTimestamp(timestampBucket.Key)
		if err != nil {
			return nil, err
		}

		services, ok := timestampBucket.Aggregations[KeyServiceName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAggregation, KeyServiceName)
		}

		for _, serviceBucket := range services.Buckets {
			hasOwner, ok := serviceBucket.Aggregations[KeyHasOwnerFraction]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingAggregation, KeyHasOwnerFraction)
			}
			entityCount, ok := serviceBucket.Aggregations[KeyEntityCount]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingAggregation, KeyEntityCount)
			}

			// A zero entity count yields a non-finite fraction. The chart
			// layer is expected to render it as-is.
			data = append(data, ServiceOwnerMetric{
				Timestamp:        ts,
				ServiceName:      serviceBucket.Key,
				EntityCount:      entityCount.Value,
				HasOwner:         hasOwner.Value,
				HasOwnerFraction: hasOwner.Value / entityCount.Value,
			})
		}
	}

	return data, nil
}

// parseBucketTimestamp converts a histogram bucket display key into epoch
// milliseconds.
func parseBucketTimestamp(key string) (int64, error) {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return 0, &DateParseError{Key: key, Layout: DateLayout, Err: err}
	}
	return t.UnixMilli(), nil
}
