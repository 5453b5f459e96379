package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordBeforeInitDoesNotPanic(t *testing.T) {
	ctx := context.Background()

	// All record functions are nil-safe so packages can emit metrics
	// regardless of whether the application initialised telemetry.
	RecordCacheLookup(ctx, "tag", LookupHit)
	RecordCacheLoad(ctx, "tag", time.Millisecond, nil)
	RecordCacheLoad(ctx, "tag", time.Millisecond, errors.New("boom"))
	RecordCacheEviction(ctx, "tag")
	UpdateCacheEntries(ctx, "tag", 10)
	RecordAggregation(ctx, "PercentageOfServicesWithOwner", 3, time.Millisecond, nil)
}

func TestPrometheusHandlerBeforeInit(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	PrometheusHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitMetricsAndRecord(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitMetrics(ctx, MetricsConfig{
		ServiceName:      "catalog-cache-test",
		EnablePrometheus: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	RecordCacheLookup(ctx, "tag", LookupMiss)
	RecordCacheLoad(ctx, "tag", 2*time.Millisecond, nil)
	RecordCacheEviction(ctx, "tag")
	UpdateCacheEntries(ctx, "tag", 4)
	RecordAggregation(ctx, "PercentageOfServicesWithOwner", 2, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	PrometheusHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "catalog_cache_lookups_total")
}

func TestInitMetricsIsIdempotent(t *testing.T) {
	ctx := context.Background()

	first, err := InitMetrics(ctx, MetricsConfig{ServiceName: "catalog-cache-test"})
	require.NoError(t, err)
	second, err := InitMetrics(ctx, MetricsConfig{ServiceName: "other-name"})
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)
}
