package loadcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetLoadsOnMiss(t *testing.T) {
	loads := &atomic.Int64{}
	c := newTestCache(t, loads, Config{MaxEntries: 10, TTL: time.Minute})

	ctx := context.Background()

	v, err := c.Get(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, "value-PII.Sensitive", v)
	require.Equal(t, int64(1), loads.Load())
}

func TestGetServesCachedWithinTTL(t *testing.T) {
	loads := &atomic.Int64{}
	c := newTestCache(t, loads, Config{MaxEntries: 10, TTL: time.Minute})

	ctx := context.Background()

	for range 5 {
		_, err := c.Get(ctx, "PII.Sensitive")
		require.NoError(t, err)
	}

	// A single backing-store call serves all reads within the TTL window.
	require.Equal(t, int64(1), loads.Load())
}

func TestGetReloadsAfterTTL(t *testing.T) {
	loads := &atomic.Int64{}
	c := newTestCache(t, loads, Config{MaxEntries: 10, TTL: 2 * time.Minute})

	ctx := context.Background()
	baseTime := time.Now()

	c.now = func() time.Time { return baseTime }
	_, err := c.Get(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(1), loads.Load())

	// Still inside the TTL window: no reload.
	c.now = func() time.Time { return baseTime.Add(2*time.Minute - time.Second) }
	_, err = c.Get(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(1), loads.Load())

	// TTL elapsed: exactly one reload.
	c.now = func() time.Time { return baseTime.Add(2 * time.Minute) }
	_, err = c.Get(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(2), loads.Load())

	_, err = c.Get(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(2), loads.Load())
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	loads := &atomic.Int64{}
	c := newTestCache(t, loads, Config{MaxEntries: 3, TTL: time.Minute})

	ctx := context.Background()

	for i := range 5 {
		_, err := c.Get(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	// key-0 and key-1 were evicted; fetching them loads again.
	loads.Store(0)
	_, err := c.Get(ctx, "key-0")
	require.NoError(t, err)
	require.Equal(t, int64(1), loads.Load())

	// key-4 is still resident.
	_, err = c.Get(ctx, "key-4")
	require.NoError(t, err)
	require.Equal(t, int64(1), loads.Load())
}

func TestAccessRefreshesLRUOrder(t *testing.T) {
	loads := &atomic.Int64{}
	c := newTestCache(t, loads, Config{MaxEntries: 2, TTL: time.Minute})

	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")

	// Touch "a" so "b" becomes the eviction candidate.
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "c")

	loads.Store(0)
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, int64(0), loads.Load(), "a should still be cached")

	_, err = c.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(1), loads.Load(), "b should have been evicted")
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	loads := &atomic.Int64{}
	fail := &atomic.Bool{}
	fail.Store(true)

	loader := func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		if fail.Load() {
			return "", errors.New("backing store unavailable")
		}
		return "value-" + key, nil
	}
	c := New(loader, Config{MaxEntries: 10, TTL: time.Minute})

	ctx := context.Background()

	_, err := c.Get(ctx, "PII.Sensitive")
	require.Error(t, err)
	require.Equal(t, 0, c.Len())

	// The failed load is retried, not suppressed.
	fail.Store(false)
	v, err := c.Get(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, "value-PII.Sensitive", v)
	require.Equal(t, int64(2), loads.Load())
}

func TestInvalidateAll(t *testing.T) {
	loads := &atomic.Int64{}
	c := newTestCache(t, loads, Config{MaxEntries: 10, TTL: time.Minute})

	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")
	require.Equal(t, 2, c.Len())

	c.InvalidateAll()
	require.Equal(t, 0, c.Len())

	loads.Store(0)
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, int64(1), loads.Load())
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	loads := &atomic.Int64{}
	loader := func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "value-" + key, nil
	}
	c := New(loader, Config{MaxEntries: 10, TTL: time.Minute})

	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(ctx, "shared")
			require.NoError(t, err)
			require.Equal(t, "value-shared", v)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), loads.Load())
}

// Helper functions

func newTestCache(t *testing.T, loads *atomic.Int64, cfg Config) *Cache[string] {
	t.Helper()
	loader := func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		return "value-" + key, nil
	}
	return New(loader, cfg)
}
